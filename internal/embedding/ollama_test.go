package embedding

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hyperjump/spravka/internal/models"
)

func TestOllamaEmbedder_Embed(t *testing.T) {
	var got embeddingRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/embeddings" || r.Method != http.MethodPost {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"embedding":[3,4]}`))
	}))
	defer srv.Close()

	e := NewOllamaEmbedder(srv.URL, "multilingual-e5-large", 2, time.Second)
	vec, err := e.Embed(context.Background(), "query: остатки")
	if err != nil {
		t.Fatal(err)
	}
	if got.Model != "multilingual-e5-large" || got.Prompt != "query: остатки" {
		t.Errorf("request = %+v", got)
	}
	if len(vec) != 2 || math.Abs(float64(vec[0])-0.6) > 1e-6 || math.Abs(float64(vec[1])-0.8) > 1e-6 {
		t.Errorf("vector not normalized: %v", vec)
	}
}

func TestOllamaEmbedder_Errors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusInternalServerError, `{"error":"model not found"}`},
		{"empty embedding", http.StatusOK, `{"embedding":[]}`},
		{"wrong dimension", http.StatusOK, `{"embedding":[1,2,3]}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			e := NewOllamaEmbedder(srv.URL, "m", 2, time.Second)
			if _, err := e.EmbedBatch(context.Background(), []string{"x"}); !errors.Is(err, models.ErrEmbeddingUnavailable) {
				t.Errorf("error = %v, want ErrEmbeddingUnavailable", err)
			}
		})
	}
}

func TestOllamaEmbedder_Unreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	e := NewOllamaEmbedder(url, "m", 2, 200*time.Millisecond)
	if _, err := e.Embed(context.Background(), "x"); !errors.Is(err, models.ErrEmbeddingUnavailable) {
		t.Errorf("error = %v, want ErrEmbeddingUnavailable", err)
	}
}
