package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_QueryCounters(t *testing.T) {
	m := New()
	m.ObserveQuery("hybrid", OutcomeAnswered)
	m.ObserveQuery("hybrid", OutcomeAnswered)
	m.ObserveQuery("semantic", OutcomeNoInformation)
	m.ObserveStage("retrieve", 15*time.Millisecond)
	m.ObserveCandidates(4)
	m.AddIngested("chunk", 3)
	m.AddIngested("chunk", 0)
	m.SetChunks(10, 7)

	if got := testutil.ToFloat64(m.queries.WithLabelValues("hybrid", OutcomeAnswered)); got != 2 {
		t.Errorf("answered hybrid = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.ingested.WithLabelValues("chunk")); got != 3 {
		t.Errorf("ingested chunks = %v, want 3", got)
	}
	if got := testutil.ToFloat64(m.chunks.WithLabelValues("active")); got != 7 {
		t.Errorf("active chunks = %v, want 7", got)
	}
}

func TestMetrics_NilIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveQuery("hybrid", OutcomeAnswered)
	m.ObserveStage("generate", time.Second)
	m.SetChunks(1, 1)
	if m.Registry() != nil {
		t.Error("nil metrics should have no registry")
	}
	h := m.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d", rec.Code)
	}
}

func TestMetrics_MiddlewareAndHandler(t *testing.T) {
	m := New()
	r := chi.NewRouter()
	r.Use(m.Middleware)
	r.Get("/api/v1/instructions/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	r.Handle("/metrics", m.Handler())

	srv := httptest.NewServer(r)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/api/v1/instructions/abc")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got := testutil.ToFloat64(m.httpRequests.WithLabelValues("GET", "/api/v1/instructions/{id}", "404")); got != 1 {
		t.Errorf("http counter = %v, want 1", got)
	}

	resp, err = http.Get(srv.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "spravka_http_requests_total") {
		t.Error("exposition is missing spravka_http_requests_total")
	}
}
