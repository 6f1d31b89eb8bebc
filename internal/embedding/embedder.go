// Package embedding turns text into dense vectors through a pluggable model backend.
package embedding

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/spravka/internal/models"
)

// Model is a raw embedding backend. Text is embedded as given.
type Model interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// Embedder embeds queries and passages. Asymmetric models (e5) see a different prefix for
// each side.
type Embedder interface {
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
	EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}

// PrefixedEmbedder adapts a Model to Embedder by prepending the query or passage prefix.
type PrefixedEmbedder struct {
	model         Model
	queryPrefix   string
	passagePrefix string
}

// WithPrefixes wraps m so queries get queryPrefix and documents get passagePrefix.
func WithPrefixes(m Model, queryPrefix, passagePrefix string) *PrefixedEmbedder {
	return &PrefixedEmbedder{model: m, queryPrefix: queryPrefix, passagePrefix: passagePrefix}
}

// EmbedQuery embeds a search query. Errors wrap models.ErrEmbeddingUnavailable.
func (p *PrefixedEmbedder) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vec, err := p.model.Embed(ctx, p.queryPrefix+text)
	if err != nil {
		return nil, unavailable(err)
	}
	return vec, nil
}

// EmbedDocuments embeds passages in order. Errors wrap models.ErrEmbeddingUnavailable.
func (p *PrefixedEmbedder) EmbedDocuments(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	prefixed := make([]string, len(texts))
	for i, t := range texts {
		prefixed[i] = p.passagePrefix + t
	}
	vecs, err := p.model.EmbedBatch(ctx, prefixed)
	if err != nil {
		return nil, unavailable(err)
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts", models.ErrEmbeddingUnavailable, len(vecs), len(texts))
	}
	return vecs, nil
}

// Dimensions returns the embedding dimension of the wrapped model.
func (p *PrefixedEmbedder) Dimensions() int {
	return p.model.Dimensions()
}

// Close closes the wrapped model.
func (p *PrefixedEmbedder) Close() error {
	return p.model.Close()
}

func unavailable(err error) error {
	if errors.Is(err, models.ErrEmbeddingUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %v", models.ErrEmbeddingUnavailable, err)
}
