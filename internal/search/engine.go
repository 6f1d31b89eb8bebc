// Package search retrieves candidate chunks for a question by fusing vector similarity with
// BM25 lexical relevance.
package search

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/embedding"
	"github.com/hyperjump/spravka/internal/keyword"
	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/vector"
)

// Engine runs semantic or hybrid retrieval over a vector store and a lexical ranker.
type Engine struct {
	store        *vector.Store
	ranker       *keyword.Ranker
	embedder     embedding.Embedder
	config       config.RetrievalConfig
	embedTimeout time.Duration
	logger       *zap.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *zap.Logger) EngineOption {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithEmbedTimeout bounds the query embedding call.
func WithEmbedTimeout(d time.Duration) EngineOption {
	return func(e *Engine) {
		e.embedTimeout = d
	}
}

// NewEngine creates a retrieval engine with the given dependencies.
func NewEngine(
	store *vector.Store,
	ranker *keyword.Ranker,
	embedder embedding.Embedder,
	cfg config.RetrievalConfig,
	opts ...EngineOption,
) *Engine {
	e := &Engine{
		store:    store,
		ranker:   ranker,
		embedder: embedder,
		config:   cfg,
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Retrieve returns at most req.TopK candidates for a validated request, best first.
// Embedding failures wrap models.ErrEmbeddingUnavailable and index failures wrap
// models.ErrIndexUnavailable.
func (e *Engine) Retrieve(ctx context.Context, req *models.QueryRequest) ([]*models.Candidate, error) {
	filter := vector.Filter{IncludeInactive: req.IncludeInactive, Tag: req.Tag}

	if req.Mode == models.ModeSemantic {
		hits, err := e.semantic(ctx, req.Query, req.TopK, filter)
		if err != nil {
			return nil, err
		}
		return FromHits(hits), nil
	}

	pool := e.config.PoolSize(req.TopK)
	var (
		hits    []*vector.Hit
		lexical []*keyword.KeywordResult
		errChan = make(chan error, 2)
		wg      sync.WaitGroup
	)

	wg.Add(2)
	go func() {
		defer wg.Done()
		lexical = e.lexical(req.Query, filter)
		if len(lexical) > pool {
			lexical = lexical[:pool]
		}
	}()
	go func() {
		defer wg.Done()
		results, err := e.semantic(ctx, req.Query, pool, filter)
		if err != nil {
			errChan <- err
			return
		}
		hits = results
	}()

	wg.Wait()
	close(errChan)
	for err := range errChan {
		if err != nil {
			return nil, err
		}
	}

	fused := Combine(hits, lexical, e.config.SemanticWeight, e.config.BM25Weight)
	out := make([]*models.Candidate, 0, min(req.TopK, len(fused)))
	for _, c := range fused {
		if len(out) == req.TopK {
			break
		}
		if c.Chunk == nil {
			chunk, ok := e.store.Get(c.ChunkID)
			if !ok {
				e.logger.Debug("Dropping unresolvable lexical candidate", zap.String("chunk_id", c.ChunkID))
				continue
			}
			c.Chunk = chunk
		}
		out = append(out, c)
	}

	e.logger.Debug("Hybrid retrieval",
		zap.String("query", req.Query),
		zap.Int("semantic", len(hits)),
		zap.Int("lexical", len(lexical)),
		zap.Int("returned", len(out)))
	return out, nil
}

// Suggest returns up to n spelling-corrected variants of query from the lexical vocabulary.
func (e *Engine) Suggest(query string, n int) []string {
	e.freshRanker()
	return e.ranker.Suggestions(query, n)
}

// LexicalGeneration returns the store generation the published lexical snapshot was built from.
func (e *Engine) LexicalGeneration() uint64 {
	return e.ranker.Generation()
}

func (e *Engine) semantic(ctx context.Context, query string, k int, filter vector.Filter) ([]*vector.Hit, error) {
	embedCtx := ctx
	if e.embedTimeout > 0 {
		var cancel context.CancelFunc
		embedCtx, cancel = context.WithTimeout(ctx, e.embedTimeout)
		defer cancel()
	}
	vec, err := e.embedder.EmbedQuery(embedCtx, query)
	if err != nil {
		if errors.Is(err, models.ErrEmbeddingUnavailable) {
			return nil, fmt.Errorf("embedding failed: %w", err)
		}
		return nil, fmt.Errorf("embedding failed: %w: %v", models.ErrEmbeddingUnavailable, err)
	}

	queryCtx := ctx
	if e.config.IndexTimeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, e.config.IndexTimeout)
		defer cancel()
	}
	hits, err := e.store.Query(queryCtx, vec, k, filter)
	if err != nil {
		if errors.Is(err, models.ErrIndexUnavailable) {
			return nil, fmt.Errorf("vector search failed: %w", err)
		}
		return nil, fmt.Errorf("vector search failed: %w: %v", models.ErrIndexUnavailable, err)
	}
	return hits, nil
}

// lexical scores the active corpus through the shared ranker snapshot. Filtered requests
// score a one-off corpus so the shared snapshot always reflects active chunks only.
func (e *Engine) lexical(query string, filter vector.Filter) []*keyword.KeywordResult {
	if filter == (vector.Filter{}) {
		e.freshRanker()
		return e.ranker.Score(query)
	}
	chunks, _ := e.store.Snapshot(filter.IncludeInactive)
	corpus := make([]keyword.Document, 0, len(chunks))
	for _, c := range chunks {
		if filter.Tag != "" && !c.HasTag(filter.Tag) {
			continue
		}
		corpus = append(corpus, keyword.Document{ID: c.ID, Text: c.Text})
	}
	return keyword.Score(query, corpus, e.ranker.Params())
}

func (e *Engine) freshRanker() {
	e.ranker.EnsureFresh(e.store.Generation(), func() ([]keyword.Document, uint64) {
		chunks, gen := e.store.Snapshot(false)
		return Documents(chunks), gen
	})
}

// Documents maps chunks to a lexical corpus.
func Documents(chunks []*models.Chunk) []keyword.Document {
	docs := make([]keyword.Document, len(chunks))
	for i, c := range chunks {
		docs[i] = keyword.Document{ID: c.ID, Text: c.Text}
	}
	return docs
}
