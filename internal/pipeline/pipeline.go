// Package pipeline wires retrieval, context assembly and generation into a single query path.
// A Pipeline is built once at startup and shared by the HTTP server and the CLI.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/assembler"
	"github.com/hyperjump/spravka/internal/catalog"
	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/embedding"
	"github.com/hyperjump/spravka/internal/generation"
	"github.com/hyperjump/spravka/internal/keyword"
	"github.com/hyperjump/spravka/internal/llm"
	"github.com/hyperjump/spravka/internal/metrics"
	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/search"
	"github.com/hyperjump/spravka/internal/vector"
)

const maxSuggestions = 3

// Deps are the collaborators a Pipeline needs. Catalog is optional and only feeds Stats.
type Deps struct {
	Store    *vector.Store
	Ranker   *keyword.Ranker
	Embedder embedding.Embedder
	LLM      llm.Client
	Catalog  catalog.Catalog
}

// Pipeline answers questions against the knowledge base.
type Pipeline struct {
	engine    *search.Engine
	generator *generation.Orchestrator
	store     *vector.Store
	catalog   catalog.Catalog
	cfg       config.RetrievalConfig
	storage   config.StorageConfig
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithLogger sets the pipeline logger and passes it to the engine and generator.
func WithLogger(l *zap.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

// WithMetrics records query metrics into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) {
		p.metrics = m
	}
}

// New validates cfg and builds a pipeline. A malformed chunking config fails here rather
// than on first use.
func New(deps Deps, cfg *config.Config, opts ...Option) (*Pipeline, error) {
	if deps.Store == nil || deps.Ranker == nil || deps.Embedder == nil || deps.LLM == nil {
		return nil, errors.New("pipeline: store, ranker, embedder and llm are required")
	}
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	p := &Pipeline{
		store:   deps.Store,
		catalog: deps.Catalog,
		cfg:     cfg.Retrieval,
		storage: cfg.Storage,
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(p)
	}
	p.engine = search.NewEngine(deps.Store, deps.Ranker, deps.Embedder, cfg.Retrieval,
		search.WithLogger(p.logger),
		search.WithEmbedTimeout(cfg.Embedding.Timeout))
	p.generator = generation.NewOrchestrator(deps.LLM, cfg.Generation, generation.WithLogger(p.logger))
	return p, nil
}

// Query retrieves, assembles and generates an answer. Retrieval failures are returned as
// errors wrapping models.ErrEmbeddingUnavailable or models.ErrIndexUnavailable. When nothing
// is retrieved the fixed no-information answer is returned without calling generation. A
// generation failure still yields an answer carrying context and sources.
func (p *Pipeline) Query(ctx context.Context, req *models.QueryRequest) (*models.Answer, error) {
	start := time.Now()
	if err := search.ProcessQuery(req, p.cfg); err != nil {
		return nil, err
	}

	candidates, err := p.retrieve(ctx, req)
	if err != nil {
		p.metrics.ObserveQuery(string(req.Mode), metrics.OutcomeRetrievalError)
		return nil, err
	}

	if len(candidates) == 0 {
		p.metrics.ObserveQuery(string(req.Mode), metrics.OutcomeNoInformation)
		p.logger.Info("No relevant chunks", zap.String("query", req.Query))
		return &models.Answer{
			Query:       req.Query,
			Answer:      generation.NoInformationAnswer,
			Context:     "",
			Sources:     []*models.SourceAttribution{},
			Images:      []string{},
			Mode:        req.Mode,
			Suggestions: p.engine.Suggest(req.Query, maxSuggestions),
			QueryTime:   time.Since(start).Milliseconds(),
		}, nil
	}

	assembled := assembler.Assemble(candidates, req.TopK)

	genStart := time.Now()
	text, genErr := p.generator.Answer(ctx, req.Query, assembled)
	p.metrics.ObserveStage("generate", time.Since(genStart))

	answer := &models.Answer{
		Query:                req.Query,
		Answer:               text,
		Context:              assembled.ContextText,
		Sources:              assembled.Sources,
		Images:               assembled.ImagePaths,
		BestInstructionID:    assembled.BestInstructionID,
		BestInstructionTitle: bestTitle(assembled.Sources),
		Mode:                 req.Mode,
		QueryTime:            time.Since(start).Milliseconds(),
	}
	if genErr != nil {
		answer.GenerationError = genErr.Error()
		p.metrics.ObserveQuery(string(req.Mode), metrics.OutcomeGenerationError)
	} else {
		p.metrics.ObserveQuery(string(req.Mode), metrics.OutcomeAnswered)
	}
	p.metrics.ObserveStage("total", time.Since(start))

	p.logger.Info("Query answered",
		zap.String("query", req.Query),
		zap.String("mode", string(req.Mode)),
		zap.Int("sources", len(answer.Sources)),
		zap.String("best_instruction", answer.BestInstructionID),
		zap.Bool("generation_failed", genErr != nil),
		zap.Int64("took_ms", answer.QueryTime))
	return answer, nil
}

// Retrieve runs retrieval and assembly without generation.
func (p *Pipeline) Retrieve(ctx context.Context, req *models.QueryRequest) (*models.Retrieval, error) {
	start := time.Now()
	if err := search.ProcessQuery(req, p.cfg); err != nil {
		return nil, err
	}
	candidates, err := p.retrieve(ctx, req)
	if err != nil {
		return nil, err
	}
	out := &models.Retrieval{
		Query:      req.Query,
		Mode:       req.Mode,
		Candidates: candidates,
		Context:    assembler.Assemble(candidates, req.TopK),
		QueryTime:  time.Since(start).Milliseconds(),
	}
	if len(candidates) == 0 {
		out.Suggestions = p.engine.Suggest(req.Query, maxSuggestions)
	}
	return out, nil
}

// Stats summarizes the store and, when configured, the catalog.
func (p *Pipeline) Stats(ctx context.Context) (*models.PipelineStats, error) {
	active, _ := p.store.Snapshot(false)
	stats := &models.PipelineStats{
		TotalChunks:       int64(p.store.Count()),
		ActiveChunks:      len(active),
		Collection:        p.storage.CollectionName,
		VectorIndexSize:   p.store.IndexSize(),
		LexicalGeneration: p.engine.LexicalGeneration(),
	}
	if p.catalog != nil {
		cs, err := p.catalog.Stats(ctx)
		if err != nil {
			return nil, fmt.Errorf("catalog stats: %w", err)
		}
		stats.Catalog = *cs
	}
	p.metrics.SetChunks(int(stats.TotalChunks), stats.ActiveChunks)
	return stats, nil
}

func (p *Pipeline) retrieve(ctx context.Context, req *models.QueryRequest) ([]*models.Candidate, error) {
	start := time.Now()
	candidates, err := p.engine.Retrieve(ctx, req)
	p.metrics.ObserveStage("retrieve", time.Since(start))
	if err != nil {
		p.logger.Warn("Retrieval failed", zap.String("query", req.Query), zap.Error(err))
		return nil, fmt.Errorf("retrieval failed: %w", err)
	}
	p.metrics.ObserveCandidates(len(candidates))
	return candidates, nil
}

func bestTitle(sources []*models.SourceAttribution) string {
	for _, s := range sources {
		if s.IsBestInstruction {
			return s.Title
		}
	}
	return ""
}
