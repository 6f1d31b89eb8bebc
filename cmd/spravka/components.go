package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/catalog"
	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/embedding"
	"github.com/hyperjump/spravka/internal/extract"
	"github.com/hyperjump/spravka/internal/indexer"
	"github.com/hyperjump/spravka/internal/keyword"
	"github.com/hyperjump/spravka/internal/llm"
	"github.com/hyperjump/spravka/internal/metrics"
	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/pipeline"
	"github.com/hyperjump/spravka/internal/server"
	"github.com/hyperjump/spravka/internal/storage"
	"github.com/hyperjump/spravka/internal/vector"
)

const titleSearchLimit = 20

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Storage  *storage.SQLiteStorage
	Store    *vector.Store
	Catalog  *catalog.SQLiteCatalog
	Titles   *catalog.TitleIndex
	Embedder embedding.Embedder
	LLM      *llm.OllamaClient
	Ranker   *keyword.Ranker
	Metrics  *metrics.Metrics
	Pipeline *pipeline.Pipeline
	Ingestor *indexer.Ingestor
	logger   *zap.Logger
}

// Close saves the vector snapshot and releases every resource that was opened.
func (c *Components) Close() {
	if c.Store != nil {
		if err := c.Store.Close(); err != nil {
			c.logger.Warn("vector index close failed", zap.Error(err))
		}
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
	if c.Catalog != nil {
		_ = c.Catalog.Close()
	}
	if c.Titles != nil {
		_ = c.Titles.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
}

func ensureParent(path string) error {
	if path == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(path), 0755)
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger) (c *Components, err error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	for _, p := range []string{cfg.Storage.DatabasePath, cfg.Storage.CatalogPath, cfg.Storage.TitleIndexPath, cfg.Storage.VectorSnapshotPath} {
		if err := ensureParent(p); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	c = &Components{Config: cfg, Metrics: metrics.New(), logger: logger}
	defer func() {
		if err != nil {
			c.Close()
		}
	}()

	if c.Storage, err = storage.NewSQLiteStorage(cfg.Storage.DatabasePath); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	if c.Catalog, err = catalog.NewSQLiteCatalog(cfg.Storage.CatalogPath); err != nil {
		return nil, fmt.Errorf("failed to initialize catalog: %w", err)
	}
	if c.Titles, err = catalog.NewTitleIndex(cfg.Storage.TitleIndexPath); err != nil {
		return nil, fmt.Errorf("failed to initialize title index: %w", err)
	}
	if c.Embedder, err = embedding.New(cfg.Embedding, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	vectorIndex, err := vector.NewVectorIndex(string(vector.IndexTypeMemory), cfg.Embedding.Dimensions)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector index: %w", err)
	}
	c.Store = vector.NewStore(c.Storage, vectorIndex,
		vector.WithSnapshotPath(cfg.Storage.VectorSnapshotPath),
		vector.WithStoreLogger(logger))
	if err = c.Store.Load(ctx); err != nil {
		return nil, fmt.Errorf("failed to load chunks: %w", err)
	}

	c.Ranker = keyword.NewRanker(keyword.Params{K1: cfg.Retrieval.BM25K1, B: cfg.Retrieval.BM25B}, keyword.WithLogger(logger))
	c.LLM = llm.NewOllamaClient(cfg.Generation.BaseURL, cfg.Generation.Model, cfg.Generation.Timeout, llm.WithLogger(logger))

	if c.Pipeline, err = pipeline.New(pipeline.Deps{
		Store:    c.Store,
		Ranker:   c.Ranker,
		Embedder: c.Embedder,
		LLM:      c.LLM,
		Catalog:  c.Catalog,
	}, cfg, pipeline.WithLogger(logger), pipeline.WithMetrics(c.Metrics)); err != nil {
		return nil, err
	}
	if c.Ingestor, err = indexer.NewIngestor(indexer.Deps{
		Store:     c.Store,
		Embedder:  c.Embedder,
		Catalog:   c.Catalog,
		Titles:    c.Titles,
		Ranker:    c.Ranker,
		Extractor: extract.NewExtractor(),
	}, cfg.Retrieval, indexer.WithLogger(logger), indexer.WithMetrics(c.Metrics)); err != nil {
		return nil, err
	}

	logger.Info("components initialized",
		zap.Int("chunks", c.Store.Count()),
		zap.String("embedding_provider", cfg.Embedding.Provider),
		zap.String("generation_model", cfg.Generation.Model))
	return c, nil
}

// backend is what the one-shot commands need, served either by a running server or by
// local components.
type backend interface {
	Query(ctx context.Context, req *models.QueryRequest) (*models.Answer, error)
	Search(ctx context.Context, req *models.QueryRequest) (*models.Retrieval, error)
	Ingest(ctx context.Context, req *server.IngestRequest) (*server.IngestResponse, error)
	Delete(ctx context.Context, id string) error
	SetActive(ctx context.Context, id string, active bool) error
	Instructions(ctx context.Context, activeOnly bool, tag, title string) ([]*models.Instruction, error)
	Tags(ctx context.Context) ([]*models.Tag, error)
	Status(ctx context.Context) (*server.StatusResponse, error)
}

// localBackend runs commands against components opened in this process.
type localBackend struct {
	c *Components
}

func (l *localBackend) Query(ctx context.Context, req *models.QueryRequest) (*models.Answer, error) {
	return l.c.Pipeline.Query(ctx, req)
}

func (l *localBackend) Search(ctx context.Context, req *models.QueryRequest) (*models.Retrieval, error) {
	return l.c.Pipeline.Retrieve(ctx, req)
}

func (l *localBackend) Ingest(ctx context.Context, req *server.IngestRequest) (*server.IngestResponse, error) {
	return server.Ingest(ctx, l.c.Ingestor, req, l.c.Config.Watch.Extensions, l.c.logger)
}

func (l *localBackend) Delete(ctx context.Context, id string) error {
	return l.c.Ingestor.DeleteInstruction(ctx, id)
}

func (l *localBackend) SetActive(ctx context.Context, id string, active bool) error {
	if active {
		return l.c.Ingestor.ActivateInstruction(ctx, id)
	}
	return l.c.Ingestor.DeactivateInstruction(ctx, id)
}

func (l *localBackend) Instructions(ctx context.Context, activeOnly bool, tag, title string) ([]*models.Instruction, error) {
	if title != "" {
		return server.FindByTitle(ctx, l.c.Titles, l.c.Catalog, title, titleSearchLimit)
	}
	return server.ListInstructions(ctx, l.c.Catalog, activeOnly, tag)
}

func (l *localBackend) Tags(ctx context.Context) ([]*models.Tag, error) {
	return l.c.Catalog.ListTags(ctx)
}

func (l *localBackend) Status(ctx context.Context) (*server.StatusResponse, error) {
	return server.BuildStatus(ctx, l.c.Pipeline, l.c.Config, l.c.logger)
}
