// Package server provides the HTTP API for Spravka.
package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/catalog"
	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/indexer"
	"github.com/hyperjump/spravka/internal/metrics"
	"github.com/hyperjump/spravka/internal/pipeline"
)

const defaultRequestTimeout = 120 * time.Second

// WatchService manages watched directories at runtime. *watcher.Watcher implements it.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the Spravka API.
type Server struct {
	pipeline *pipeline.Pipeline
	ingestor *indexer.Ingestor
	catalog  catalog.Catalog
	titles   *catalog.TitleIndex
	metrics  *metrics.Metrics
	config   *config.Config
	validate *validator.Validate
	logger   *zap.Logger
	server   *http.Server

	watch      WatchService
	configPath string
	configMu   sync.Mutex
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *zap.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithMetrics exposes m at /metrics and records per-route request metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithTitleIndex enables title search on GET /api/v1/instructions?q=.
func WithTitleIndex(t *catalog.TitleIndex) Option {
	return func(s *Server) { s.titles = t }
}

// WithWatch enables the watch directory endpoints. When configPath is set, directory
// changes are persisted to that config file.
func WithWatch(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server over a built pipeline, ingestor and catalog.
func NewServer(p *pipeline.Pipeline, ing *indexer.Ingestor, cat catalog.Catalog, cfg *config.Config, opts ...Option) *Server {
	s := &Server{
		pipeline: p,
		ingestor: ing,
		catalog:  cat,
		config:   cfg,
		validate: validator.New(),
		logger:   zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Handler returns the routed API handler with middleware applied.
func (s *Server) Handler() http.Handler {
	timeout := s.config.Server.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(s.metrics.Middleware)
	r.Use(middleware.Timeout(timeout))
	r.Use(middleware.Compress(5))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/query", s.handleQuery)
		r.Post("/search", s.handleSearch)

		r.Route("/instructions", func(r chi.Router) {
			r.Get("/", s.handleListInstructions)
			r.Post("/", s.handleIngest)
			r.Get("/{id}", s.handleGetInstruction)
			r.Delete("/{id}", s.handleDeleteInstruction)
			r.Post("/{id}/activate", s.handleSetActive(true))
			r.Post("/{id}/deactivate", s.handleSetActive(false))
			r.Get("/{id}/history", s.handleHistory)
		})

		r.Get("/tags", s.handleListTags)
		r.Post("/tags", s.handleAddTag)
		r.Get("/status", s.handleStatus)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
