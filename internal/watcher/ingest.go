package watcher

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/indexer"
	"github.com/hyperjump/spravka/internal/models"
)

// Ingestor is the part of indexer.Ingestor the watcher drives.
type Ingestor interface {
	IngestFile(ctx context.Context, path string, opts indexer.IngestOptions) (*indexer.IngestReport, error)
	RemoveFile(ctx context.Context, path string) (int, error)
}

// IngestHandler ingests changed files and removes deleted ones. Failures are logged.
type IngestHandler struct {
	ingestor Ingestor
	opts     indexer.IngestOptions
	logger   *zap.Logger
}

// NewIngestHandler returns a Handler that ingests with opts.
func NewIngestHandler(ing Ingestor, opts indexer.IngestOptions, logger *zap.Logger) *IngestHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &IngestHandler{ingestor: ing, opts: opts, logger: logger}
}

// FileChanged ingests path, replacing earlier instructions from it.
func (h *IngestHandler) FileChanged(ctx context.Context, path string) {
	report, err := h.ingestor.IngestFile(ctx, path, h.opts)
	switch {
	case errors.Is(err, models.ErrUnsupportedFormat), errors.Is(err, indexer.ErrEmptyDocument):
		h.logger.Debug("Skipping file", zap.String("path", path), zap.Error(err))
	case err != nil:
		h.logger.Error("Failed to ingest changed file", zap.String("path", path), zap.Error(err))
	default:
		h.logger.Info("Ingested changed file",
			zap.String("path", path),
			zap.Int("instructions", len(report.InstructionIDs)),
			zap.Int("chunks", report.Chunks))
	}
}

// FileRemoved drops everything ingested from path.
func (h *IngestHandler) FileRemoved(ctx context.Context, path string) {
	n, err := h.ingestor.RemoveFile(ctx, path)
	if err != nil {
		h.logger.Error("Failed to remove file", zap.String("path", path), zap.Error(err))
		return
	}
	if n > 0 {
		h.logger.Info("Removed deleted file", zap.String("path", path), zap.Int("chunks", n))
	}
}
