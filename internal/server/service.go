package server

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/catalog"
	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/indexer"
	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/pipeline"
	"github.com/hyperjump/spravka/internal/storage"
)

// Ingest ingests req.Path, a single file or a directory filtered by exts. A missing path
// wraps models.ErrNotFound. A directory with some failing files still succeeds when at least
// one file was ingested; the failures are logged.
func Ingest(ctx context.Context, ing *indexer.Ingestor, req *IngestRequest, exts []string, logger *zap.Logger) (*IngestResponse, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		return nil, fmt.Errorf("invalid path %q: %w", req.Path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("path %s: %w", abs, models.ErrNotFound)
		}
		return nil, err
	}
	opts := indexer.IngestOptions{Author: req.Author, Tags: req.Tags, Active: true}
	if req.Active != nil {
		opts.Active = *req.Active
	}

	if info.IsDir() {
		n, err := ing.IngestDirectory(ctx, abs, exts, opts)
		if err != nil && n == 0 {
			return nil, err
		}
		if err != nil {
			logger.Warn("some files failed to ingest", zap.String("path", abs), zap.Error(err))
		}
		return &IngestResponse{Path: abs, Files: n}, nil
	}

	report, err := ing.IngestFile(ctx, abs, opts)
	if err != nil {
		return nil, err
	}
	return &IngestResponse{
		Path:           report.Path,
		InstructionIDs: report.InstructionIDs,
		Titles:         report.Titles,
		Chunks:         report.Chunks,
		Replaced:       report.Replaced,
	}, nil
}

// FindByTitle runs a title search and resolves hits against the catalog, skipping entries
// that disappeared between the two lookups.
func FindByTitle(ctx context.Context, titles *catalog.TitleIndex, cat catalog.Catalog, query string, limit int) ([]*models.Instruction, error) {
	hits, err := titles.Search(query, limit)
	if err != nil {
		return nil, err
	}
	out := make([]*models.Instruction, 0, len(hits))
	for _, h := range hits {
		inst, err := cat.GetInstruction(ctx, h.ID)
		if errors.Is(err, models.ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, inst)
	}
	return out, nil
}

// ListInstructions lists catalog entries, by tag when tag is set.
func ListInstructions(ctx context.Context, cat catalog.Catalog, activeOnly bool, tag string) ([]*models.Instruction, error) {
	var (
		list []*models.Instruction
		err  error
	)
	if tag != "" {
		list, err = cat.ListByTag(ctx, tag)
	} else {
		list, err = cat.ListInstructions(ctx, activeOnly)
	}
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []*models.Instruction{}
	}
	return list, nil
}

// BuildStatus collects pipeline statistics, disk usage and the effective settings.
// Disk usage failures are logged and leave the usage fields empty.
func BuildStatus(ctx context.Context, p *pipeline.Pipeline, cfg *config.Config, logger *zap.Logger) (*StatusResponse, error) {
	stats, err := p.Stats(ctx)
	if err != nil {
		return nil, err
	}
	resp := &StatusResponse{
		Stats: stats,
		Config: map[string]any{
			"embedding_provider":   cfg.Embedding.Provider,
			"embedding_model":      cfg.Embedding.Model,
			"embedding_dimensions": cfg.Embedding.Dimensions,
			"generation_model":     cfg.Generation.Model,
			"chunk_max_length":     cfg.Retrieval.ChunkMaxLength,
			"chunk_overlap":        cfg.Retrieval.ChunkOverlap,
			"top_k":                cfg.Retrieval.TopK,
			"mode":                 cfg.Retrieval.Mode,
			"semantic_weight":      cfg.Retrieval.SemanticWeight,
			"bm25_weight":          cfg.Retrieval.BM25Weight,
		},
	}
	usage, total, err := storage.DiskUsage(map[string]string{
		"chunks":  cfg.Storage.DatabasePath,
		"catalog": cfg.Storage.CatalogPath,
		"titles":  cfg.Storage.TitleIndexPath,
		"vectors": cfg.Storage.VectorSnapshotPath,
	})
	if err != nil {
		if logger != nil {
			logger.Warn("status: disk usage failed", zap.Error(err))
		}
		return resp, nil
	}
	resp.DiskUsage = usage
	resp.DiskUsageBytes = total
	return resp, nil
}
