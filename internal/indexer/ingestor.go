package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/catalog"
	"github.com/hyperjump/spravka/internal/config"
	"github.com/hyperjump/spravka/internal/embedding"
	"github.com/hyperjump/spravka/internal/extract"
	"github.com/hyperjump/spravka/internal/fileid"
	"github.com/hyperjump/spravka/internal/keyword"
	"github.com/hyperjump/spravka/internal/metrics"
	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/search"
	"github.com/hyperjump/spravka/internal/vector"
)

// ErrEmptyDocument is returned when a file yields no text to index.
var ErrEmptyDocument = errors.New("document is empty")

// IngestOptions describe who added a file and how its instructions start out.
type IngestOptions struct {
	Author string
	Tags   []string
	Active bool
}

// IngestReport summarizes one ingested file.
type IngestReport struct {
	Path           string   `json:"path"`
	DocumentID     string   `json:"doc_id"`
	InstructionIDs []string `json:"instruction_ids"`
	Titles         []string `json:"titles"`
	Chunks         int      `json:"chunks"`
	Replaced       int      `json:"replaced_chunks"`
}

// Deps are the stores an Ingestor writes to. Titles and Ranker are optional.
type Deps struct {
	Store     *vector.Store
	Embedder  embedding.Embedder
	Catalog   catalog.Catalog
	Titles    *catalog.TitleIndex
	Ranker    *keyword.Ranker
	Extractor *extract.Extractor
}

// Ingestor turns files into instructions and chunks and keeps the vector store, catalog,
// title index and lexical ranker in step.
type Ingestor struct {
	store     *vector.Store
	embedder  embedding.Embedder
	catalog   catalog.Catalog
	titles    *catalog.TitleIndex
	ranker    *keyword.Ranker
	extractor *extract.Extractor
	chunker   *Chunker
	actor     string
	metrics   *metrics.Metrics
	logger    *zap.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithLogger sets the ingestor logger.
func WithLogger(l *zap.Logger) IngestorOption {
	return func(in *Ingestor) {
		if l != nil {
			in.logger = l
		}
	}
}

// WithMetrics records ingestion counts into m.
func WithMetrics(m *metrics.Metrics) IngestorOption {
	return func(in *Ingestor) {
		in.metrics = m
	}
}

// WithActor sets the name written to instruction history on activate and deactivate.
func WithActor(name string) IngestorOption {
	return func(in *Ingestor) {
		if name != "" {
			in.actor = name
		}
	}
}

// NewIngestor creates an ingestor. The chunking window comes from cfg and is validated here.
func NewIngestor(deps Deps, cfg config.RetrievalConfig, opts ...IngestorOption) (*Ingestor, error) {
	if deps.Store == nil || deps.Embedder == nil || deps.Catalog == nil {
		return nil, errors.New("ingestor: store, embedder and catalog are required")
	}
	chunker, err := NewChunker(cfg.ChunkMaxLength, cfg.ChunkOverlap)
	if err != nil {
		return nil, err
	}
	in := &Ingestor{
		store:     deps.Store,
		embedder:  deps.Embedder,
		catalog:   deps.Catalog,
		titles:    deps.Titles,
		ranker:    deps.Ranker,
		extractor: deps.Extractor,
		chunker:   chunker,
		actor:     "system",
		logger:    zap.NewNop(),
	}
	if in.extractor == nil {
		in.extractor = extract.NewExtractor()
	}
	for _, opt := range opts {
		opt(in)
	}
	return in, nil
}

// Supported reports whether files with extension ext can be ingested.
func (in *Ingestor) Supported(ext string) bool {
	return in.extractor.Supported(ext)
}

// IngestFile extracts path, splits it into instructions and indexes their chunks. Any
// instructions previously ingested from the same path are replaced. Unsupported extensions
// return an error wrapping models.ErrUnsupportedFormat.
func (in *Ingestor) IngestFile(ctx context.Context, path string, opts IngestOptions) (*IngestReport, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if !in.extractor.Supported(ext) {
		return nil, fmt.Errorf("%w: %s", models.ErrUnsupportedFormat, ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}

	text, fileTitle, err := in.extractor.ExtractWithTitle(absPath)
	if err != nil {
		return nil, fmt.Errorf("extract content: %w", err)
	}
	parsed := SplitInstructions(text, ext, fileTitle)
	if len(parsed) == 0 {
		return nil, fmt.Errorf("%s: %w", absPath, ErrEmptyDocument)
	}

	docID := fileid.DocumentID(absPath)
	report := &IngestReport{Path: absPath, DocumentID: docID}
	// The previous version stays searchable until the new one is fully written.
	prev, err := in.catalog.ListByDocID(ctx, docID)
	if err != nil {
		return nil, fmt.Errorf("failed to list instructions: %w", err)
	}

	now := time.Now()
	filename := filepath.Base(absPath)
	instructions := make([]*models.Instruction, 0, len(parsed))
	var chunks []*models.Chunk
	for _, p := range parsed {
		inst := &models.Instruction{
			ID:             uuid.NewString(),
			DocID:          docID,
			Title:          p.Title,
			FilePath:       absPath,
			FileFormat:     strings.TrimPrefix(ext, "."),
			SourceType:     p.SourceType,
			SeparatorIndex: p.SeparatorIndex,
			Active:         opts.Active,
			Author:         opts.Author,
			Tags:           opts.Tags,
			Images:         p.Images,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		pieces := in.chunker.Chunks(PrepareText(p.Title, p.Body))
		for i, piece := range pieces {
			chunks = append(chunks, &models.Chunk{
				ID:            fileid.ChunkID(inst.ID, i),
				Text:          piece,
				DocumentID:    docID,
				InstructionID: inst.ID,
				Filename:      filename,
				FilePath:      absPath,
				Title:         p.Title,
				ChunkIndex:    i,
				TotalChunks:   len(pieces),
				Active:        opts.Active,
				Author:        opts.Author,
				Tags:          opts.Tags,
				Images:        inst.ImagePaths(),
				CreatedAt:     now,
			})
		}
		instructions = append(instructions, inst)
	}

	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	vecs, err := in.embedder.EmbedDocuments(ctx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if err := in.store.UpsertBatch(ctx, chunks, vecs); err != nil {
		return nil, fmt.Errorf("failed to store chunks: %w", err)
	}

	keep := make(map[string]bool, len(instructions))
	for _, inst := range instructions {
		keep[inst.ID] = true
	}
	for i, inst := range instructions {
		if err := in.catalog.AddInstruction(ctx, inst); err != nil {
			in.discard(ctx, instructions, i)
			return nil, fmt.Errorf("failed to record instruction: %w", err)
		}
		if in.titles != nil {
			if err := in.titles.Index(inst.ID, inst.Title, inst.Tags); err != nil {
				in.logger.Warn("Failed to index title", zap.String("instruction_id", inst.ID), zap.Error(err))
			}
		}
		report.InstructionIDs = append(report.InstructionIDs, inst.ID)
		report.Titles = append(report.Titles, inst.Title)
	}
	report.Chunks = len(chunks)

	if report.Replaced, err = in.store.PruneDocument(ctx, docID, keep); err != nil {
		in.logger.Warn("Failed to prune previous chunks", zap.String("doc_id", docID), zap.Error(err))
	}
	for _, old := range prev {
		in.forget(ctx, old.ID)
	}
	in.refreshLexical()

	in.metrics.AddIngested("file", 1)
	in.metrics.AddIngested("instruction", len(instructions))
	in.metrics.AddIngested("chunk", len(chunks))
	in.logger.Info("File ingested",
		zap.String("path", absPath),
		zap.String("doc_id", docID),
		zap.Int("instructions", len(instructions)),
		zap.Int("chunks", len(chunks)),
		zap.Int("replaced_chunks", report.Replaced))
	return report, nil
}

// IngestDirectory walks dir recursively and ingests each regular file whose extension is in
// exts (any supported extension when exts is empty). Failing files are logged and skipped;
// their errors are joined into the returned error. Returns the number of files ingested.
func (in *Ingestor) IngestDirectory(ctx context.Context, dir string, exts []string, opts IngestOptions) (int, error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}

	var (
		n    int
		errs []error
	)
	walkErr := filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if !in.extractor.Supported(ext) || (len(exts) > 0 && !extensionAllowed(ext, exts)) {
			return nil
		}
		// Resolve symlinks so only regular files are ingested.
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		if _, err := in.IngestFile(ctx, path, opts); err != nil {
			in.logger.Warn("Skipping file", zap.String("path", path), zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", path, err))
			return nil
		}
		n++
		return nil
	})
	if walkErr != nil {
		errs = append(errs, walkErr)
	}
	return n, errors.Join(errs...)
}

// DeleteInstruction removes an instruction's chunks, catalog record and title entry.
// Returns models.ErrNotFound when nothing was known under id.
func (in *Ingestor) DeleteInstruction(ctx context.Context, id string) error {
	removed, err := in.store.DeleteByInstructionID(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to delete chunks: %w", err)
	}
	catErr := in.catalog.DeleteInstruction(ctx, id)
	if catErr != nil && !(errors.Is(catErr, models.ErrNotFound) && removed > 0) {
		return catErr
	}
	if in.titles != nil {
		if err := in.titles.Delete(id); err != nil {
			in.logger.Warn("Failed to delete title", zap.String("instruction_id", id), zap.Error(err))
		}
	}
	in.refreshLexical()
	in.logger.Info("Instruction deleted", zap.String("instruction_id", id), zap.Int("chunks", removed))
	return nil
}

// DeactivateInstruction hides an instruction from default retrieval without deleting it.
func (in *Ingestor) DeactivateInstruction(ctx context.Context, id string) error {
	return in.setActive(ctx, id, false)
}

// ActivateInstruction makes an instruction retrievable again.
func (in *Ingestor) ActivateInstruction(ctx context.Context, id string) error {
	return in.setActive(ctx, id, true)
}

func (in *Ingestor) setActive(ctx context.Context, id string, active bool) error {
	if err := in.catalog.SetActive(ctx, id, active, in.actor); err != nil {
		return err
	}
	n, err := in.store.SetActive(ctx, id, active)
	if err != nil {
		return fmt.Errorf("failed to update chunks: %w", err)
	}
	in.refreshLexical()
	in.logger.Info("Instruction status changed",
		zap.String("instruction_id", id),
		zap.Bool("active", active),
		zap.Int("chunks", n))
	return nil
}

// RemoveFile deletes everything ingested from path. Returns the number of chunks removed.
func (in *Ingestor) RemoveFile(ctx context.Context, path string) (int, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	n, err := in.removeDocument(ctx, fileid.DocumentID(absPath))
	if err != nil {
		return 0, err
	}
	in.refreshLexical()
	if n > 0 {
		in.logger.Info("File removed", zap.String("path", absPath), zap.Int("chunks", n))
	}
	return n, nil
}

func (in *Ingestor) removeDocument(ctx context.Context, docID string) (int, error) {
	prev, err := in.catalog.ListByDocID(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to list instructions: %w", err)
	}
	n, err := in.store.DeleteByDocumentID(ctx, docID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete chunks: %w", err)
	}
	for _, inst := range prev {
		if err := in.catalog.DeleteInstruction(ctx, inst.ID); err != nil && !errors.Is(err, models.ErrNotFound) {
			return n, fmt.Errorf("failed to delete instruction %s: %w", inst.ID, err)
		}
		if in.titles != nil {
			_ = in.titles.Delete(inst.ID)
		}
	}
	return n, nil
}

// ResetReport counts what Reset removed.
type ResetReport struct {
	Instructions int `json:"instructions"`
	Chunks       int `json:"chunks"`
	Tags         int `json:"tags"`
}

// Reset empties the knowledge base: every chunk, catalog instruction and title entry.
// With pruneTags, tags no instruction uses are dropped as well.
func (in *Ingestor) Reset(ctx context.Context, pruneTags bool) (*ResetReport, error) {
	list, err := in.catalog.ListInstructions(ctx, false)
	if err != nil {
		return nil, fmt.Errorf("failed to list instructions: %w", err)
	}
	report := &ResetReport{Instructions: len(list)}
	if report.Chunks, err = in.store.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear chunks: %w", err)
	}
	if err := in.catalog.Clear(ctx); err != nil {
		return nil, fmt.Errorf("failed to clear catalog: %w", err)
	}
	if in.titles != nil {
		for _, inst := range list {
			if err := in.titles.Delete(inst.ID); err != nil {
				in.logger.Warn("Failed to delete title", zap.String("instruction_id", inst.ID), zap.Error(err))
			}
		}
	}
	if pruneTags {
		if report.Tags, err = in.catalog.PruneTags(ctx); err != nil {
			return report, err
		}
	}
	in.refreshLexical()
	in.logger.Info("Knowledge base reset",
		zap.Int("instructions", report.Instructions),
		zap.Int("chunks", report.Chunks),
		zap.Int("tags", report.Tags))
	return report, nil
}

// discard undoes a partially recorded version: the chunks of every instruction and the
// catalog entries of the first recorded ones.
func (in *Ingestor) discard(ctx context.Context, instructions []*models.Instruction, recorded int) {
	for i, inst := range instructions {
		if _, err := in.store.DeleteByInstructionID(ctx, inst.ID); err != nil {
			in.logger.Error("Rollback of chunks failed", zap.String("instruction_id", inst.ID), zap.Error(err))
		}
		if i < recorded {
			in.forget(ctx, inst.ID)
		}
	}
}

// forget drops an instruction from the catalog and the title index.
func (in *Ingestor) forget(ctx context.Context, id string) {
	if err := in.catalog.DeleteInstruction(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		in.logger.Warn("Failed to delete instruction", zap.String("instruction_id", id), zap.Error(err))
	}
	if in.titles != nil {
		_ = in.titles.Delete(id)
	}
}

func (in *Ingestor) refreshLexical() {
	if in.ranker == nil {
		return
	}
	in.ranker.EnsureFresh(in.store.Generation(), func() ([]keyword.Document, uint64) {
		chunks, gen := in.store.Snapshot(false)
		return search.Documents(chunks), gen
	})
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
