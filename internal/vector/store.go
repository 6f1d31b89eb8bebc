package vector

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/storage"
)

// Hit is one nearest-neighbor result with its chunk.
type Hit struct {
	Chunk    *models.Chunk
	Distance float64
}

// Filter restricts a query. The zero value returns active chunks only.
type Filter struct {
	IncludeInactive bool
	Tag             string
}

func (f Filter) accepts(c *models.Chunk) bool {
	if !f.IncludeInactive && !c.Active {
		return false
	}
	if f.Tag != "" && !c.HasTag(f.Tag) {
		return false
	}
	return true
}

// Store keeps chunk metadata and embeddings consistent between durable storage and the
// in-memory index. Every write bumps a generation counter under the write lock, so a reader
// sees either the state before a write or after it.
type Store struct {
	mu           sync.RWMutex
	storage      storage.Storage
	index        VectorIndex
	chunks       map[string]*models.Chunk
	order        []string
	generation   uint64
	snapshotPath string
	logger       *zap.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithStoreLogger sets the logger for the store.
func WithStoreLogger(l *zap.Logger) StoreOption {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSnapshotPath sets where the vector index is saved on Close and read on Load.
func WithSnapshotPath(path string) StoreOption {
	return func(s *Store) {
		s.snapshotPath = path
	}
}

// NewStore creates a store over st and idx. Call Load to pick up persisted chunks.
func NewStore(st storage.Storage, idx VectorIndex, opts ...StoreOption) *Store {
	s := &Store{
		storage: st,
		index:   idx,
		chunks:  make(map[string]*models.Chunk),
		logger:  zap.NewNop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Load rebuilds the in-memory state from storage. A saved index snapshot is reused when it
// holds exactly the stored chunk ids; otherwise vectors are re-added from stored embeddings.
func (s *Store) Load(ctx context.Context) error {
	chunks, err := s.storage.ListChunks(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to list chunks: %v", models.ErrIndexUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.chunks = make(map[string]*models.Chunk, len(chunks))
	s.order = make([]string, 0, len(chunks))
	for _, c := range chunks {
		s.chunks[c.ID] = c
		s.order = append(s.order, c.ID)
	}

	if s.snapshotMatches(chunks) {
		s.logger.Info("Vector index loaded from snapshot",
			zap.String("path", s.snapshotPath), zap.Int("vectors", s.index.Size()))
	} else {
		if err := s.rebuildIndex(ctx, chunks); err != nil {
			return err
		}
		s.logger.Info("Vector index rebuilt from storage", zap.Int("vectors", s.index.Size()))
	}
	for _, c := range chunks {
		c.Embedding = nil
	}
	s.generation++
	return nil
}

func (s *Store) snapshotMatches(chunks []*models.Chunk) bool {
	if s.snapshotPath == "" {
		return false
	}
	if err := s.index.Load(s.snapshotPath); err != nil {
		s.logger.Warn("Ignoring vector snapshot", zap.String("path", s.snapshotPath), zap.Error(err))
		return false
	}
	if s.index.Size() != len(chunks) {
		return false
	}
	checker, ok := s.index.(interface{ Has(id string) bool })
	if !ok {
		return true
	}
	for _, c := range chunks {
		if !checker.Has(c.ID) {
			return false
		}
	}
	return true
}

func (s *Store) rebuildIndex(ctx context.Context, chunks []*models.Chunk) error {
	if lister, ok := s.index.(interface{ IDs() []string }); ok {
		if err := s.index.Remove(ctx, lister.IDs()); err != nil {
			return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
		}
	}
	ids := make([]string, 0, len(chunks))
	vecs := make([][]float32, 0, len(chunks))
	for _, c := range chunks {
		if len(c.Embedding) == 0 {
			s.logger.Warn("Chunk has no stored embedding", zap.String("chunk_id", c.ID))
			continue
		}
		ids = append(ids, c.ID)
		vecs = append(vecs, c.Embedding)
	}
	if err := s.index.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return nil
}

// Upsert writes one chunk and its vector.
func (s *Store) Upsert(ctx context.Context, chunk *models.Chunk, vec []float32) error {
	return s.UpsertBatch(ctx, []*models.Chunk{chunk}, [][]float32{vec})
}

// UpsertBatch writes chunks and vectors as one generation.
func (s *Store) UpsertBatch(ctx context.Context, chunks []*models.Chunk, vecs [][]float32) error {
	if len(chunks) != len(vecs) {
		return fmt.Errorf("chunks and vectors length mismatch: %d != %d", len(chunks), len(vecs))
	}
	if len(chunks) == 0 {
		return nil
	}
	if dim, ok := s.index.(interface{ Dimensions() int }); ok {
		for i, v := range vecs {
			if len(v) != dim.Dimensions() {
				return fmt.Errorf("%w: chunk %s has dimension %d, index expects %d",
					models.ErrIndexUnavailable, chunks[i].ID, len(v), dim.Dimensions())
			}
		}
	}
	ids := make([]string, len(chunks))
	for i, c := range chunks {
		c.Embedding = vecs[i]
		ids[i] = c.ID
	}
	if err := s.storage.UpsertChunks(ctx, chunks); err != nil {
		return fmt.Errorf("%w: failed to persist chunks: %v", models.ErrIndexUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.index.Add(ctx, ids, vecs); err != nil {
		return fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	for _, c := range chunks {
		stored := *c
		stored.Embedding = nil
		if _, ok := s.chunks[c.ID]; !ok {
			s.order = append(s.order, c.ID)
		}
		s.chunks[c.ID] = &stored
	}
	s.generation++
	return nil
}

// Query returns the k nearest chunks accepted by filter, nearest first.
func (s *Store) Query(ctx context.Context, vec []float32, k int, filter Filter) ([]*Hit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results, err := s.index.Search(ctx, vec, k, func(id string) bool {
		c, ok := s.chunks[id]
		return ok && filter.accepts(c)
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	hits := make([]*Hit, 0, len(results))
	for _, r := range results {
		hits = append(hits, &Hit{Chunk: s.chunks[r.ID], Distance: r.Distance})
	}
	return hits, nil
}

// DeleteByInstructionID removes every chunk of an instruction and returns how many were removed.
func (s *Store) DeleteByInstructionID(ctx context.Context, instructionID string) (int, error) {
	if _, err := s.storage.DeleteChunksByInstructionID(ctx, instructionID); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return s.removeWhere(ctx, func(c *models.Chunk) bool { return c.InstructionID == instructionID })
}

// DeleteByDocumentID removes every chunk produced from a file.
func (s *Store) DeleteByDocumentID(ctx context.Context, docID string) (int, error) {
	if _, err := s.storage.DeleteChunksByDocumentID(ctx, docID); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return s.removeWhere(ctx, func(c *models.Chunk) bool { return c.DocumentID == docID })
}

// PruneDocument removes the chunks of docID whose instruction is not in keep and returns
// how many were removed.
func (s *Store) PruneDocument(ctx context.Context, docID string, keep map[string]bool) (int, error) {
	s.mu.RLock()
	stale := make(map[string]bool)
	for _, c := range s.chunks {
		if c.DocumentID == docID && !keep[c.InstructionID] {
			stale[c.InstructionID] = true
		}
	}
	s.mu.RUnlock()

	removed := 0
	for id := range stale {
		n, err := s.DeleteByInstructionID(ctx, id)
		removed += n
		if err != nil {
			return removed, err
		}
	}
	return removed, nil
}

// Clear removes every chunk from storage and the index and returns how many were held.
func (s *Store) Clear(ctx context.Context) (int, error) {
	if _, err := s.storage.DeleteAllChunks(ctx); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	return s.removeWhere(ctx, func(*models.Chunk) bool { return true })
}

func (s *Store) removeWhere(ctx context.Context, match func(*models.Chunk) bool) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var ids []string
	kept := s.order[:0:0]
	for _, id := range s.order {
		if match(s.chunks[id]) {
			ids = append(ids, id)
			continue
		}
		kept = append(kept, id)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	if err := s.index.Remove(ctx, ids); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}
	for _, id := range ids {
		delete(s.chunks, id)
	}
	s.order = kept
	s.generation++
	return len(ids), nil
}

// SetActive flips the active flag on every chunk of an instruction.
func (s *Store) SetActive(ctx context.Context, instructionID string, active bool) (int, error) {
	if _, err := s.storage.SetActiveByInstructionID(ctx, instructionID, active); err != nil {
		return 0, fmt.Errorf("%w: %v", models.ErrIndexUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range s.order {
		c := s.chunks[id]
		if c.InstructionID != instructionID || c.Active == active {
			continue
		}
		// Readers may hold the old pointer; publish a copy.
		updated := *c
		updated.Active = active
		s.chunks[id] = &updated
		n++
	}
	if n > 0 {
		s.generation++
	}
	return n, nil
}

// Get returns a chunk by id.
func (s *Store) Get(id string) (*models.Chunk, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[id]
	return c, ok
}

// Snapshot returns chunks in insertion order together with the generation they belong to.
func (s *Store) Snapshot(includeInactive bool) ([]*models.Chunk, uint64) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Chunk, 0, len(s.order))
	for _, id := range s.order {
		c := s.chunks[id]
		if includeInactive || c.Active {
			out = append(out, c)
		}
	}
	return out, s.generation
}

// Generation returns the current write generation.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

// Count returns the number of chunks held.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

// IndexSize returns the number of vectors in the underlying index.
func (s *Store) IndexSize() int {
	return s.index.Size()
}

// Save writes the vector index snapshot when a snapshot path is configured.
func (s *Store) Save() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.snapshotPath == "" {
		return nil
	}
	return s.index.Save(s.snapshotPath)
}

// Close saves the snapshot and closes the index. Storage is owned by the caller.
func (s *Store) Close() error {
	if err := s.Save(); err != nil {
		s.logger.Warn("Failed to save vector snapshot", zap.Error(err))
	}
	return s.index.Close()
}
