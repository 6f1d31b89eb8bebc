package keyword

import (
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Ranker serves BM25 scoring from the latest complete snapshot. Rebuilds happen off to the
// side and are published with a single pointer swap, so readers never see a partial index.
type Ranker struct {
	params  Params
	current atomic.Pointer[BM25Index]
	speller atomic.Pointer[SpellChecker]
	buildMu sync.Mutex
	logger  *zap.Logger
}

// RankerOption configures a Ranker.
type RankerOption func(*Ranker)

// WithLogger sets the logger for the ranker.
func WithLogger(l *zap.Logger) RankerOption {
	return func(r *Ranker) {
		if l != nil {
			r.logger = l
		}
	}
}

// NewRanker returns a ranker holding an empty snapshot at generation 0.
func NewRanker(params Params, opts ...RankerOption) *Ranker {
	r := &Ranker{params: params, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.publish(NewBM25Index(nil, params))
	return r
}

// Params returns the BM25 parameters used for every snapshot.
func (r *Ranker) Params() Params { return r.params }

// Current returns the published snapshot.
func (r *Ranker) Current() *BM25Index { return r.current.Load() }

// Generation returns the generation of the published snapshot.
func (r *Ranker) Generation() uint64 { return r.current.Load().generation }

// Rebuild builds a snapshot over docs tagged with generation and publishes it, unless a
// snapshot at the same or a newer generation is already published.
func (r *Ranker) Rebuild(docs []Document, generation uint64) *BM25Index {
	r.buildMu.Lock()
	defer r.buildMu.Unlock()
	if cur := r.current.Load(); cur.generation >= generation && generation != 0 {
		return cur
	}
	idx := NewBM25Index(docs, r.params)
	idx.generation = generation
	r.publish(idx)
	r.logger.Debug("Lexical index rebuilt",
		zap.Uint64("generation", generation),
		zap.Int("documents", idx.Len()),
		zap.Int("terms", len(idx.docFreq)))
	return idx
}

// EnsureFresh rebuilds from source when the published snapshot is older than generation.
// source is only called when a rebuild is needed; it must return the corpus for that generation.
func (r *Ranker) EnsureFresh(generation uint64, source func() ([]Document, uint64)) *BM25Index {
	if cur := r.current.Load(); cur.generation == generation {
		return cur
	}
	docs, gen := source()
	return r.Rebuild(docs, gen)
}

// Score scores query against the published snapshot.
func (r *Ranker) Score(query string) []*KeywordResult {
	return r.current.Load().Score(query)
}

func (r *Ranker) publish(idx *BM25Index) {
	sc := NewSpellChecker(idx, WithMaxDistance(2), WithMinTermLength(4))
	_ = sc.RefreshCache()
	r.speller.Store(sc)
	r.current.Store(idx)
}

// Suggestions returns up to n corrected queries for words of query that the current
// vocabulary does not contain. Nil when every word is known.
func (r *Ranker) Suggestions(query string, n int) []string {
	return r.speller.Load().GetTopSuggestions(query, n)
}
