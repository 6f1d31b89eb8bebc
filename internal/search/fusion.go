package search

import (
	"sort"

	"github.com/hyperjump/spravka/internal/keyword"
	"github.com/hyperjump/spravka/internal/models"
	"github.com/hyperjump/spravka/internal/vector"
)

// NormalizeMinMax scales scores into [0,1]. When all scores are equal every entry becomes 1.0.
func NormalizeMinMax(scores []float64) []float64 {
	if len(scores) == 0 {
		return nil
	}
	lo, hi := scores[0], scores[0]
	for _, s := range scores[1:] {
		if s < lo {
			lo = s
		}
		if s > hi {
			hi = s
		}
	}
	out := make([]float64, len(scores))
	span := hi - lo
	for i, s := range scores {
		if span == 0 {
			out[i] = 1.0
			continue
		}
		out[i] = (s - lo) / span
	}
	return out
}

// Combine fuses a semantic hit list and a lexical result list into one ranking.
// Semantic similarity is 1 - distance. Each list is min-max normalized on its own and a
// chunk missing from a list contributes 0 for it. Candidates are sorted by
// semanticWeight*semantic + bm25Weight*lexical, descending. Ties keep first-seen order:
// semantic candidates in semantic order, then lexical-only ones in lexical order.
// Lexical-only candidates carry Distance 1.0 and a nil Chunk for the caller to resolve.
func Combine(semantic []*vector.Hit, lexical []*keyword.KeywordResult, semanticWeight, bm25Weight float64) []*models.Candidate {
	byID := make(map[string]*models.Candidate, len(semantic)+len(lexical))
	order := make([]*models.Candidate, 0, len(semantic)+len(lexical))

	semScores := make([]float64, len(semantic))
	for i, h := range semantic {
		semScores[i] = 1 - h.Distance
	}
	for i, norm := range NormalizeMinMax(semScores) {
		h := semantic[i]
		if _, dup := byID[h.Chunk.ID]; dup {
			continue
		}
		raw := semScores[i]
		c := &models.Candidate{
			ChunkID:            h.Chunk.ID,
			Chunk:              h.Chunk,
			Distance:           h.Distance,
			SemanticScore:      &raw,
			NormalizedSemantic: norm,
		}
		byID[c.ChunkID] = c
		order = append(order, c)
	}

	lexScores := make([]float64, len(lexical))
	for i, r := range lexical {
		lexScores[i] = r.Score
	}
	for i, norm := range NormalizeMinMax(lexScores) {
		r := lexical[i]
		raw := lexScores[i]
		c, ok := byID[r.ID]
		if !ok {
			c = &models.Candidate{ChunkID: r.ID, Distance: 1.0}
			byID[r.ID] = c
			order = append(order, c)
		} else if c.LexicalScore != nil {
			continue
		}
		c.LexicalScore = &raw
		c.NormalizedLexical = norm
	}

	for _, c := range order {
		c.HybridScore = semanticWeight*c.NormalizedSemantic + bm25Weight*c.NormalizedLexical
	}
	sort.SliceStable(order, func(i, j int) bool {
		return order[i].HybridScore > order[j].HybridScore
	})
	return order
}

// FromHits converts semantic hits into candidates without fusion, preserving hit order.
// HybridScore is the raw similarity.
func FromHits(hits []*vector.Hit) []*models.Candidate {
	out := make([]*models.Candidate, 0, len(hits))
	for _, h := range hits {
		sim := 1 - h.Distance
		out = append(out, &models.Candidate{
			ChunkID:            h.Chunk.ID,
			Chunk:              h.Chunk,
			Distance:           h.Distance,
			SemanticScore:      &sim,
			NormalizedSemantic: sim,
			HybridScore:        sim,
		})
	}
	return out
}
