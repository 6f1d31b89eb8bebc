package models

import (
	"fmt"
	"strings"
)

// SearchMode selects the retrieval path.
type SearchMode string

const (
	// ModeHybrid fuses semantic and BM25 candidates.
	ModeHybrid SearchMode = "hybrid"
	// ModeSemantic uses vector distance only.
	ModeSemantic SearchMode = "semantic"
)

// MaxTopK caps how many candidates a single request may assemble.
const MaxTopK = 50

// QueryRequest is a question against the knowledge base.
type QueryRequest struct {
	Query           string     `json:"query"`
	TopK            int        `json:"top_k,omitempty"`
	Mode            SearchMode `json:"mode,omitempty"`
	IncludeInactive bool       `json:"include_inactive,omitempty"`
	Tag             string     `json:"tag,omitempty"`
}

// Validate rejects an empty query and fills defaults: topK from defaultTopK (capped at MaxTopK)
// and mode from defaultMode. Unknown modes are an error.
func (q *QueryRequest) Validate(defaultTopK int, defaultMode SearchMode) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return ErrEmptyQuery
	}
	if q.TopK <= 0 {
		q.TopK = defaultTopK
	}
	if q.TopK <= 0 {
		q.TopK = 5
	}
	if q.TopK > MaxTopK {
		q.TopK = MaxTopK
	}
	if q.Mode == "" {
		q.Mode = defaultMode
	}
	if q.Mode == "" {
		q.Mode = ModeHybrid
	}
	switch q.Mode {
	case ModeHybrid, ModeSemantic:
	default:
		return fmt.Errorf("unknown search mode %q (supported: hybrid, semantic)", q.Mode)
	}
	return nil
}
