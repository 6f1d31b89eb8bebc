// Package keyword provides lexical (BM25) scoring over chunk text and query spell checking.
package keyword

// Document is one entry of a lexical corpus.
type Document struct {
	ID   string
	Text string
}

// KeywordResult is a single lexical hit.
type KeywordResult struct {
	ID    string
	Score float64
}

// Params are the BM25 free parameters.
type Params struct {
	K1 float64
	B  float64
}

// DefaultParams returns k1=1.5, b=0.75.
func DefaultParams() Params {
	return Params{K1: 1.5, B: 0.75}
}

// TermDictionary provides access to the term dictionary for spell checking.
// This interface allows dependency injection for testing.
type TermDictionary interface {
	// GetAllTerms returns all unique terms in the index.
	GetAllTerms() ([]string, error)
	// GetTermFrequency returns the document frequency for a term.
	GetTermFrequency(term string) (int, error)
	// ContainsTerm checks if a term exists in the index.
	ContainsTerm(term string) (bool, error)
}
