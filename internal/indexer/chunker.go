// Package indexer provides instruction chunking and ingestion.
package indexer

import (
	"iter"

	"github.com/hyperjump/spravka/internal/config"
)

// Chunker splits text into overlapping fixed-size windows counted in runes.
// Sentence and paragraph boundaries are not respected.
type Chunker struct {
	maxLength int
	overlap   int
}

// NewChunker creates a chunker with the given window length and overlap (in runes).
// Returns models.ErrMalformedChunkingConfig when overlap >= maxLength.
func NewChunker(maxLength, overlap int) (*Chunker, error) {
	if err := config.ValidateChunking(maxLength, overlap); err != nil {
		return nil, err
	}
	return &Chunker{maxLength: maxLength, overlap: overlap}, nil
}

// MaxLength returns the window length.
func (c *Chunker) MaxLength() int { return c.maxLength }

// Overlap returns the overlap between consecutive windows.
func (c *Chunker) Overlap() int { return c.overlap }

// Split yields windows text[start:start+maxLength], advancing start by maxLength-overlap
// until start reaches the end. Each range over the sequence starts again from offset 0.
func (c *Chunker) Split(text string) iter.Seq[string] {
	return func(yield func(string) bool) {
		runes := []rune(text)
		n := len(runes)
		step := c.maxLength - c.overlap
		for start := 0; start < n; start += step {
			end := min(start+c.maxLength, n)
			if !yield(string(runes[start:end])) {
				return
			}
		}
	}
}

// Chunks collects Split into a slice. Empty text returns nil.
func (c *Chunker) Chunks(text string) []string {
	var out []string
	for s := range c.Split(text) {
		out = append(out, s)
	}
	return out
}

// Split is the one-shot form of NewChunker(maxLength, overlap).Chunks(text).
func Split(text string, maxLength, overlap int) ([]string, error) {
	c, err := NewChunker(maxLength, overlap)
	if err != nil {
		return nil, err
	}
	return c.Chunks(text), nil
}
