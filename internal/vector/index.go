// Package vector provides the nearest-neighbor index and the chunk vector store built on it.
package vector

import "context"

// VectorIndex defines vector storage and similarity search.
type VectorIndex interface {
	// Add inserts vectors; an existing id is overwritten in place.
	Add(ctx context.Context, ids []string, vectors [][]float32) error
	// Search returns up to k ids accepted by accept (nil accepts all), nearest first.
	Search(ctx context.Context, query []float32, k int, accept func(id string) bool) ([]*VectorResult, error)
	Remove(ctx context.Context, ids []string) error
	Save(path string) error
	Load(path string) error
	Size() int
	Close() error
}

// VectorResult is a single vector search hit; ID is the chunk ID.
type VectorResult struct {
	ID       string
	Distance float64 // cosine distance, 0 for identical direction
}
