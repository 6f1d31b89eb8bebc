package embedding

import (
	"context"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
)

// EmbeddingCache is an LRU cache for embeddings keyed by the exact embedded text.
type EmbeddingCache struct {
	cache *lru.Cache[string, []float32]
}

// NewEmbeddingCache creates a cache holding up to capacity embeddings.
func NewEmbeddingCache(capacity int) (*EmbeddingCache, error) {
	cache, err := lru.New[string, []float32](capacity)
	if err != nil {
		return nil, fmt.Errorf("init embedding cache: %w", err)
	}
	return &EmbeddingCache{cache: cache}, nil
}

// Get returns a copy of the cached embedding for key if present.
func (c *EmbeddingCache) Get(key string) ([]float32, bool) {
	v, ok := c.cache.Get(key)
	if !ok {
		return nil, false
	}
	return cloneVector(v), true
}

// Set stores a copy of the embedding for key, evicting the least recently used entry.
func (c *EmbeddingCache) Set(key string, value []float32) {
	c.cache.Add(key, cloneVector(value))
}

// Len returns the number of cached embeddings.
func (c *EmbeddingCache) Len() int {
	return c.cache.Len()
}

func cloneVector(v []float32) []float32 {
	out := make([]float32, len(v))
	copy(out, v)
	return out
}

// CachedEmbedder is a Model that serves repeated texts from an EmbeddingCache.
type CachedEmbedder struct {
	model Model
	cache *EmbeddingCache
}

// NewCachedEmbedder wraps m with an LRU cache of size entries.
func NewCachedEmbedder(m Model, size int) (*CachedEmbedder, error) {
	cache, err := NewEmbeddingCache(size)
	if err != nil {
		return nil, err
	}
	return &CachedEmbedder{model: m, cache: cache}, nil
}

// Embed returns the cached embedding or computes and caches it.
func (c *CachedEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.model.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v)
	return v, nil
}

// EmbedBatch embeds only the texts missing from the cache, in one batch call.
func (c *CachedEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	missing := make(map[string][]int)
	var order []string
	for i, t := range texts {
		if v, ok := c.cache.Get(t); ok {
			out[i] = v
			continue
		}
		if _, seen := missing[t]; !seen {
			order = append(order, t)
		}
		missing[t] = append(missing[t], i)
	}
	if len(order) == 0 {
		return out, nil
	}
	vecs, err := c.model.EmbedBatch(ctx, order)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(order) {
		return nil, fmt.Errorf("model returned %d embeddings for %d texts", len(vecs), len(order))
	}
	for j, t := range order {
		c.cache.Set(t, vecs[j])
		for _, i := range missing[t] {
			out[i] = cloneVector(vecs[j])
		}
	}
	return out, nil
}

// Dimensions returns the embedding dimension of the wrapped model.
func (c *CachedEmbedder) Dimensions() int {
	return c.model.Dimensions()
}

// Len returns the number of cached embeddings.
func (c *CachedEmbedder) Len() int {
	return c.cache.Len()
}

// Close closes the wrapped model.
func (c *CachedEmbedder) Close() error {
	return c.model.Close()
}
