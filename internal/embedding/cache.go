package embedding

import (
	"context"
	"fmt"

	"github.com/dgraph-io/ristretto/v2"
)

// CachedEmbedder memoizes query embeddings so repeated retrievals for the same text
// do not hit the provider again.
type CachedEmbedder struct {
	inner Embedder
	cache *ristretto.Cache[string, []float32]
}

// NewCachedEmbedder wraps inner with a ristretto cache holding up to maxVectors entries.
func NewCachedEmbedder(inner Embedder, maxVectors int64) (*CachedEmbedder, error) {
	if maxVectors <= 0 {
		maxVectors = 4096
	}
	cache, err := ristretto.NewCache(&ristretto.Config[string, []float32]{
		NumCounters: maxVectors * 10,
		MaxCost:     maxVectors,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding cache: %w", err)
	}
	return &CachedEmbedder{inner: inner, cache: cache}, nil
}

func (c *CachedEmbedder) Embed(ctx context.Context, text string) (Vector, error) {
	if v, ok := c.cache.Get(text); ok {
		return v, nil
	}
	v, err := c.inner.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.cache.Set(text, v, 1)
	return v, nil
}

func (c *CachedEmbedder) Dims() int    { return c.inner.Dims() }
func (c *CachedEmbedder) Name() string { return c.inner.Name() }

// Close releases the cache's background goroutines.
func (c *CachedEmbedder) Close() {
	c.cache.Close()
}
