package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/ent0n29/agentforge/internal/embedding"
)

type vectorEntry struct {
	rec Record
	vec embedding.Vector
}

// VectorIndex ranks records by cosine similarity of their embeddings.
type VectorIndex struct {
	embedder embedding.Embedder

	mu      sync.RWMutex
	entries map[string][]vectorEntry
}

func NewVectorIndex(e embedding.Embedder) *VectorIndex {
	return &VectorIndex{embedder: e, entries: make(map[string][]vectorEntry)}
}

func (v *VectorIndex) Add(ctx context.Context, rec Record) error {
	vec, err := v.embedder.Embed(ctx, rec.Content)
	if err != nil {
		return fmt.Errorf("embed record %s: %w", rec.ID, err)
	}
	v.mu.Lock()
	defer v.mu.Unlock()
	v.entries[rec.UserID] = append(v.entries[rec.UserID], vectorEntry{rec: rec, vec: vec})
	return nil
}

func (v *VectorIndex) Query(ctx context.Context, userID, query string, k int) ([]Record, error) {
	if k <= 0 {
		return nil, nil
	}
	qv, err := v.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	v.mu.RLock()
	type scored struct {
		rec   Record
		score float64
	}
	candidates := make([]scored, 0, len(v.entries[userID]))
	for _, e := range v.entries[userID] {
		candidates = append(candidates, scored{rec: e.rec, score: embedding.CosineSimilarity(qv, e.vec)})
	}
	v.mu.RUnlock()

	// Ties keep the newer record first.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score == candidates[j].score {
			return candidates[i].rec.Seq > candidates[j].rec.Seq
		}
		return candidates[i].score > candidates[j].score
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	out := make([]Record, 0, len(candidates))
	for _, c := range candidates {
		out = append(out, c.rec)
	}
	return out, nil
}

func (v *VectorIndex) Mode() IndexMode { return IndexModeVector }

// Close releases embedder resources such as a query cache.
func (v *VectorIndex) Close() error {
	if c, ok := v.embedder.(interface{ Close() }); ok {
		c.Close()
	}
	return nil
}
