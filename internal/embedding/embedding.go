// Package embedding provides pluggable text embedding providers for the semantic index.
package embedding

import (
	"context"
	"errors"
	"fmt"
	"math"
)

// Vector is a float32 embedding vector.
type Vector = []float32

// Embedder generates embedding vectors from text.
type Embedder interface {
	Embed(ctx context.Context, text string) (Vector, error)
	Dims() int
	Name() string
}

var errEmptyEmbedding = errors.New("no embedding returned")

// CosineSimilarity computes cosine similarity between two vectors.
func CosineSimilarity(a, b Vector) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Probe checks that the embedder is reachable and returns usable vectors.
func Probe(ctx context.Context, e Embedder) error {
	if e == nil {
		return errors.New("embedder not configured")
	}
	v, err := e.Embed(ctx, "probe")
	if err != nil {
		return fmt.Errorf("probe %s: %w", e.Name(), err)
	}
	if len(v) == 0 {
		return fmt.Errorf("probe %s: %w", e.Name(), errEmptyEmbedding)
	}
	return nil
}
