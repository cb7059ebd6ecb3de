package embedding

import (
	"context"
	"fmt"
	"strings"
)

// Config selects an embedding provider.
type Config struct {
	// Provider: "ollama" | "openai" | "genai" | "" (disabled)
	Provider string
	Model    string
	URL      string
	APIKey   string
	// CacheSize bounds the number of memoized vectors; 0 uses the default, <0 disables.
	CacheSize int64
}

// New creates the configured embedder. It returns nil, nil when embeddings are disabled.
func New(ctx context.Context, cfg Config) (Embedder, error) {
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Provider)) {
	case "":
		return nil, nil
	case "ollama":
		e = NewOllamaEmbedder(cfg.URL, cfg.Model)
	case "openai":
		e = NewOpenAIEmbedder(cfg.URL, cfg.APIKey, cfg.Model, 0)
	case "genai":
		e, err = NewGenAIEmbedder(ctx, cfg.APIKey, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported embedding provider %q (use ollama, openai or genai)", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	if cfg.CacheSize < 0 {
		return e, nil
	}
	return NewCachedEmbedder(e, cfg.CacheSize)
}
