package generation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

const ollamaProbeTimeout = 1500 * time.Millisecond

// Config controls backend construction.
type Config struct {
	// Mode: "auto" | "genai" | "ollama" | "openai" | "mock"
	Mode string

	GeminiAPIKey string
	GenAIModel   string

	OllamaHost  string
	OllamaModel string

	OpenAIURL   string
	OpenAIKey   string
	OpenAIModel string

	Logger *zap.Logger
}

func NewBackend(ctx context.Context, cfg Config) (Backend, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAutoBackend(ctx, cfg), nil
	case "genai":
		return NewGenAIBackend(ctx, cfg.GeminiAPIKey, cfg.GenAIModel)
	case "ollama":
		return NewOllamaBackend(cfg.OllamaHost, cfg.OllamaModel), nil
	case "openai":
		if strings.TrimSpace(cfg.OpenAIKey) == "" && strings.TrimSpace(cfg.OpenAIURL) == "" {
			return nil, errors.New("openai mode requires OPENAI_API_KEY or AGENTFORGE_OPENAI_URL")
		}
		return NewOpenAIBackend(cfg.OpenAIURL, cfg.OpenAIKey, cfg.OpenAIModel), nil
	case "mock":
		return NewStubBackend(), nil
	default:
		return nil, fmt.Errorf("unsupported llm mode %q", cfg.Mode)
	}
}

// newAutoBackend prefers Gemini with Ollama as fallback, then a reachable
// Ollama, then the stub.
func newAutoBackend(ctx context.Context, cfg Config) Backend {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	ollama := NewOllamaBackend(cfg.OllamaHost, cfg.OllamaModel)

	if strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		gb, err := NewGenAIBackend(ctx, cfg.GeminiAPIKey, cfg.GenAIModel)
		if err == nil {
			logger.Info("generation backend selected", zap.String("backend", "genai"), zap.String("fallback", "ollama"))
			return NewFallbackBackend(gb, ollama)
		}
		logger.Warn("genai backend unavailable", zap.Error(err))
	}

	err := ollama.Ping(ctx, ollamaProbeTimeout)
	if err == nil {
		logger.Info("generation backend selected", zap.String("backend", "ollama"), zap.String("model", ollama.model))
		return ollama
	}
	logger.Warn("no generation provider reachable, using stub backend", zap.Error(err))
	return NewStubBackend()
}
