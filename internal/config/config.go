package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config contains all runtime settings for the agentforge service and CLI.
type Config struct {
	BindAddr         string
	ShutdownTimeout  time.Duration
	MetricsNamespace string
	AllowAnyOrigin   bool

	LogLevel  string
	LogFormat string

	DefaultUserID string

	MemoryBackend string
	SQLitePath    string
	DatabaseURL   string
	RedisURL      string

	SemanticIndex string
	EmbedProvider string
	EmbedModel    string
	EmbedURL      string
	IndexQueue    int
	IndexHydrate  int
	RecentLimit   int
	RAGK          int
	RedactPII     bool

	LLMMode      string
	LLMTimeout   time.Duration
	GeminiAPIKey string
	GenAIModel   string
	OllamaHost   string
	OllamaModel  string
	OpenAIAPIKey string
	OpenAIURL    string
	OpenAIModel  string

	TraceBuffer  int
	RoutesFile   string
	HandlerCache int
}

// Load reads environment variables and applies safe defaults.
func Load() (Config, error) {
	cfg := Config{
		BindAddr:         envOrDefault("AGENTFORGE_BIND_ADDR", ":8080"),
		MetricsNamespace: envOrDefault("AGENTFORGE_METRICS_NAMESPACE", "agentforge"),
		LogLevel:         strings.ToLower(envOrDefault("AGENTFORGE_LOG_LEVEL", "info")),
		LogFormat:        strings.ToLower(envOrDefault("AGENTFORGE_LOG_FORMAT", "json")),
		DefaultUserID:    envOrDefault("AGENTFORGE_USER_ID", "agentforge_user"),
		MemoryBackend:    strings.ToLower(envOrDefault("AGENTFORGE_MEMORY_BACKEND", "sqlite")),
		SQLitePath:       envOrDefault("AGENTFORGE_SQLITE_PATH", "data/agentforge.db"),
		DatabaseURL:      stringsTrimSpace("DATABASE_URL"),
		RedisURL:         stringsTrimSpace("REDIS_URL"),
		// auto probes the embedder and degrades to recency ranking when it is unreachable.
		SemanticIndex: strings.ToLower(envOrDefault("AGENTFORGE_SEMANTIC_INDEX", "auto")),
		EmbedProvider: strings.ToLower(stringsTrimSpace("AGENTFORGE_EMBED_PROVIDER")),
		EmbedModel:    stringsTrimSpace("AGENTFORGE_EMBED_MODEL"),
		EmbedURL:      stringsTrimSpace("AGENTFORGE_EMBED_URL"),
		IndexQueue:    256,
		IndexHydrate:  200,
		RecentLimit:   8,
		RAGK:          3,
		LLMMode:       strings.ToLower(envOrDefault("AGENTFORGE_LLM_MODE", "auto")),
		GeminiAPIKey:  stringsTrimSpace("GEMINI_API_KEY"),
		GenAIModel:    envOrDefault("AGENTFORGE_GENAI_MODEL", "gemini-2.5-flash"),
		OllamaHost:    envOrDefault("OLLAMA_HOST", "http://localhost:11434"),
		OllamaModel:   envOrDefault("AGENTFORGE_OLLAMA_MODEL", "llama3.2"),
		OpenAIAPIKey:  stringsTrimSpace("OPENAI_API_KEY"),
		OpenAIURL:     stringsTrimSpace("AGENTFORGE_OPENAI_URL"),
		OpenAIModel:   envOrDefault("AGENTFORGE_OPENAI_MODEL", "gpt-4o-mini"),
		RoutesFile:    stringsTrimSpace("AGENTFORGE_ROUTES_FILE"),

		ShutdownTimeout: 15 * time.Second,
		LLMTimeout:      60 * time.Second,
		TraceBuffer:     256,
		HandlerCache:    128,
	}
	var err error
	cfg.ShutdownTimeout, err = durationFromEnv("AGENTFORGE_SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.LLMTimeout, err = durationFromEnv("AGENTFORGE_LLM_TIMEOUT", cfg.LLMTimeout)
	if err != nil {
		return Config{}, err
	}
	cfg.AllowAnyOrigin, err = boolFromEnv("AGENTFORGE_ALLOW_ANY_ORIGIN", cfg.AllowAnyOrigin)
	if err != nil {
		return Config{}, err
	}
	cfg.RedactPII, err = boolFromEnv("AGENTFORGE_REDACT_PII", cfg.RedactPII)
	if err != nil {
		return Config{}, err
	}
	for _, f := range []struct {
		key string
		dst *int
	}{
		{"AGENTFORGE_INDEX_QUEUE", &cfg.IndexQueue},
		{"AGENTFORGE_INDEX_HYDRATE", &cfg.IndexHydrate},
		{"AGENTFORGE_RECENT_LIMIT", &cfg.RecentLimit},
		{"AGENTFORGE_RAG_K", &cfg.RAGK},
		{"AGENTFORGE_TRACE_BUFFER", &cfg.TraceBuffer},
		{"AGENTFORGE_HANDLER_CACHE", &cfg.HandlerCache},
	} {
		*f.dst, err = intFromEnv(f.key, *f.dst)
		if err != nil {
			return Config{}, err
		}
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c Config) Validate() error {
	switch c.MemoryBackend {
	case "sqlite", "postgres", "redis", "memory":
	default:
		return fmt.Errorf("AGENTFORGE_MEMORY_BACKEND must be one of sqlite, postgres, redis, memory")
	}
	if c.MemoryBackend == "postgres" && c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required for the postgres memory backend")
	}
	if c.MemoryBackend == "redis" && c.RedisURL == "" {
		return fmt.Errorf("REDIS_URL is required for the redis memory backend")
	}
	switch c.SemanticIndex {
	case "auto", "vector", "bleve", "recency":
	default:
		return fmt.Errorf("AGENTFORGE_SEMANTIC_INDEX must be one of auto, vector, bleve, recency")
	}
	switch c.LLMMode {
	case "auto", "genai", "ollama", "openai", "mock":
	default:
		return fmt.Errorf("AGENTFORGE_LLM_MODE must be one of auto, genai, ollama, openai, mock")
	}
	if c.LLMTimeout < time.Second {
		return fmt.Errorf("AGENTFORGE_LLM_TIMEOUT must be at least 1s")
	}
	if c.RecentLimit <= 0 {
		return fmt.Errorf("AGENTFORGE_RECENT_LIMIT must be positive")
	}
	if c.RAGK <= 0 {
		return fmt.Errorf("AGENTFORGE_RAG_K must be positive")
	}
	if c.IndexQueue < 0 {
		return fmt.Errorf("AGENTFORGE_INDEX_QUEUE must be >= 0")
	}
	if c.TraceBuffer <= 0 {
		return fmt.Errorf("AGENTFORGE_TRACE_BUFFER must be positive")
	}
	if strings.TrimSpace(c.DefaultUserID) == "" {
		return fmt.Errorf("AGENTFORGE_USER_ID must not be blank")
	}
	return nil
}

// EmbedAPIKey returns the provider key matching EmbedProvider.
func (c Config) EmbedAPIKey() string {
	switch c.EmbedProvider {
	case "genai":
		return c.GeminiAPIKey
	case "openai":
		return c.OpenAIAPIKey
	default:
		return ""
	}
}

func envOrDefault(key, fallback string) string {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback
	}
	return v
}

func stringsTrimSpace(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func durationFromEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return d, nil
}

func intFromEnv(key string, fallback int) (int, error) {
	v := stringsTrimSpace(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s parse error: %w", key, err)
	}
	return n, nil
}

func boolFromEnv(key string, fallback bool) (bool, error) {
	v := strings.ToLower(stringsTrimSpace(key))
	if v == "" {
		return fallback, nil
	}
	switch v {
	case "1", "true", "t", "yes", "y", "on":
		return true, nil
	case "0", "false", "f", "no", "n", "off":
		return false, nil
	default:
		return false, fmt.Errorf("%s parse error: expected bool", key)
	}
}
