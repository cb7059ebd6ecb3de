package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	setCoreEnvEmpty(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MemoryBackend != "sqlite" {
		t.Fatalf("MemoryBackend = %q, want sqlite", cfg.MemoryBackend)
	}
	if cfg.SQLitePath != "data/agentforge.db" {
		t.Fatalf("SQLitePath = %q, want data/agentforge.db", cfg.SQLitePath)
	}
	if cfg.RecentLimit != 8 || cfg.RAGK != 3 {
		t.Fatalf("RecentLimit/RAGK = %d/%d, want 8/3", cfg.RecentLimit, cfg.RAGK)
	}
	if cfg.DefaultUserID != "agentforge_user" {
		t.Fatalf("DefaultUserID = %q, want agentforge_user", cfg.DefaultUserID)
	}
	if cfg.LLMMode != "auto" || cfg.LLMTimeout != 60*time.Second {
		t.Fatalf("LLMMode/LLMTimeout = %q/%v, want auto/60s", cfg.LLMMode, cfg.LLMTimeout)
	}
	if cfg.SemanticIndex != "auto" {
		t.Fatalf("SemanticIndex = %q, want auto", cfg.SemanticIndex)
	}
	if cfg.EmbedAPIKey() != "" {
		t.Fatalf("EmbedAPIKey() = %q, want empty without a provider", cfg.EmbedAPIKey())
	}
}

func TestLoadExplicitValues(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AGENTFORGE_BIND_ADDR", ":9191")
	t.Setenv("AGENTFORGE_MEMORY_BACKEND", "Redis")
	t.Setenv("REDIS_URL", "redis://localhost:6379/0")
	t.Setenv("AGENTFORGE_LLM_TIMEOUT", "5s")
	t.Setenv("AGENTFORGE_RAG_K", " 5 ")
	t.Setenv("AGENTFORGE_REDACT_PII", "yes")
	t.Setenv("AGENTFORGE_EMBED_PROVIDER", "genai")
	t.Setenv("GEMINI_API_KEY", "g-key")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.BindAddr != ":9191" || cfg.MemoryBackend != "redis" {
		t.Fatalf("BindAddr/MemoryBackend = %q/%q", cfg.BindAddr, cfg.MemoryBackend)
	}
	if cfg.LLMTimeout != 5*time.Second || cfg.RAGK != 5 || !cfg.RedactPII {
		t.Fatalf("LLMTimeout/RAGK/RedactPII = %v/%d/%v", cfg.LLMTimeout, cfg.RAGK, cfg.RedactPII)
	}
	if cfg.EmbedAPIKey() != "g-key" {
		t.Fatalf("EmbedAPIKey() = %q, want gemini key", cfg.EmbedAPIKey())
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"AGENTFORGE_MEMORY_BACKEND": "mongo",
		"AGENTFORGE_SEMANTIC_INDEX": "faiss",
		"AGENTFORGE_LLM_MODE":       "telepathy",
		"AGENTFORGE_LLM_TIMEOUT":    "10ms",
		"AGENTFORGE_RECENT_LIMIT":   "0",
		"AGENTFORGE_RAG_K":          "abc",
		"AGENTFORGE_REDACT_PII":     "maybe",
		"AGENTFORGE_INDEX_QUEUE":    "-1",
	}
	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			setCoreEnvEmpty(t)
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("Load() with %s=%q expected error", key, value)
			}
		})
	}
}

func TestLoadPostgresRequiresDatabaseURL(t *testing.T) {
	setCoreEnvEmpty(t)
	t.Setenv("AGENTFORGE_MEMORY_BACKEND", "postgres")
	if _, err := Load(); err == nil {
		t.Fatalf("Load() expected error without DATABASE_URL")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/agentforge")
	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func setCoreEnvEmpty(t *testing.T) {
	t.Helper()
	keys := []string{
		"AGENTFORGE_BIND_ADDR",
		"AGENTFORGE_SHUTDOWN_TIMEOUT",
		"AGENTFORGE_METRICS_NAMESPACE",
		"AGENTFORGE_ALLOW_ANY_ORIGIN",
		"AGENTFORGE_LOG_LEVEL",
		"AGENTFORGE_LOG_FORMAT",
		"AGENTFORGE_USER_ID",
		"AGENTFORGE_MEMORY_BACKEND",
		"AGENTFORGE_SQLITE_PATH",
		"DATABASE_URL",
		"REDIS_URL",
		"AGENTFORGE_SEMANTIC_INDEX",
		"AGENTFORGE_EMBED_PROVIDER",
		"AGENTFORGE_EMBED_MODEL",
		"AGENTFORGE_EMBED_URL",
		"AGENTFORGE_INDEX_QUEUE",
		"AGENTFORGE_RECENT_LIMIT",
		"AGENTFORGE_RAG_K",
		"AGENTFORGE_REDACT_PII",
		"AGENTFORGE_LLM_MODE",
		"AGENTFORGE_LLM_TIMEOUT",
		"GEMINI_API_KEY",
		"AGENTFORGE_GENAI_MODEL",
		"OLLAMA_HOST",
		"AGENTFORGE_OLLAMA_MODEL",
		"OPENAI_API_KEY",
		"AGENTFORGE_OPENAI_URL",
		"AGENTFORGE_OPENAI_MODEL",
		"AGENTFORGE_TRACE_BUFFER",
		"AGENTFORGE_ROUTES_FILE",
		"AGENTFORGE_HANDLER_CACHE",
	}
	for _, key := range keys {
		t.Setenv(key, "")
	}
}
