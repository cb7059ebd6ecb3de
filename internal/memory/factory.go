package memory

import (
	"context"
	"fmt"
	"strings"
)

// LogConfig selects and configures the exchange log backend.
type LogConfig struct {
	Backend     string
	SQLitePath  string
	DatabaseURL string
	RedisURL    string
}

// NewLog opens the configured exchange log. An empty backend picks postgres when
// DatabaseURL is set and sqlite otherwise.
func NewLog(ctx context.Context, cfg LogConfig) (Log, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "sqlite"
		if strings.TrimSpace(cfg.DatabaseURL) != "" {
			backend = "postgres"
		}
	}

	switch backend {
	case "memory":
		return NewInMemoryLog(), nil
	case "sqlite":
		path := strings.TrimSpace(cfg.SQLitePath)
		if path == "" {
			path = "data/agentforge.db"
		}
		return NewSQLiteLog(path)
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("postgres memory backend requires DATABASE_URL")
		}
		return NewPostgresLog(ctx, cfg.DatabaseURL)
	case "redis":
		if strings.TrimSpace(cfg.RedisURL) == "" {
			return nil, fmt.Errorf("redis memory backend requires REDIS_URL")
		}
		return NewRedisLog(ctx, cfg.RedisURL)
	default:
		return nil, fmt.Errorf("unsupported memory backend %q", cfg.Backend)
	}
}
