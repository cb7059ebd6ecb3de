package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"github.com/ent0n29/agentforge/internal/agent"
	"github.com/ent0n29/agentforge/internal/config"
	"github.com/ent0n29/agentforge/internal/embedding"
	"github.com/ent0n29/agentforge/internal/generation"
	"github.com/ent0n29/agentforge/internal/httpapi"
	"github.com/ent0n29/agentforge/internal/memory"
	"github.com/ent0n29/agentforge/internal/observability"
	"github.com/ent0n29/agentforge/internal/orchestrator"
	"github.com/ent0n29/agentforge/internal/policy"
	"github.com/ent0n29/agentforge/internal/router"
)

type BuildResult struct {
	Config  config.Config
	Engine  *orchestrator.Engine
	Memory  *memory.Service
	API     *httpapi.Server
	Metrics *observability.Metrics
	Tracer  *observability.Tracer
	Backend generation.Backend
	Logger  *zap.Logger

	// Cleanup should be called on shutdown to flush traces and release stores.
	Cleanup func() error
}

// Build wires one process context. Every collaborator is constructed here and
// passed down explicitly.
func Build(ctx context.Context, cfg config.Config, logger *zap.Logger) (*BuildResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	// A registry per build keeps repeated builds in one process (tests, smoke) from colliding.
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	metrics := observability.NewMetricsWithRegistry(cfg.MetricsNamespace, reg, reg)

	routes := router.Default()
	if strings.TrimSpace(cfg.RoutesFile) != "" {
		loaded, err := router.LoadRules(cfg.RoutesFile)
		if err != nil {
			return nil, fmt.Errorf("routing table init failed: %w", err)
		}
		routes = loaded
	}

	log, err := memory.NewLog(ctx, memory.LogConfig{
		Backend:     cfg.MemoryBackend,
		SQLitePath:  cfg.SQLitePath,
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
	})
	if err != nil {
		return nil, fmt.Errorf("exchange log init failed: %w", err)
	}

	embedURL := cfg.EmbedURL
	if embedURL == "" && cfg.EmbedProvider == "ollama" {
		embedURL = cfg.OllamaHost
	}
	embedder, err := embedding.New(ctx, embedding.Config{
		Provider: cfg.EmbedProvider,
		Model:    cfg.EmbedModel,
		URL:      embedURL,
		APIKey:   cfg.EmbedAPIKey(),
	})
	if err != nil {
		// Retrieval degrades to recency instead of refusing to start.
		logger.Warn("embedder unavailable", zap.String("provider", cfg.EmbedProvider), zap.Error(err))
		embedder = nil
	}

	index := memory.NewIndex(ctx, memory.IndexConfig{
		Mode:     cfg.SemanticIndex,
		Embedder: embedder,
		Log:      log,
		Logger:   logger.Named("memory"),
	})

	var redact memory.Redactor
	if cfg.RedactPII {
		redact = policy.RedactPII
	}
	mem, err := memory.NewService(memory.ServiceConfig{
		Log:          log,
		Index:        index,
		Logger:       logger.Named("memory"),
		RecentLimit:  cfg.RecentLimit,
		RAGK:         cfg.RAGK,
		IndexQueue:   cfg.IndexQueue,
		HydrateLimit: cfg.IndexHydrate,
		Redact:       redact,
		OnIndexFailure: func(error) {
			metrics.ObserveIndexWriteFailure()
		},
	})
	if err != nil {
		_ = index.Close()
		_ = log.Close()
		return nil, fmt.Errorf("memory service init failed: %w", err)
	}
	if mem.Degraded() {
		logger.Warn("similarity search degraded to recency", zap.String("requested", cfg.SemanticIndex))
	}

	backend, err := generation.NewBackend(ctx, generation.Config{
		Mode:         cfg.LLMMode,
		GeminiAPIKey: cfg.GeminiAPIKey,
		GenAIModel:   cfg.GenAIModel,
		OllamaHost:   cfg.OllamaHost,
		OllamaModel:  cfg.OllamaModel,
		OpenAIURL:    cfg.OpenAIURL,
		OpenAIKey:    cfg.OpenAIAPIKey,
		OpenAIModel:  cfg.OpenAIModel,
		Logger:       logger.Named("generation"),
	})
	if err != nil {
		_ = mem.Close()
		return nil, fmt.Errorf("generation backend init failed: %w", err)
	}

	tracer := observability.NewTracer(cfg.TraceBuffer, observability.ZapSink(logger.Named("trace")), metrics.ObserveTraceDrop)

	engine, err := orchestrator.New(orchestrator.Config{
		Router:   routes,
		Registry: agent.DefaultRegistry(),
		Memory:   mem,
		Deps: agent.Deps{
			Backend:     backend,
			Tracer:      tracer,
			Metrics:     metrics,
			Logger:      logger.Named("agent"),
			Timeout:     cfg.LLMTimeout,
			RecentLimit: cfg.RecentLimit,
			RAGK:        cfg.RAGK,
		},
		HandlerCache:  cfg.HandlerCache,
		DefaultUserID: cfg.DefaultUserID,
		Logger:        logger.Named("router"),
	})
	if err != nil {
		tracer.Close()
		_ = mem.Close()
		return nil, fmt.Errorf("orchestrator init failed: %w", err)
	}

	api := httpapi.New(cfg, engine, metrics, logger.Named("http"))

	cleanup := func() error {
		var errs []string
		tracer.Close()
		if err := mem.Close(); err != nil {
			errs = append(errs, err.Error())
		}
		if err := logger.Sync(); err != nil && !isSyncNoise(err) {
			errs = append(errs, err.Error())
		}
		if len(errs) > 0 {
			return fmt.Errorf("%s", strings.Join(errs, "; "))
		}
		return nil
	}

	logger.Info("agentforge ready",
		zap.String("llm_backend", backend.Name()),
		zap.String("memory_backend", cfg.MemoryBackend),
		zap.String("index_mode", string(mem.Status().IndexMode)),
		zap.Strings("handlers", routes.HandlerIDs()),
	)

	return &BuildResult{
		Config:  cfg,
		Engine:  engine,
		Memory:  mem,
		API:     api,
		Metrics: metrics,
		Tracer:  tracer,
		Backend: backend,
		Logger:  logger,
		Cleanup: cleanup,
	}, nil
}

// isSyncNoise filters the error zap returns when syncing a terminal or pipe.
func isSyncNoise(err error) bool {
	msg := err.Error()
	return strings.Contains(msg, "invalid argument") || strings.Contains(msg, "inappropriate ioctl")
}
