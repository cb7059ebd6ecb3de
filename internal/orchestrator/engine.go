// Package orchestrator routes a request to one handler and packages the result.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"github.com/ent0n29/agentforge/internal/agent"
	"github.com/ent0n29/agentforge/internal/memory"
	"github.com/ent0n29/agentforge/internal/observability"
	"github.com/ent0n29/agentforge/internal/router"
)

const (
	DefaultUserID       = "agentforge_user"
	defaultHandlerCache = 128
)

// State of one request in the routing state machine.
type State string

const (
	StateRouting    State = "routing"
	StateDispatched State = "dispatched"
	StateDone       State = "done"
)

// Request is one free-text input from a user.
type Request struct {
	Input  string         `json:"input"`
	UserID string         `json:"user_id,omitempty"`
	Extra  map[string]any `json:"context,omitempty"`
}

// Metadata is the provenance attached to every Result.
type Metadata struct {
	HandlerID     string  `json:"handler_id"`
	Agent         string  `json:"agent"`
	TaskType      string  `json:"task_type"`
	UserID        string  `json:"user_id"`
	LatencyMS     float64 `json:"latency_ms"`
	OriginalInput string  `json:"original_input"`
	Failed        bool    `json:"failed,omitempty"`
	Persisted     bool    `json:"persisted"`
	States        []State `json:"states"`
}

// Result is the terminal output of Process.
type Result struct {
	Output   string   `json:"output"`
	Metadata Metadata `json:"metadata"`
}

// Config wires the engine's collaborators.
type Config struct {
	Router   *router.Router
	Registry *agent.Registry
	Memory   *memory.Service
	Deps     agent.Deps
	// HandlerCache bounds the number of users whose handler sets stay built.
	HandlerCache  int
	DefaultUserID string
	Logger        *zap.Logger
}

// Engine is the process-wide entry point. It is safe for concurrent use.
type Engine struct {
	router        *router.Router
	registry      *agent.Registry
	memory        *memory.Service
	deps          agent.Deps
	metrics       *observability.Metrics
	logger        *zap.Logger
	defaultUserID string

	handlers *lru.Cache[string, handlerSet]
}

// handlerSet is one user's handlers, built against a registry version.
type handlerSet struct {
	version  uint64
	handlers map[string]*agent.Handler
}

func New(cfg Config) (*Engine, error) {
	if cfg.Memory == nil {
		return nil, errors.New("orchestrator requires a memory service")
	}
	if cfg.Router == nil {
		cfg.Router = router.Default()
	}
	if cfg.Registry == nil {
		cfg.Registry = agent.DefaultRegistry()
	}
	if _, ok := cfg.Registry.Get(cfg.Router.Fallback()); !ok {
		return nil, fmt.Errorf("fallback handler %q is not registered", cfg.Router.Fallback())
	}
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	size := cfg.HandlerCache
	if size <= 0 {
		size = defaultHandlerCache
	}
	cache, err := lru.New[string, handlerSet](size)
	if err != nil {
		return nil, fmt.Errorf("create handler cache: %w", err)
	}
	userID := strings.TrimSpace(cfg.DefaultUserID)
	if userID == "" {
		userID = DefaultUserID
	}
	return &Engine{
		router:        cfg.Router,
		registry:      cfg.Registry,
		memory:        cfg.Memory,
		deps:          cfg.Deps,
		metrics:       cfg.Deps.Metrics,
		logger:        logger,
		defaultUserID: userID,
		handlers:      cache,
	}, nil
}

// Process walks routing -> dispatched -> done. It always returns a Result; a
// handler failure surfaces as sentinel text in Output.
func (e *Engine) Process(ctx context.Context, req Request) Result {
	started := time.Now()
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = e.defaultUserID
	}
	meta := Metadata{UserID: userID, OriginalInput: req.Input, States: []State{StateRouting}}

	handlerID := e.router.Route(req.Input)
	e.metrics.ObserveStage(observability.StageRoute, time.Since(started))
	h := e.handler(userID, handlerID)
	if h == nil {
		// Route returned an id with no profile; the fallback is always registered.
		e.logger.Warn("routed to unknown handler, using fallback",
			zap.String("handler_id", handlerID), zap.String("fallback", e.router.Fallback()))
		handlerID = e.router.Fallback()
		h = e.handler(userID, handlerID)
	}
	meta.HandlerID = handlerID

	meta.States = append(meta.States, StateDispatched)
	res := h.Execute(ctx, req.Input, req.Extra)

	meta.States = append(meta.States, StateDone)
	meta.Agent = res.Metadata.Agent
	meta.TaskType = res.Metadata.TaskType
	meta.Failed = res.Metadata.Failed
	meta.Persisted = res.Metadata.Persisted
	elapsed := time.Since(started)
	meta.LatencyMS = math.Round(float64(elapsed.Microseconds())/10) / 100

	outcome := "ok"
	if meta.Failed {
		outcome = "backend_error"
	}
	e.metrics.ObserveRequest(handlerID, outcome, elapsed)
	e.logger.Info("request processed",
		zap.String("handler_id", handlerID),
		zap.String("user_id", userID),
		zap.Float64("latency_ms", meta.LatencyMS),
		zap.Bool("failed", meta.Failed),
	)
	return Result{Output: res.Output, Metadata: meta}
}

// Route exposes the routing decision without dispatching.
func (e *Engine) Route(input string) string { return e.router.Route(input) }

// Handler returns the handler bound to userID for handlerID.
func (e *Engine) Handler(userID, handlerID string) (*agent.Handler, bool) {
	h := e.handler(userID, handlerID)
	return h, h != nil
}

// Rules returns the routing table in evaluation order.
func (e *Engine) Rules() []router.Rule { return e.router.Rules() }

// Fallback is the handler id unmatched input routes to.
func (e *Engine) Fallback() string { return e.router.Fallback() }

// Profiles lists the registered handler profiles.
func (e *Engine) Profiles() []agent.Profile { return e.registry.List() }

// Memory returns the shared memory service.
func (e *Engine) Memory() *memory.Service { return e.memory }

func (e *Engine) handler(userID, handlerID string) *agent.Handler {
	version := e.registry.Version()
	set, ok := e.handlers.Get(userID)
	if !ok || set.version != version {
		// Concurrent first requests may both build; either set is equivalent.
		set = handlerSet{version: version, handlers: e.buildHandlers(userID)}
		e.handlers.Add(userID, set)
	}
	return set.handlers[handlerID]
}

func (e *Engine) buildHandlers(userID string) map[string]*agent.Handler {
	mem := e.memory.For(userID)
	profiles := e.registry.List()
	set := make(map[string]*agent.Handler, len(profiles))
	for _, p := range profiles {
		set[p.ID] = agent.NewHandler(p, mem, e.deps)
	}
	return set
}
