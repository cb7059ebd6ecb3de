package agent

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ent0n29/agentforge/internal/generation"
	"github.com/ent0n29/agentforge/internal/memory"
	"github.com/ent0n29/agentforge/internal/observability"
)

const DefaultTimeout = 60 * time.Second

// Deps are the collaborators shared by every handler in a process.
type Deps struct {
	Backend generation.Backend
	Tracer  *observability.Tracer
	Metrics *observability.Metrics
	Logger  *zap.Logger
	// Timeout bounds one backend invocation.
	Timeout     time.Duration
	RecentLimit int
	RAGK        int
}

// Metadata describes who produced a Result.
type Metadata struct {
	Agent     string `json:"agent"`
	HandlerID string `json:"handler_id"`
	TaskType  string `json:"task_type"`
	UserID    string `json:"user_id"`
	Failed    bool   `json:"failed,omitempty"`
	Persisted bool   `json:"persisted"`
	Degraded  bool   `json:"degraded_search,omitempty"`
}

// Result is the uniform handler output.
type Result struct {
	Output   string   `json:"output"`
	Metadata Metadata `json:"metadata"`
}

// Handler binds one profile to one user's memory.
type Handler struct {
	profile Profile
	memory  *memory.Manager
	deps    Deps
	logger  *zap.Logger
}

func NewHandler(p Profile, mem *memory.Manager, deps Deps) *Handler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Timeout <= 0 {
		deps.Timeout = DefaultTimeout
	}
	if deps.Backend == nil {
		deps.Backend = generation.NewStubBackend()
	}
	return &Handler{
		profile: p,
		memory:  mem,
		deps:    deps,
		logger:  logger.With(zap.String("agent", p.Name), zap.String("user_id", mem.UserID())),
	}
}

func (h *Handler) ID() string       { return h.profile.ID }
func (h *Handler) Profile() Profile { return h.profile }
func (h *Handler) UserID() string   { return h.memory.UserID() }

// Execute runs the task and wraps the response with handler metadata.
func (h *Handler) Execute(ctx context.Context, task string, extra map[string]any) Result {
	out := h.run(ctx, task, extra)
	return Result{
		Output: out.response,
		Metadata: Metadata{
			Agent:     h.profile.Name,
			HandlerID: h.profile.ID,
			TaskType:  h.profile.TaskType,
			UserID:    h.memory.UserID(),
			Failed:    out.failed,
			Persisted: out.persisted,
			Degraded:  h.memory.Degraded(),
		},
	}
}

// Run returns the backend response, or the sentinel error text when the
// backend fails or times out. It never fails.
func (h *Handler) Run(ctx context.Context, input string, extra map[string]any) string {
	return h.run(ctx, input, extra).response
}

type runOutcome struct {
	response  string
	failed    bool
	persisted bool
}

func (h *Handler) run(ctx context.Context, input string, extra map[string]any) runOutcome {
	started := time.Now()
	messages, contextUsed := h.buildMessages(ctx, input, extra)
	h.deps.Metrics.ObserveStage(observability.StageContext, time.Since(started))

	var out runOutcome
	genStarted := time.Now()
	out.response, out.failed = h.invoke(ctx, messages)
	h.deps.Metrics.ObserveStage(observability.StageGenerate, time.Since(genStarted))

	h.deps.Tracer.Emit(observability.Trace{
		ID:      uuid.NewString(),
		Agent:   h.profile.Name,
		UserID:  h.memory.UserID(),
		Input:   input,
		Output:  out.response,
		Context: contextUsed,
		Failed:  out.failed,
	})

	// The caller already has a response; a cancelled request must not lose the turn.
	persistCtx := context.WithoutCancel(ctx)
	persistStarted := time.Now()
	out.persisted = h.persist(persistCtx, input, out.response)
	h.deps.Metrics.ObserveStage(observability.StagePersist, time.Since(persistStarted))
	return out
}

// buildMessages assembles instruction, recent conversation, extra context,
// retrieved context and finally the raw input.
func (h *Handler) buildMessages(ctx context.Context, input string, extra map[string]any) ([]generation.Message, string) {
	rag := h.memory.RAGQuery(ctx, input, h.deps.RAGK)
	recent, err := h.memory.RecentContext(ctx, h.deps.RecentLimit)
	if err != nil {
		h.logger.Warn("recent context unavailable", zap.Error(err))
		recent = ""
	}

	messages := []generation.Message{generation.System(h.profile.Instruction)}
	var used []string
	if recent != "" {
		block := "Previous conversation:\n" + recent
		messages = append(messages, generation.System(block))
		used = append(used, block)
	}
	if extraText := formatExtra(extra); extraText != "" {
		block := "Extra context:\n" + extraText
		messages = append(messages, generation.System(block))
		used = append(used, block)
	}
	if len(rag.RetrievedDocs) > 0 {
		block := "Relevant context:\n" + rag.FormattedContext
		messages = append(messages, generation.System(block))
		used = append(used, block)
	}
	messages = append(messages, generation.User(input))
	return messages, strings.Join(used, "\n\n")
}

func (h *Handler) invoke(ctx context.Context, messages []generation.Message) (string, bool) {
	ctx, cancel := context.WithTimeout(ctx, h.deps.Timeout)
	defer cancel()

	type generated struct {
		text string
		err  error
	}
	// Buffered so an abandoned Generate can still send and exit.
	done := make(chan generated, 1)
	go func() {
		text, err := h.deps.Backend.Generate(ctx, messages)
		done <- generated{text: text, err: err}
	}()

	var err error
	select {
	case g := <-done:
		if g.err == nil {
			return g.text, false
		}
		err = g.err
	case <-ctx.Done():
		err = ctx.Err()
	}
	h.deps.Metrics.ObserveBackendError(h.deps.Backend.Name())
	h.logger.Error("backend invocation failed", zap.String("backend", h.deps.Backend.Name()), zap.Error(err))
	return SentinelText(err), true
}

func (h *Handler) persist(ctx context.Context, input, response string) bool {
	if _, err := h.memory.AddExchange(ctx, memory.RoleUser, input); err != nil {
		h.logger.Warn("user turn not recorded", zap.Error(err))
		return false
	}
	if _, err := h.memory.AddExchange(ctx, memory.RoleAssistant, response); err != nil {
		h.logger.Warn("assistant turn not recorded", zap.Error(err))
		return false
	}
	return true
}

// SentinelText is the response substituted for a failed backend invocation.
func SentinelText(err error) string {
	return fmt.Sprintf("(Error invoking LLM: %v)", err)
}

// IsSentinel reports whether text is a SentinelText response.
func IsSentinel(text string) bool {
	return strings.HasPrefix(text, "(Error invoking LLM:")
}

func formatExtra(extra map[string]any) string {
	if len(extra) == 0 {
		return ""
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	lines := make([]string, 0, len(keys))
	for _, k := range keys {
		lines = append(lines, fmt.Sprintf("%s: %v", k, extra[k]))
	}
	return strings.Join(lines, "\n")
}
