package orchestrator

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/agentforge/internal/agent"
	"github.com/ent0n29/agentforge/internal/generation"
	"github.com/ent0n29/agentforge/internal/memory"
	"github.com/ent0n29/agentforge/internal/router"
)

type failingBackend struct{}

func (failingBackend) Name() string { return "failing" }
func (failingBackend) Generate(context.Context, []generation.Message) (string, error) {
	return "", errors.New("provider unavailable")
}

func newEngine(t *testing.T, cfg Config) *Engine {
	t.Helper()
	if cfg.Memory == nil {
		svc, err := memory.NewService(memory.ServiceConfig{Log: memory.NewInMemoryLog()})
		require.NoError(t, err)
		t.Cleanup(func() { _ = svc.Close() })
		cfg.Memory = svc
	}
	e, err := New(cfg)
	require.NoError(t, err)
	return e
}

func TestProcessDefaultHandlerForUnmatchedInput(t *testing.T) {
	e := newEngine(t, Config{})
	res := e.Process(context.Background(), Request{Input: "summarize the plot of Hamlet"})

	assert.Equal(t, router.PromptOptimizer, res.Metadata.HandlerID)
	assert.NotEqual(t, router.EmailPrioritizer, res.Metadata.HandlerID)
	assert.NotEqual(t, router.ContentRewriter, res.Metadata.HandlerID)
	assert.Equal(t, "PromptSmith", res.Metadata.Agent)
	assert.Equal(t, "summarize the plot of Hamlet", res.Metadata.OriginalInput)
	assert.Equal(t, DefaultUserID, res.Metadata.UserID)
	assert.Equal(t, []State{StateRouting, StateDispatched, StateDone}, res.Metadata.States)
	assert.GreaterOrEqual(t, res.Metadata.LatencyMS, 0.0)
	assert.Equal(t, "[stub-llm] I received: summarize the plot of Hamlet", res.Output)
}

func TestProcessRoutesKeywordClasses(t *testing.T) {
	e := newEngine(t, Config{})
	cases := []struct {
		input string
		want  string
	}{
		{input: "Here is my resume: worked at company X. Improve bullets.", want: router.ContentRewriter},
		{input: "Triage this email. Subject: Meeting\nFrom: boss@example.com\nBody: Can you prepare slides?", want: router.EmailPrioritizer},
		{input: "Improve this prompt: write a funny tweet about coffee", want: router.PromptOptimizer},
	}
	for _, tc := range cases {
		res := e.Process(context.Background(), Request{Input: tc.input, UserID: "smoke_test_user"})
		assert.Equal(t, tc.want, res.Metadata.HandlerID, tc.input)
		assert.True(t, res.Metadata.Persisted)
	}
}

func TestProcessBackendFailureEndsInDone(t *testing.T) {
	e := newEngine(t, Config{Deps: agent.Deps{Backend: failingBackend{}}})
	res := e.Process(context.Background(), Request{Input: "check my inbox"})

	assert.Equal(t, router.EmailPrioritizer, res.Metadata.HandlerID)
	assert.True(t, res.Metadata.Failed)
	assert.True(t, agent.IsSentinel(res.Output))
	assert.Equal(t, StateDone, res.Metadata.States[len(res.Metadata.States)-1])
}

func TestProcessScopesMemoryPerUser(t *testing.T) {
	svc, err := memory.NewService(memory.ServiceConfig{Log: memory.NewInMemoryLog()})
	require.NoError(t, err)
	defer svc.Close()
	// A single cached handler set forces eviction between users.
	e := newEngine(t, Config{Memory: svc, HandlerCache: 1})

	ctx := context.Background()
	e.Process(ctx, Request{Input: "alice prompt", UserID: "alice"})
	e.Process(ctx, Request{Input: "bob prompt", UserID: "bob"})
	e.Process(ctx, Request{Input: "alice again", UserID: "alice"})

	alice, err := svc.For("alice").RecentExchanges(ctx, 10)
	require.NoError(t, err)
	require.Len(t, alice, 4)
	for _, ex := range alice {
		assert.Equal(t, "alice", ex.UserID)
	}
	bob, err := svc.For("bob").RecentExchanges(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, bob, 2)
}

func TestProcessUnknownRouteFallsBack(t *testing.T) {
	r := router.Default()
	require.NoError(t, r.Prepend(router.Rule{Keywords: []string{"tweet"}, HandlerID: "SocialAgent"}))
	e := newEngine(t, Config{Router: r})

	res := e.Process(context.Background(), Request{Input: "a tweet about coffee"})
	assert.Equal(t, router.PromptOptimizer, res.Metadata.HandlerID)
	assert.Equal(t, "PromptSmith", res.Metadata.Agent)
}

func TestProcessSeesProfilesRegisteredAfterFirstRequest(t *testing.T) {
	ctx := context.Background()
	r := router.Default()
	require.NoError(t, r.Prepend(router.Rule{Keywords: []string{"tweet"}, HandlerID: "SocialAgent"}))
	reg := agent.DefaultRegistry()
	e := newEngine(t, Config{Router: r, Registry: reg})

	// Caches dave's handler set before SocialAgent exists.
	res := e.Process(ctx, Request{Input: "a tweet about coffee", UserID: "dave"})
	require.Equal(t, router.PromptOptimizer, res.Metadata.HandlerID)

	require.NoError(t, reg.Register(agent.Profile{ID: "SocialAgent", Name: "Socialite", Instruction: "be social"}))

	res = e.Process(ctx, Request{Input: "a tweet about coffee", UserID: "dave"})
	assert.Equal(t, "SocialAgent", res.Metadata.HandlerID)
	assert.Equal(t, "Socialite", res.Metadata.Agent)

	h, ok := e.Handler("dave", "SocialAgent")
	require.True(t, ok)
	assert.Equal(t, "dave", h.UserID())
}

func TestNewValidatesConfig(t *testing.T) {
	_, err := New(Config{})
	assert.Error(t, err)

	svc, err := memory.NewService(memory.ServiceConfig{Log: memory.NewInMemoryLog()})
	require.NoError(t, err)
	defer svc.Close()
	r, err := router.New("MissingAgent")
	require.NoError(t, err)
	_, err = New(Config{Memory: svc, Router: r})
	assert.Error(t, err)
}

func TestHandlerLookup(t *testing.T) {
	e := newEngine(t, Config{})
	h, ok := e.Handler("carol", router.ContentRewriter)
	require.True(t, ok)
	assert.Equal(t, "carol", h.UserID())
	_, ok = e.Handler("carol", "nope")
	assert.False(t, ok)
	assert.Len(t, e.Profiles(), 3)
	assert.Equal(t, router.EmailPrioritizer, e.Route("INBOX zero"))
}
