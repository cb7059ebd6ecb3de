package generation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ent0n29/agentforge/internal/reliability"
)

func TestStubBackendEchoesLastMessage(t *testing.T) {
	b := NewStubBackend()
	got, err := b.Generate(context.Background(), []Message{
		System("You are PromptSmith."),
		User("write a tweet about coffee"),
	})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "[stub-llm] I received: write a tweet about coffee" {
		t.Fatalf("Generate() = %q", got)
	}

	long := strings.Repeat("é", 900)
	got, err = b.Generate(context.Background(), []Message{User(long)})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if want := "[stub-llm] I received: " + strings.Repeat("é", 500); got != want {
		t.Fatalf("Generate() did not truncate to 500 runes, len = %d", len([]rune(got)))
	}
}

func TestStubBackendHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewStubBackend().Generate(ctx, []Message{User("x")}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestNewBackendModes(t *testing.T) {
	ctx := context.Background()
	cases := []struct {
		name    string
		cfg     Config
		want    string
		wantErr bool
	}{
		{name: "mock", cfg: Config{Mode: "mock"}, want: "stub"},
		{name: "ollama", cfg: Config{Mode: "OLLAMA"}, want: "ollama"},
		{name: "openai", cfg: Config{Mode: "openai", OpenAIKey: "k"}, want: "openai"},
		{name: "openai without key or url", cfg: Config{Mode: "openai"}, wantErr: true},
		{name: "genai without key", cfg: Config{Mode: "genai"}, wantErr: true},
		{name: "unknown", cfg: Config{Mode: "telepathy"}, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := NewBackend(ctx, tc.cfg)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, b.Name())
		})
	}
}

func TestNewBackendAutoFallsBackToStubWhenNothingReachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close()

	b, err := NewBackend(context.Background(), Config{Mode: "auto", OllamaHost: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "stub", b.Name())
}

func TestNewBackendAutoUsesReachableOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/tags" {
			_, _ = w.Write([]byte(`{"models":[]}`))
			return
		}
		http.NotFound(w, r)
	}))
	defer srv.Close()

	b, err := NewBackend(context.Background(), Config{OllamaHost: srv.URL})
	require.NoError(t, err)
	assert.Equal(t, "ollama", b.Name())
}

func TestFallbackBackendUsesFallback(t *testing.T) {
	b := NewFallbackBackend(errBackend{}, okBackend{text: "fallback"})
	got, err := b.Generate(context.Background(), []Message{User("x")})
	if err != nil {
		t.Fatalf("Generate() error = %v", err)
	}
	if got != "fallback" {
		t.Fatalf("Generate() = %q, want fallback", got)
	}
	if b.Name() != "err+ok" {
		t.Fatalf("Name() = %q", b.Name())
	}
}

func TestFallbackBackendSkipsFallbackOnCanceledContext(t *testing.T) {
	fb := &countingBackend{text: "fallback"}
	b := NewFallbackBackend(cancelBackend{}, fb)
	_, err := b.Generate(context.Background(), []Message{User("x")})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
	if fb.calls != 0 {
		t.Fatalf("fallback should not be called, calls = %d", fb.calls)
	}
}

func TestFallbackBackendJoinsErrors(t *testing.T) {
	b := NewFallbackBackend(errBackend{}, errBackend{})
	_, err := b.Generate(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "fallback backend error") {
		t.Fatalf("error = %v, want both failures reported", err)
	}
}

func TestOllamaBackendChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/chat", r.URL.Path)
		var req ollamaChatRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "llama3.2", req.Model)
		assert.False(t, req.Stream)
		if assert.Len(t, req.Messages, 2) {
			assert.Equal(t, RoleSystem, req.Messages[0].Role)
		}
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message": map[string]string{"role": "assistant", "content": " improved prompt "},
		})
	}))
	defer srv.Close()

	b := NewOllamaBackend(srv.URL+"/", "")
	got, err := b.Generate(context.Background(), []Message{System("sys"), User("hi")})
	require.NoError(t, err)
	assert.Equal(t, "improved prompt", got)
}

func TestOllamaBackendRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			http.Error(w, "busy", http.StatusServiceUnavailable)
			return
		}
		_, _ = w.Write([]byte(`{"message":{"role":"assistant","content":"ok"}}`))
	}))
	defer srv.Close()

	b := NewOllamaBackend(srv.URL, "m")
	b.policy = reliability.Policy{Attempts: 3, Base: time.Millisecond, Cap: 2 * time.Millisecond}
	got, err := b.Generate(context.Background(), []Message{User("hi")})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, int32(3), calls.Load())
}

func TestOllamaBackendDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	b := NewOllamaBackend(srv.URL, "missing")
	b.policy = reliability.Policy{Attempts: 3, Base: time.Millisecond, Cap: time.Millisecond}
	_, err := b.Generate(context.Background(), []Message{User("hi")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Equal(t, int32(1), calls.Load())
}

func TestOpenAIBackendChat(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"hello"}}]}`))
	}))
	defer srv.Close()

	got, err := NewOpenAIBackend(srv.URL, "sk-test", "m").Generate(context.Background(), []Message{User("hi")})
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestOpenAIBackendEmptyChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIBackend(srv.URL, "", "m").Generate(context.Background(), []Message{User("hi")})
	assert.ErrorIs(t, err, ErrEmptyResponse)
}

func TestToGenAIContentsFoldsSystemMessages(t *testing.T) {
	contents, system := toGenAIContents([]Message{
		System("instructions"),
		System("Previous conversation:\nUser: hi"),
		Assistant("earlier answer"),
		User("question"),
	})
	assert.Equal(t, "instructions\n\nPrevious conversation:\nUser: hi", system)
	require.Len(t, contents, 2)
	assert.Equal(t, "model", string(contents[0].Role))
	assert.Equal(t, "user", string(contents[1].Role))
}

type errBackend struct{}

func (errBackend) Name() string { return "err" }
func (errBackend) Generate(context.Context, []Message) (string, error) {
	return "", errors.New("boom")
}

type okBackend struct {
	text string
}

func (okBackend) Name() string { return "ok" }
func (b okBackend) Generate(context.Context, []Message) (string, error) {
	return b.text, nil
}

type cancelBackend struct{}

func (cancelBackend) Name() string { return "cancel" }
func (cancelBackend) Generate(context.Context, []Message) (string, error) {
	return "", context.Canceled
}

type countingBackend struct {
	text  string
	calls int
}

func (b *countingBackend) Name() string { return "counting" }
func (b *countingBackend) Generate(context.Context, []Message) (string, error) {
	b.calls++
	return b.text, nil
}
