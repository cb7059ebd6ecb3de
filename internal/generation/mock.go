package generation

import (
	"context"
	"strings"
)

const stubEchoLimit = 500

// StubBackend provides deterministic local replies when no provider is available.
type StubBackend struct{}

func NewStubBackend() *StubBackend { return &StubBackend{} }

func (b *StubBackend) Name() string { return "stub" }

func (b *StubBackend) Generate(ctx context.Context, messages []Message) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return "[stub-llm] I received: " + truncateRunes(lastContent(messages), stubEchoLimit), nil
}

func lastContent(messages []Message) string {
	for i := len(messages) - 1; i >= 0; i-- {
		if strings.TrimSpace(messages[i].Content) != "" {
			return messages[i].Content
		}
	}
	return ""
}

func truncateRunes(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
