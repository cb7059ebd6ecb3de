package generation

import (
	"context"
	"errors"
	"fmt"
)

// FallbackBackend attempts a primary backend first and falls back on error.
type FallbackBackend struct {
	primary  Backend
	fallback Backend
}

func NewFallbackBackend(primary Backend, fallback Backend) *FallbackBackend {
	return &FallbackBackend{
		primary:  primary,
		fallback: fallback,
	}
}

func (b *FallbackBackend) Name() string {
	switch {
	case b == nil:
		return "fallback"
	case b.primary == nil && b.fallback != nil:
		return b.fallback.Name()
	case b.fallback == nil && b.primary != nil:
		return b.primary.Name()
	case b.primary == nil:
		return "fallback"
	}
	return b.primary.Name() + "+" + b.fallback.Name()
}

func (b *FallbackBackend) Generate(ctx context.Context, messages []Message) (string, error) {
	if b == nil || b.primary == nil {
		if b != nil && b.fallback != nil {
			return b.fallback.Generate(ctx, messages)
		}
		return "", fmt.Errorf("fallback backend misconfigured")
	}

	text, err := b.primary.Generate(ctx, messages)
	if err == nil {
		return text, nil
	}
	// The caller gave up; a second provider would only burn the remaining budget.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if b.fallback == nil {
		return "", err
	}
	fallbackText, fallbackErr := b.fallback.Generate(ctx, messages)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary backend error: %w; fallback backend error: %v", err, fallbackErr)
	}
	return fallbackText, nil
}
