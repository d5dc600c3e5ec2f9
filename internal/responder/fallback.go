package responder

import (
	"context"
	"errors"
	"fmt"
)

// FallbackBackend tries a primary backend first and falls back on error.
type FallbackBackend struct {
	primary  Backend
	fallback Backend
}

func NewFallbackBackend(primary, fallback Backend) *FallbackBackend {
	return &FallbackBackend{primary: primary, fallback: fallback}
}

func (b *FallbackBackend) Name() string {
	if b == nil || b.primary == nil {
		return "fallback"
	}
	return b.primary.Name()
}

// Primary returns the preferred backend used before fallback.
func (b *FallbackBackend) Primary() Backend {
	if b == nil {
		return nil
	}
	return b.primary
}

// Secondary returns the fallback backend.
func (b *FallbackBackend) Secondary() Backend {
	if b == nil {
		return nil
	}
	return b.fallback
}

func (b *FallbackBackend) Complete(ctx context.Context, req Request) (string, error) {
	if b == nil || b.primary == nil {
		if b != nil && b.fallback != nil {
			return b.fallback.Complete(ctx, req)
		}
		return "", fmt.Errorf("fallback backend misconfigured")
	}
	text, err := b.primary.Complete(ctx, req)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if b.fallback == nil {
		return "", err
	}
	fallbackText, fallbackErr := b.fallback.Complete(ctx, req)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary backend error: %w; fallback backend error: %v", err, fallbackErr)
	}
	return fallbackText, nil
}
