package completion

import (
	"context"
	"errors"
	"fmt"
)

// FallbackCompleter attempts a primary completer first and falls back on error.
type FallbackCompleter struct {
	primary  Completer
	fallback Completer
}

func NewFallbackCompleter(primary, fallback Completer) *FallbackCompleter {
	return &FallbackCompleter{
		primary:  primary,
		fallback: fallback,
	}
}

// Primary returns the preferred completer used before fallback.
func (c *FallbackCompleter) Primary() Completer {
	if c == nil {
		return nil
	}
	return c.primary
}

// Secondary returns the fallback completer.
func (c *FallbackCompleter) Secondary() Completer {
	if c == nil {
		return nil
	}
	return c.fallback
}

func (c *FallbackCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if c == nil || c.primary == nil {
		if c != nil && c.fallback != nil {
			return c.fallback.Complete(ctx, prompt, maxTokens)
		}
		return "", fmt.Errorf("fallback completer misconfigured")
	}

	text, err := c.primary.Complete(ctx, prompt, maxTokens)
	if err == nil {
		return text, nil
	}
	// The caller's budget is spent; a second backend would only run past it.
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return "", err
	}
	if c.fallback == nil {
		return "", err
	}
	fallbackText, fallbackErr := c.fallback.Complete(ctx, prompt, maxTokens)
	if fallbackErr != nil {
		return "", fmt.Errorf("primary completer error: %w; fallback completer error: %v", err, fallbackErr)
	}
	return fallbackText, nil
}
