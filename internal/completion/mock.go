package completion

import (
	"context"
	"fmt"
	"strings"
)

// MockCompleter provides deterministic local replies when no model backend is configured.
type MockCompleter struct{}

func NewMockCompleter() *MockCompleter { return &MockCompleter{} }

func (c *MockCompleter) Complete(ctx context.Context, prompt string, _ int) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	default:
	}
	return buildMockReply(prompt), nil
}

const mockMessageMarker = "Current user message:"

func buildMockReply(prompt string) string {
	msg := strings.TrimSpace(prompt)
	if i := strings.LastIndex(msg, mockMessageMarker); i >= 0 {
		msg = strings.TrimSpace(msg[i+len(mockMessageMarker):])
		if j := strings.Index(msg, "\n"); j >= 0 {
			msg = strings.TrimSpace(msg[:j])
		}
	}
	if msg == "" {
		return "I am listening."
	}
	return fmt.Sprintf("Thank you for sharing that with me. I heard you: %s. How are you feeling right now?", msg)
}
