// Package responder turns a user message and recent history into a supportive
// reply. It never fails: when the model cannot answer, the caller gets a fixed
// fallback text together with the cause.
package responder

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ent0n29/solace/internal/completion"
	"github.com/ent0n29/solace/internal/memory"
)

// ErrGenerationFailure marks a reply that came from the fallback text.
var ErrGenerationFailure = errors.New("generation failure")

// FallbackText is returned whenever the completion backend fails.
const FallbackText = "I'm here to listen and support you. While I'm having technical difficulties right now, please know that your feelings are valid and help is available. If you're in crisis, please contact a mental health professional or crisis hotline immediately."

const (
	DefaultContextTurns = 6
	DefaultMaxTokens    = 500
	DefaultTimeout      = 20 * time.Second
)

type Config struct {
	ContextTurns      int
	MaxTokens         int
	Timeout           time.Duration
	PromptTokenBudget int
	Counter           TokenCounter
}

// Reply is a generated response. Text is never empty.
type Reply struct {
	Text     string
	Fallback bool
	Cause    error
}

type Generator struct {
	completer completion.Completer
	cfg       Config
}

func NewGenerator(c completion.Completer, cfg Config) *Generator {
	if cfg.ContextTurns <= 0 {
		cfg.ContextTurns = DefaultContextTurns
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Counter == nil {
		cfg.Counter = RuneEstimator{}
	}
	return &Generator{completer: c, cfg: cfg}
}

func (g *Generator) Generate(ctx context.Context, message string, history []memory.Turn) Reply {
	prompt := g.Prompt(message, history)

	cctx, cancel := context.WithTimeout(ctx, g.cfg.Timeout)
	defer cancel()

	text, err := g.complete(cctx, prompt)
	if err == nil {
		text = strings.TrimSpace(text)
		if text == "" {
			err = completion.ErrEmptyCompletion
		}
	}
	if err != nil {
		return Reply{
			Text:     FallbackText,
			Fallback: true,
			Cause:    fmt.Errorf("%w: %w", ErrGenerationFailure, err),
		}
	}
	return Reply{Text: text}
}

func (g *Generator) complete(ctx context.Context, prompt string) (text string, err error) {
	if g.completer == nil {
		return "", errors.New("no completer configured")
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("completer panic: %v", r)
		}
	}()
	return g.completer.Complete(ctx, prompt, g.cfg.MaxTokens)
}

// Prompt renders the model prompt for message, trimming the history window
// from the oldest end until it fits PromptTokenBudget (when set).
func (g *Generator) Prompt(message string, history []memory.Turn) string {
	window := conversationWindow(history, message, g.cfg.ContextTurns)
	prompt := buildPrompt(message, window)
	if g.cfg.PromptTokenBudget <= 0 {
		return prompt
	}
	for len(window) > 0 && g.cfg.Counter.Count(prompt) > g.cfg.PromptTokenBudget {
		window = window[1:]
		prompt = buildPrompt(message, window)
	}
	return prompt
}
