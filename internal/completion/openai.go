package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
)

// OpenAICompleter talks to any OpenAI-compatible endpoint through langchaingo.
type OpenAICompleter struct {
	llm llms.Model
}

func NewOpenAICompleter(cfg Config) (*OpenAICompleter, error) {
	opts := []openai.Option{openai.WithToken(cfg.OpenAIAPIKey)}
	if m := strings.TrimSpace(cfg.OpenAIModel); m != "" {
		opts = append(opts, openai.WithModel(m))
	}
	if u := strings.TrimSpace(cfg.OpenAIBaseURL); u != "" {
		opts = append(opts, openai.WithBaseURL(u))
	}
	llm, err := openai.New(opts...)
	if err != nil {
		return nil, fmt.Errorf("create openai client: %w", err)
	}
	return &OpenAICompleter{llm: llm}, nil
}

// NewOpenAICompleterWithModel wraps an existing langchaingo model.
func NewOpenAICompleterWithModel(llm llms.Model) *OpenAICompleter {
	return &OpenAICompleter{llm: llm}
}

func (c *OpenAICompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var opts []llms.CallOption
	if maxTokens > 0 {
		opts = append(opts, llms.WithMaxTokens(maxTokens))
	}
	text, err := llms.GenerateFromSinglePrompt(ctx, c.llm, prompt, opts...)
	if err != nil {
		return "", fmt.Errorf("openai generate: %w", err)
	}
	return cleanCompletion(text)
}
