package completion

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

const defaultArkBaseURL = "https://ark.cn-beijing.volces.com/api/v3"

// chatGenerator is the part of an eino chat model this package calls.
type chatGenerator interface {
	Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error)
}

// ArkCompleter sends prompts to a Volcengine Ark chat model through eino.
type ArkCompleter struct {
	chat chatGenerator
}

func NewArkCompleter(ctx context.Context, cfg Config) (*ArkCompleter, error) {
	baseURL := strings.TrimSpace(cfg.ArkBaseURL)
	if baseURL == "" {
		baseURL = defaultArkBaseURL
	}
	chat, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:   baseURL,
		Region:    cfg.ArkRegion,
		APIKey:    cfg.ArkAPIKey,
		AccessKey: cfg.ArkAccessKey,
		SecretKey: cfg.ArkSecretKey,
		Model:     cfg.ArkModel,
	})
	if err != nil {
		return nil, fmt.Errorf("create ark chat model: %w", err)
	}
	return &ArkCompleter{chat: chat}, nil
}

// NewArkCompleterWithModel wraps an existing eino chat model.
func NewArkCompleterWithModel(chat model.BaseChatModel) *ArkCompleter {
	return &ArkCompleter{chat: chat}
}

func (c *ArkCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	var opts []model.Option
	if maxTokens > 0 {
		opts = append(opts, model.WithMaxTokens(maxTokens))
	}
	resp, err := c.chat.Generate(ctx, []*schema.Message{schema.UserMessage(prompt)}, opts...)
	if err != nil {
		return "", fmt.Errorf("ark generate: %w", err)
	}
	if resp == nil {
		return "", ErrEmptyCompletion
	}
	return cleanCompletion(resp.Content)
}
