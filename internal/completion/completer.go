package completion

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrEmptyCompletion is returned when a backend answers with no usable text.
var ErrEmptyCompletion = errors.New("empty completion")

// Completer is a synchronous prompt -> text language-model call.
type Completer interface {
	Complete(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Config controls completer construction.
type Config struct {
	Mode string

	HTTPURL string

	ArkAPIKey    string
	ArkAccessKey string
	ArkSecretKey string
	ArkModel     string
	ArkBaseURL   string
	ArkRegion    string

	OpenAIAPIKey  string
	OpenAIModel   string
	OpenAIBaseURL string
}

func (c Config) arkEnabled() bool {
	return strings.TrimSpace(c.ArkModel) != "" &&
		(strings.TrimSpace(c.ArkAPIKey) != "" || (c.ArkAccessKey != "" && c.ArkSecretKey != ""))
}

func (c Config) openAIEnabled() bool {
	return strings.TrimSpace(c.OpenAIAPIKey) != ""
}

// New builds the configured completer. Mode "auto" chains every configured real
// backend (ark, openai, http) and only falls back to the mock when none is set.
func New(ctx context.Context, cfg Config) (Completer, error) {
	mode := strings.ToLower(strings.TrimSpace(cfg.Mode))
	if mode == "" {
		mode = "auto"
	}

	switch mode {
	case "auto":
		return newAuto(ctx, cfg)
	case "http":
		if strings.TrimSpace(cfg.HTTPURL) == "" {
			return nil, errors.New("completion HTTP url is required for http mode")
		}
		return NewHTTPCompleter(cfg.HTTPURL), nil
	case "ark":
		if !cfg.arkEnabled() {
			return nil, errors.New("ark mode requires ARK_MODEL and ARK_API_KEY (or ARK_ACCESS_KEY/ARK_SECRET_KEY)")
		}
		return NewArkCompleter(ctx, cfg)
	case "openai":
		if !cfg.openAIEnabled() {
			return nil, errors.New("openai mode requires OPENAI_API_KEY")
		}
		return NewOpenAICompleter(cfg)
	case "mock":
		return NewMockCompleter(), nil
	default:
		return nil, fmt.Errorf("unsupported completion mode %q", cfg.Mode)
	}
}

func newAuto(ctx context.Context, cfg Config) (Completer, error) {
	var chain []Completer
	if cfg.arkEnabled() {
		c, err := NewArkCompleter(ctx, cfg)
		if err != nil {
			return nil, err
		}
		chain = append(chain, c)
	}
	if cfg.openAIEnabled() {
		c, err := NewOpenAICompleter(cfg)
		if err != nil {
			return nil, err
		}
		chain = append(chain, c)
	}
	if strings.TrimSpace(cfg.HTTPURL) != "" {
		chain = append(chain, NewHTTPCompleter(cfg.HTTPURL))
	}

	if len(chain) == 0 {
		return NewMockCompleter(), nil
	}
	out := chain[len(chain)-1]
	for i := len(chain) - 2; i >= 0; i-- {
		out = NewFallbackCompleter(chain[i], out)
	}
	return out, nil
}

func cleanCompletion(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", ErrEmptyCompletion
	}
	return text, nil
}
