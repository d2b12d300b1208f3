package completion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ent0n29/solace/internal/reliability"
)

// HTTPCompleter forwards prompts to a completion-compatible HTTP endpoint.
type HTTPCompleter struct {
	url    string
	client *http.Client
	retry  reliability.Policy
}

type httpCompletionRequest struct {
	Prompt    string `json:"prompt"`
	MaxTokens int    `json:"max_tokens,omitempty"`
}

// StatusError reports a non-2xx answer from the completion endpoint.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("completion http status %d: %s", e.Code, e.Body)
}

// Retryable reports whether the upstream status is worth retrying.
func (e *StatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.Code)
}

func NewHTTPCompleter(url string) *HTTPCompleter {
	return &HTTPCompleter{
		url: strings.TrimSpace(url),
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
		retry: reliability.Policy{Attempts: 2, Base: 200 * time.Millisecond, Cap: time.Second},
	}
}

func (c *HTTPCompleter) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	payload, err := json.Marshal(httpCompletionRequest{Prompt: prompt, MaxTokens: maxTokens})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var text string
	err = reliability.Do(ctx, c.retry, func(ctx context.Context) error {
		var postErr error
		text, postErr = c.post(ctx, payload)
		return postErr
	})
	if err != nil {
		return "", err
	}
	return text, nil
}

func (c *HTTPCompleter) post(ctx context.Context, payload []byte) (string, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &StatusError{Code: res.StatusCode, Body: string(body)}
	}

	body, err := io.ReadAll(io.LimitReader(res.Body, 4<<20))
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(body, &obj); err != nil {
		return cleanCompletion(string(body))
	}
	return cleanCompletion(extractText(obj))
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"text", "completion", "output", "content", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	// Anthropic-style {"content":[{"text":"..."}]}.
	if arr, ok := obj["content"].([]any); ok {
		var b strings.Builder
		for _, item := range arr {
			part, ok := item.(map[string]any)
			if !ok {
				continue
			}
			if s, ok := part["text"].(string); ok {
				b.WriteString(s)
			}
		}
		return b.String()
	}
	return ""
}
