package completion

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/tmc/langchaingo/llms"
)

func TestNewAutoFallsBackToMockWhenNothingConfigured(t *testing.T) {
	c, err := New(context.Background(), Config{Mode: "auto"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := c.(*MockCompleter); !ok {
		t.Fatalf("New() = %T, want *MockCompleter", c)
	}
	text, err := c.Complete(context.Background(), "Recent conversation:\n\nCurrent user message: hello\n\nResponse:", 50)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if !strings.Contains(text, "I heard you: hello") {
		t.Fatalf("unexpected mock text: %q", text)
	}
}

func TestNewRejectsUnknownMode(t *testing.T) {
	if _, err := New(context.Background(), Config{Mode: "carrier-pigeon"}); err == nil {
		t.Fatalf("New() expected error for unknown mode")
	}
}

func TestNewRequiresCredentialsForExplicitModes(t *testing.T) {
	for _, mode := range []string{"http", "ark", "openai"} {
		if _, err := New(context.Background(), Config{Mode: mode}); err == nil {
			t.Fatalf("New(%q) expected error without credentials", mode)
		}
	}
}

func TestNewAutoChainsHTTPWhenConfigured(t *testing.T) {
	c, err := New(context.Background(), Config{Mode: "auto", HTTPURL: "http://example.test/complete"})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if _, ok := c.(*HTTPCompleter); !ok {
		t.Fatalf("New() = %T, want *HTTPCompleter", c)
	}
}

func TestFallbackCompleterUsesFallback(t *testing.T) {
	c := NewFallbackCompleter(errCompleter{}, okCompleter{text: "fallback"})
	text, err := c.Complete(context.Background(), "x", 10)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "fallback" {
		t.Fatalf("text = %q, want fallback", text)
	}
}

func TestFallbackCompleterSkipsFallbackOnDeadline(t *testing.T) {
	fb := &countingCompleter{text: "fallback"}
	c := NewFallbackCompleter(deadlineCompleter{}, fb)
	_, err := c.Complete(context.Background(), "x", 10)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("error = %v, want context.DeadlineExceeded", err)
	}
	if fb.calls != 0 {
		t.Fatalf("fallback should not be called, calls = %d", fb.calls)
	}
}

func TestFallbackCompleterReportsBothErrors(t *testing.T) {
	c := NewFallbackCompleter(errCompleter{}, errCompleter{})
	if _, err := c.Complete(context.Background(), "x", 10); err == nil {
		t.Fatalf("Complete() expected error when both completers fail")
	}
}

func TestHTTPCompleterRetriesRetryableStatus(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req httpCompletionRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Errorf("decode request: %v", err)
		}
		if req.MaxTokens != 500 {
			t.Errorf("max_tokens = %d, want 500", req.MaxTokens)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"text": "  I'm here with you.  "})
	}))
	defer srv.Close()

	text, err := NewHTTPCompleter(srv.URL).Complete(context.Background(), "prompt", 500)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "I'm here with you." {
		t.Fatalf("text = %q", text)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
}

func TestHTTPCompleterDoesNotRetryClientError(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		http.Error(w, "bad prompt", http.StatusBadRequest)
	}))
	defer srv.Close()

	_, err := NewHTTPCompleter(srv.URL).Complete(context.Background(), "prompt", 10)
	var statusErr *StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("error = %v, want StatusError 400", err)
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestHTTPCompleterEmptyBodyIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"text":"   "}`))
	}))
	defer srv.Close()

	_, err := NewHTTPCompleter(srv.URL).Complete(context.Background(), "prompt", 10)
	if !errors.Is(err, ErrEmptyCompletion) {
		t.Fatalf("error = %v, want ErrEmptyCompletion", err)
	}
}

func TestExtractTextContentParts(t *testing.T) {
	obj := map[string]any{
		"content": []any{
			map[string]any{"type": "text", "text": "Hello "},
			map[string]any{"type": "text", "text": "there"},
		},
	}
	if got := extractText(obj); got != "Hello there" {
		t.Fatalf("extractText() = %q", got)
	}
}

func TestArkCompleterPassesPromptAndMaxTokens(t *testing.T) {
	fake := &fakeChatModel{reply: "  take a slow breath with me  "}
	c := &ArkCompleter{chat: fake}

	text, err := c.Complete(context.Background(), "the prompt", 321)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "take a slow breath with me" {
		t.Fatalf("text = %q", text)
	}
	if len(fake.input) != 1 || fake.input[0].Role != schema.User || fake.input[0].Content != "the prompt" {
		t.Fatalf("input = %+v, want single user message", fake.input)
	}
	if fake.maxTokens != 321 {
		t.Fatalf("maxTokens = %d, want 321", fake.maxTokens)
	}
}

func TestArkCompleterWrapsModelError(t *testing.T) {
	c := &ArkCompleter{chat: &fakeChatModel{err: errors.New("quota")}}
	if _, err := c.Complete(context.Background(), "p", 10); err == nil {
		t.Fatalf("Complete() expected error")
	}
}

func TestOpenAICompleterUsesLangchainModel(t *testing.T) {
	fake := &fakeLLM{reply: "You matter."}
	c := NewOpenAICompleterWithModel(fake)

	text, err := c.Complete(context.Background(), "the prompt", 42)
	if err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if text != "You matter." {
		t.Fatalf("text = %q", text)
	}
	if fake.prompt != "the prompt" {
		t.Fatalf("prompt = %q", fake.prompt)
	}
	if fake.maxTokens != 42 {
		t.Fatalf("maxTokens = %d, want 42", fake.maxTokens)
	}
}

func TestMockCompleterHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewMockCompleter().Complete(ctx, "x", 1); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

type errCompleter struct{}

func (errCompleter) Complete(context.Context, string, int) (string, error) {
	return "", errors.New("boom")
}

type okCompleter struct {
	text string
}

func (c okCompleter) Complete(context.Context, string, int) (string, error) {
	return c.text, nil
}

type deadlineCompleter struct{}

func (deadlineCompleter) Complete(context.Context, string, int) (string, error) {
	return "", context.DeadlineExceeded
}

type countingCompleter struct {
	text  string
	calls int
}

func (c *countingCompleter) Complete(context.Context, string, int) (string, error) {
	c.calls++
	return c.text, nil
}

type fakeChatModel struct {
	reply     string
	err       error
	input     []*schema.Message
	maxTokens int
}

func (m *fakeChatModel) Generate(_ context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	m.input = input
	if o := model.GetCommonOptions(nil, opts...); o.MaxTokens != nil {
		m.maxTokens = *o.MaxTokens
	}
	if m.err != nil {
		return nil, m.err
	}
	return schema.AssistantMessage(m.reply, nil), nil
}

type fakeLLM struct {
	reply     string
	prompt    string
	maxTokens int
}

func (m *fakeLLM) GenerateContent(_ context.Context, messages []llms.MessageContent, options ...llms.CallOption) (*llms.ContentResponse, error) {
	opts := llms.CallOptions{}
	for _, o := range options {
		o(&opts)
	}
	m.maxTokens = opts.MaxTokens
	for _, msg := range messages {
		for _, part := range msg.Parts {
			if tp, ok := part.(llms.TextContent); ok {
				m.prompt += tp.Text
			}
		}
	}
	return &llms.ContentResponse{Choices: []*llms.ContentChoice{{Content: m.reply}}}, nil
}

func (m *fakeLLM) Call(ctx context.Context, prompt string, options ...llms.CallOption) (string, error) {
	return llms.GenerateFromSinglePrompt(ctx, m, prompt, options...)
}
