package alert

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ent0n29/solace/internal/reliability"
)

// WebhookNotifier POSTs alerts as JSON to a reviewer endpoint.
type WebhookNotifier struct {
	url    string
	client *http.Client
	retry  reliability.Policy
}

type webhookPayload struct {
	ID        string `json:"id"`
	Recipient string `json:"recipient"`
	Subject   string `json:"subject"`
	Body      string `json:"body"`
}

type webhookStatusError struct {
	code int
}

func (e *webhookStatusError) Error() string {
	return fmt.Sprintf("webhook status %d", e.code)
}

func (e *webhookStatusError) Retryable() bool {
	return reliability.IsRetryableHTTPStatus(e.code)
}

func NewWebhookNotifier(url string) *WebhookNotifier {
	return &WebhookNotifier{
		url:    strings.TrimSpace(url),
		client: &http.Client{},
		retry:  reliability.Policy{Attempts: 3, Base: 250 * time.Millisecond, Cap: 2 * time.Second},
	}
}

func (n *WebhookNotifier) Notify(ctx context.Context, subject, body, recipient string) (string, error) {
	id := uuid.NewString()
	payload, err := json.Marshal(webhookPayload{
		ID:        id,
		Recipient: recipient,
		Subject:   subject,
		Body:      body,
	})
	if err != nil {
		return "", fmt.Errorf("marshal alert: %w", err)
	}

	err = reliability.Do(ctx, n.retry, func(ctx context.Context) error {
		return n.post(ctx, id, payload)
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (n *WebhookNotifier) post(ctx context.Context, id string, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	// Receivers dedupe retried deliveries on this key.
	req.Header.Set("Idempotency-Key", id)

	res, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send alert: %w", err)
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 4<<10))

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return &webhookStatusError{code: res.StatusCode}
	}
	return nil
}
