package alert

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/apache/rocketmq-client-go/v2/primitive"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/ent0n29/solace/internal/risk"
)

func testEvent() Event {
	return Event{
		At:        time.Date(2025, 3, 4, 5, 6, 7, 0, time.FixedZone("CET", 3600)),
		ActorID:   "actor-1",
		SessionID: "session-1",
		Message:   "I want to end my life",
		Assessment: risk.Assessment{
			Level:       risk.High,
			Indicators:  []string{"end my life"},
			AlertNeeded: true,
		},
	}
}

func TestFormatNotification(t *testing.T) {
	subject, body := FormatNotification(testEvent())
	if subject != "MENTAL HEALTH CRISIS ALERT - HIGH RISK" {
		t.Fatalf("subject = %q", subject)
	}
	for _, want := range []string{
		"Timestamp: 2025-03-04 04:06:07 UTC",
		"User ID: actor-1",
		"Session ID: session-1",
		"Risk Level: HIGH",
		"end my life",
		"USER MESSAGE:\nI want to end my life",
		"RECOMMENDED ACTIONS:",
		"- Document incident per protocol",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("body missing %q:\n%s", want, body)
		}
	}
}

func TestFormatNotificationWithoutIndicators(t *testing.T) {
	ev := testEvent()
	ev.Assessment.Indicators = nil
	_, body := FormatNotification(ev)
	if !strings.Contains(body, "None specified") {
		t.Fatalf("body should say None specified:\n%s", body)
	}
}

func TestDispatcherSendSuccess(t *testing.T) {
	n := &recordingNotifier{id: "d-1"}
	d := NewDispatcher(n, "", 0)

	res := d.Send(context.Background(), testEvent())
	if res.Err != nil {
		t.Fatalf("Send() error = %v", res.Err)
	}
	if res.DeliveryID != "d-1" {
		t.Fatalf("DeliveryID = %q", res.DeliveryID)
	}
	if n.recipient != DefaultRecipient {
		t.Fatalf("recipient = %q, want %q", n.recipient, DefaultRecipient)
	}
	if n.calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", n.calls.Load())
	}
}

func TestDispatcherWrapsFailure(t *testing.T) {
	d := NewDispatcher(&recordingNotifier{err: errors.New("smtp down")}, "ops@example.com", time.Second)
	res := d.Send(context.Background(), testEvent())
	if !errors.Is(res.Err, ErrNotificationFailure) {
		t.Fatalf("Err = %v, want ErrNotificationFailure", res.Err)
	}
}

func TestDispatcherRecoversPanic(t *testing.T) {
	d := NewDispatcher(panicNotifier{}, "", time.Second)
	res := d.Send(context.Background(), testEvent())
	if !errors.Is(res.Err, ErrNotificationFailure) {
		t.Fatalf("Err = %v, want ErrNotificationFailure", res.Err)
	}
}

func TestDispatcherIgnoresCallerCancellation(t *testing.T) {
	n := &recordingNotifier{id: "d-2"}
	d := NewDispatcher(n, "", time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := d.Send(ctx, testEvent())
	if res.Err != nil {
		t.Fatalf("Send() error = %v, want delivery despite cancelled caller", res.Err)
	}
}

func TestDispatcherEnforcesTimeout(t *testing.T) {
	d := NewDispatcher(blockingNotifier{}, "", 20*time.Millisecond)
	start := time.Now()
	res := d.Send(context.Background(), testEvent())
	if !errors.Is(res.Err, context.DeadlineExceeded) {
		t.Fatalf("Err = %v, want deadline exceeded", res.Err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("Send() did not honour timeout")
	}
}

func TestLogNotifierWritesStructuredEntry(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	n := NewLogNotifier(zap.New(core))

	id, err := n.Notify(context.Background(), "subject", "body", "ops@example.com")
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if id == "" {
		t.Fatalf("Notify() returned empty delivery id")
	}
	entries := logs.FilterMessage("subject").All()
	if len(entries) != 1 {
		t.Fatalf("log entries = %d, want 1", len(entries))
	}
	if got := entries[0].ContextMap()["recipient"]; got != "ops@example.com" {
		t.Fatalf("recipient field = %v", got)
	}
}

func TestWebhookNotifierRetriesThenSucceeds(t *testing.T) {
	var calls atomic.Int32
	var mu sync.Mutex
	var keys []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		mu.Unlock()
		var p webhookPayload
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		if p.Subject != "s" || p.Recipient != "r" {
			t.Errorf("payload = %+v", p)
		}
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL)
	n.retry.Base = time.Millisecond
	id, err := n.Notify(context.Background(), "s", "b", "r")
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls = %d, want 2", calls.Load())
	}
	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 || keys[0] != id || keys[1] != id {
		t.Fatalf("idempotency keys = %v, want both %q", keys, id)
	}
}

func TestWebhookNotifierPermanentFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	if _, err := NewWebhookNotifier(srv.URL).Notify(context.Background(), "s", "b", "r"); err == nil {
		t.Fatalf("Notify() expected error")
	}
	if calls.Load() != 1 {
		t.Fatalf("calls = %d, want 1", calls.Load())
	}
}

func TestRocketMQNotifierPublishesTaggedMessage(t *testing.T) {
	s := &fakeSender{result: &primitive.SendResult{Status: primitive.SendOK, MsgID: "msg-1"}}
	n := newRocketMQNotifier(s, "")

	id, err := n.Notify(context.Background(), "subject", "body", "ops@example.com")
	if err != nil {
		t.Fatalf("Notify() error = %v", err)
	}
	if id != "msg-1" {
		t.Fatalf("id = %q", id)
	}
	if len(s.msgs) != 1 {
		t.Fatalf("sent %d messages, want 1", len(s.msgs))
	}
	msg := s.msgs[0]
	if msg.Topic != DefaultRocketMQTopic {
		t.Fatalf("topic = %q", msg.Topic)
	}
	if msg.GetTags() != rocketMQAlertTag {
		t.Fatalf("tag = %q", msg.GetTags())
	}
	var payload rocketMQAlert
	if err := json.Unmarshal(msg.Body, &payload); err != nil {
		t.Fatalf("unmarshal body: %v", err)
	}
	if payload.Subject != "subject" || payload.Recipient != "ops@example.com" {
		t.Fatalf("payload = %+v", payload)
	}
}

func TestRocketMQNotifierRejectsNonOKStatus(t *testing.T) {
	s := &fakeSender{result: &primitive.SendResult{Status: primitive.SendFlushDiskTimeout}}
	if _, err := newRocketMQNotifier(s, "t").Notify(context.Background(), "s", "b", "r"); err == nil {
		t.Fatalf("Notify() expected error for non-OK status")
	}
}

func TestNewRocketMQNotifierRequiresNameServers(t *testing.T) {
	if _, err := NewRocketMQNotifier(RocketMQConfig{NameServers: []string{" "}}); err == nil {
		t.Fatalf("NewRocketMQNotifier() expected error")
	}
}

func TestNewNotifierChannels(t *testing.T) {
	n, err := NewNotifier(Config{}, nil)
	if err != nil {
		t.Fatalf("NewNotifier() error = %v", err)
	}
	if _, ok := n.(*LogNotifier); !ok {
		t.Fatalf("default notifier = %T, want *LogNotifier", n)
	}
	if _, err := NewNotifier(Config{Channel: "webhook"}, nil); err == nil {
		t.Fatalf("webhook without url should error")
	}
	if _, err := NewNotifier(Config{Channel: "pager"}, nil); err == nil {
		t.Fatalf("unknown channel should error")
	}
}

type recordingNotifier struct {
	id        string
	err       error
	recipient string
	calls     atomic.Int32
}

func (n *recordingNotifier) Notify(ctx context.Context, _, _, recipient string) (string, error) {
	n.calls.Add(1)
	n.recipient = recipient
	if err := ctx.Err(); err != nil {
		return "", err
	}
	return n.id, n.err
}

type panicNotifier struct{}

func (panicNotifier) Notify(context.Context, string, string, string) (string, error) {
	panic("boom")
}

type blockingNotifier struct{}

func (blockingNotifier) Notify(ctx context.Context, _, _, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

type fakeSender struct {
	result *primitive.SendResult
	msgs   []*primitive.Message
}

func (s *fakeSender) SendSync(_ context.Context, msgs ...*primitive.Message) (*primitive.SendResult, error) {
	s.msgs = append(s.msgs, msgs...)
	return s.result, nil
}
