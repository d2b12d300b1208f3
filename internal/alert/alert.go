// Package alert formats and delivers crisis notifications to a human reviewer.
package alert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/ent0n29/solace/internal/risk"
)

// ErrNotificationFailure wraps every delivery error returned by Dispatcher.Send.
var ErrNotificationFailure = errors.New("notification failure")

const (
	DefaultRecipient = "admin.alerts.mh@example.com"
	DefaultTimeout   = 5 * time.Second
)

// Notifier delivers one formatted alert and returns a channel-specific delivery id.
type Notifier interface {
	Notify(ctx context.Context, subject, body, recipient string) (string, error)
}

// Event is everything an alert is built from.
type Event struct {
	At         time.Time
	ActorID    string
	SessionID  string
	Message    string
	Assessment risk.Assessment
}

type Result struct {
	DeliveryID string
	Err        error
}

// FormatNotification renders the fixed subject and body for an alert.
func FormatNotification(ev Event) (subject, body string) {
	subject = fmt.Sprintf("MENTAL HEALTH CRISIS ALERT - %s RISK", ev.Assessment.Level)

	indicators := "None specified"
	if len(ev.Assessment.Indicators) > 0 {
		indicators = strings.Join(ev.Assessment.Indicators, ", ")
	}

	var b strings.Builder
	b.WriteString("MENTAL HEALTH SUPPORT AGENT ALERT\n\n")
	fmt.Fprintf(&b, "Timestamp: %s\n", ev.At.UTC().Format("2006-01-02 15:04:05 UTC"))
	fmt.Fprintf(&b, "User ID: %s\n", ev.ActorID)
	fmt.Fprintf(&b, "Session ID: %s\n", ev.SessionID)
	fmt.Fprintf(&b, "Risk Level: %s\n\n", ev.Assessment.Level)
	b.WriteString("RISK INDICATORS DETECTED:\n")
	b.WriteString(indicators)
	b.WriteString("\n\nUSER MESSAGE:\n")
	b.WriteString(ev.Message)
	b.WriteString("\n\nRECOMMENDED ACTIONS:\n")
	b.WriteString("- Review full conversation for context\n")
	b.WriteString("- Consider immediate outreach if high risk\n")
	b.WriteString("- Provide appropriate mental health resources\n")
	b.WriteString("- Document incident per protocol\n\n")
	b.WriteString("This is an automated alert from the Mental Health Support Agent system.\n")
	return subject, b.String()
}

// Dispatcher sends alerts through a Notifier with its own timeout.
type Dispatcher struct {
	notifier  Notifier
	recipient string
	timeout   time.Duration
	now       func() time.Time
}

func NewDispatcher(n Notifier, recipient string, timeout time.Duration) *Dispatcher {
	if strings.TrimSpace(recipient) == "" {
		recipient = DefaultRecipient
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Dispatcher{
		notifier:  n,
		recipient: recipient,
		timeout:   timeout,
		now:       time.Now,
	}
}

func (d *Dispatcher) Recipient() string { return d.recipient }

// Send formats ev and delivers it. The caller's cancellation is ignored so a
// finished request cannot abort an alert already under way; the dispatcher
// timeout still applies. Send never panics.
func (d *Dispatcher) Send(ctx context.Context, ev Event) (res Result) {
	if ev.At.IsZero() {
		ev.At = d.now()
	}
	if d.notifier == nil {
		return Result{Err: fmt.Errorf("%w: no notifier configured", ErrNotificationFailure)}
	}

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			res = Result{Err: fmt.Errorf("%w: notifier panic: %v", ErrNotificationFailure, r)}
		}
	}()

	subject, body := FormatNotification(ev)
	id, err := d.notifier.Notify(sctx, subject, body, d.recipient)
	if err != nil {
		return Result{Err: fmt.Errorf("%w: %w", ErrNotificationFailure, err)}
	}
	return Result{DeliveryID: id}
}

// Close releases the notifier when it holds resources.
func (d *Dispatcher) Close() error {
	if c, ok := d.notifier.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
