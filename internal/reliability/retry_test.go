package reliability

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"
)

func TestIsRetryableHTTPStatus(t *testing.T) {
	cases := []struct {
		code int
		want bool
	}{
		{200, false},
		{400, false},
		{429, true},
		{500, true},
		{503, true},
	}
	for _, tc := range cases {
		got := IsRetryableHTTPStatus(tc.code)
		if got != tc.want {
			t.Fatalf("IsRetryableHTTPStatus(%d) = %v, want %v", tc.code, got, tc.want)
		}
	}
}

func TestExponentialBackoffCap(t *testing.T) {
	base := 100 * time.Millisecond
	capDur := 700 * time.Millisecond
	if got := ExponentialBackoff(0, base, capDur); got != base {
		t.Fatalf("attempt 0 = %v, want %v", got, base)
	}
	if got := ExponentialBackoff(10, base, capDur); got != capDur {
		t.Fatalf("attempt 10 = %v, want %v", got, capDur)
	}
}

type flakyErr struct{ retry bool }

func (e flakyErr) Error() string   { return "flaky" }
func (e flakyErr) Retryable() bool { return e.retry }

func TestDoRetriesRetryableErrors(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 3, Base: time.Millisecond, Cap: 2 * time.Millisecond}, func(context.Context) error {
		calls++
		if calls < 3 {
			return fmt.Errorf("wrapped: %w", flakyErr{retry: true})
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	if calls != 3 {
		t.Fatalf("calls = %d, want 3", calls)
	}
}

func TestDoStopsOnPermanentError(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 5, Base: time.Millisecond, Cap: time.Millisecond}, func(context.Context) error {
		calls++
		return flakyErr{retry: false}
	})
	if err == nil {
		t.Fatalf("Do() expected error")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1", calls)
	}
}

func TestDoGivesUpAfterAttempts(t *testing.T) {
	calls := 0
	err := Do(context.Background(), Policy{Attempts: 2, Base: time.Millisecond, Cap: time.Millisecond}, func(context.Context) error {
		calls++
		return flakyErr{retry: true}
	})
	if err == nil || calls != 2 {
		t.Fatalf("Do() err = %v calls = %d, want error after 2 calls", err, calls)
	}
}

func TestIsRetryableIgnoresContextErrors(t *testing.T) {
	if IsRetryable(context.DeadlineExceeded) {
		t.Fatalf("IsRetryable(DeadlineExceeded) = true, want false")
	}
	if IsRetryable(errors.New("plain")) {
		t.Fatalf("IsRetryable(plain) = true, want false")
	}
}
