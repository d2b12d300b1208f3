package memory

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser      Role = "USER"
	RoleAssistant Role = "ASSISTANT"
)

// DefaultContextTurns is used when RecentContext is called with a non-positive limit.
const DefaultContextTurns = 10

// ErrStorageUnavailable wraps every backend failure so callers can degrade instead of abort.
var ErrStorageUnavailable = errors.New("storage unavailable")

// Turn stores a single user or assistant message of a session.
type Turn struct {
	ID          string    `json:"id"`
	ActorID     string    `json:"actor_id"`
	SessionID   string    `json:"session_id"`
	Role        Role      `json:"role"`
	Text        string    `json:"text"`
	PIIRedacted bool      `json:"pii_redacted"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is an append-only log of conversation turns keyed by (actor, session).
type Store interface {
	// Append durably records a turn and returns its event ID.
	Append(ctx context.Context, turn Turn) (string, error)
	// RecentContext returns up to maxTurns most recent turns of the session, oldest first.
	// A session without history yields an empty result, not an error.
	RecentContext(ctx context.Context, actorID, sessionID string, maxTurns int) ([]Turn, error)
	Close() error
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStorageUnavailable, err)
}
