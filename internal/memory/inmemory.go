package memory

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// InMemoryStore is a simple in-process memory store for local/dev use.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[sessionKey][]Turn
	now     func() time.Time
}

type sessionKey struct {
	actorID   string
	sessionID string
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		records: make(map[sessionKey][]Turn),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *InMemoryStore) Append(ctx context.Context, turn Turn) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", unavailable("append turn", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = s.now()
	}
	key := sessionKey{actorID: turn.ActorID, sessionID: turn.SessionID}
	arr := s.records[key]
	// Keep timestamps monotonic within a session even if the wall clock steps back.
	if n := len(arr); n > 0 && !turn.CreatedAt.After(arr[n-1].CreatedAt) {
		turn.CreatedAt = arr[n-1].CreatedAt.Add(time.Nanosecond)
	}
	s.records[key] = append(arr, turn)
	return turn.ID, nil
}

func (s *InMemoryStore) RecentContext(ctx context.Context, actorID, sessionID string, limit int) ([]Turn, error) {
	if err := ctx.Err(); err != nil {
		return nil, unavailable("recent context", err)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	arr := s.records[sessionKey{actorID: actorID, sessionID: sessionID}]
	if len(arr) == 0 {
		return []Turn{}, nil
	}
	if limit <= 0 {
		limit = DefaultContextTurns
	}
	if limit > len(arr) {
		limit = len(arr)
	}
	out := make([]Turn, 0, limit)
	out = append(out, arr[len(arr)-limit:]...)
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
