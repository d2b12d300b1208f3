package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresStore persists conversational memory in PostgreSQL.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	if err := initSchema(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}

	return &PostgresStore{pool: pool}, nil
}

func initSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			seq BIGSERIAL PRIMARY KEY,
			id TEXT NOT NULL UNIQUE,
			actor_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_session_seq ON conversation_turns (actor_id, session_id, seq);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_created ON conversation_turns (created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (s *PostgresStore) Append(ctx context.Context, turn Turn) (string, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO conversation_turns (id, actor_id, session_id, role, content, pii_redacted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		turn.ID,
		turn.ActorID,
		turn.SessionID,
		string(turn.Role),
		turn.Text,
		turn.PIIRedacted,
		turn.CreatedAt,
	)
	if err != nil {
		return "", unavailable("append turn", err)
	}
	return turn.ID, nil
}

func (s *PostgresStore) RecentContext(ctx context.Context, actorID, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultContextTurns
	}

	rows, err := s.pool.Query(ctx,
		`SELECT id, actor_id, session_id, role, content, pii_redacted, created_at
		 FROM conversation_turns WHERE actor_id=$1 AND session_id=$2 ORDER BY seq DESC LIMIT $3`,
		actorID,
		sessionID,
		limit,
	)
	if err != nil {
		return nil, unavailable("query recent context", err)
	}
	defer rows.Close()

	items := make([]Turn, 0, limit)
	for rows.Next() {
		var t Turn
		var role string
		if err := rows.Scan(&t.ID, &t.ActorID, &t.SessionID, &role, &t.Text, &t.PIIRedacted, &t.CreatedAt); err != nil {
			return nil, unavailable("scan context row", err)
		}
		t.Role = Role(role)
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate context rows", err)
	}

	reverseTurns(items)
	return items, nil
}

// PurgeOlderThan deletes turns created before now-age and returns how many were removed.
func (s *PostgresStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM conversation_turns WHERE created_at < $1`,
		time.Now().UTC().Add(-age),
	)
	if err != nil {
		return 0, unavailable("purge turns", err)
	}
	return tag.RowsAffected(), nil
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

// reverseTurns flips newest-first query results into chronological order for prompt coherence.
func reverseTurns(items []Turn) {
	for i, j := 0, len(items)-1; i < j; i, j = i+1, j-1 {
		items[i], items[j] = items[j], items[i]
	}
}
