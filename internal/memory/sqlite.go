package memory

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists turns in a local SQLite file; rowid order is the session order.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(ctx context.Context, path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// SQLite serializes writers; a single connection avoids SQLITE_BUSY under concurrent turns.
	db.SetMaxOpenConns(1)

	stmts := []string{
		`CREATE TABLE IF NOT EXISTS conversation_turns (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			actor_id TEXT NOT NULL,
			session_id TEXT NOT NULL,
			role TEXT NOT NULL,
			content TEXT NOT NULL,
			pii_redacted INTEGER NOT NULL DEFAULT 0,
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_conversation_turns_session_seq ON conversation_turns (actor_id, session_id, seq);`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init schema failed on %q: %w", stmt, err)
		}
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Append(ctx context.Context, turn Turn) (string, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO conversation_turns (id, actor_id, session_id, role, content, pii_redacted, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		turn.ID,
		turn.ActorID,
		turn.SessionID,
		string(turn.Role),
		turn.Text,
		turn.PIIRedacted,
		turn.CreatedAt.UnixNano(),
	)
	if err != nil {
		return "", unavailable("append turn", err)
	}
	return turn.ID, nil
}

func (s *SQLiteStore) RecentContext(ctx context.Context, actorID, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultContextTurns
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, actor_id, session_id, role, content, pii_redacted, created_at
		 FROM conversation_turns WHERE actor_id=? AND session_id=? ORDER BY seq DESC LIMIT ?`,
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
		var (
			t       Turn
			role    string
			created int64
		)
		if err := rows.Scan(&t.ID, &t.ActorID, &t.SessionID, &role, &t.Text, &t.PIIRedacted, &created); err != nil {
			return nil, unavailable("scan context row", err)
		}
		t.Role = Role(role)
		t.CreatedAt = time.Unix(0, created).UTC()
		items = append(items, t)
	}
	if err := rows.Err(); err != nil {
		return nil, unavailable("iterate context rows", err)
	}
	reverseTurns(items)
	return items, nil
}

// PurgeOlderThan deletes turns created before now-age.
func (s *SQLiteStore) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM conversation_turns WHERE created_at < ?`,
		time.Now().UTC().Add(-age).UnixNano(),
	)
	if err != nil {
		return 0, unavailable("purge turns", err)
	}
	return res.RowsAffected()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
