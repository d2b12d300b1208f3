package memory

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Config selects and configures the memory backend.
type Config struct {
	Backend       string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisDB       int
	SQLitePath    string
	Retention     time.Duration
}

// NewStore creates the configured store. Backend "auto" prefers postgres, then redis,
// then sqlite, and falls back to in-memory.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	backend := strings.ToLower(strings.TrimSpace(cfg.Backend))
	if backend == "" {
		backend = "auto"
	}
	if backend == "auto" {
		switch {
		case strings.TrimSpace(cfg.DatabaseURL) != "":
			backend = "postgres"
		case strings.TrimSpace(cfg.RedisAddr) != "":
			backend = "redis"
		case strings.TrimSpace(cfg.SQLitePath) != "":
			backend = "sqlite"
		default:
			backend = "memory"
		}
	}

	switch backend {
	case "memory":
		return NewInMemoryStore(), nil
	case "postgres":
		if strings.TrimSpace(cfg.DatabaseURL) == "" {
			return nil, fmt.Errorf("DATABASE_URL is required for postgres memory backend")
		}
		return NewPostgresStore(ctx, cfg.DatabaseURL)
	case "redis":
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return nil, fmt.Errorf("REDIS_ADDR is required for redis memory backend")
		}
		return NewRedisStore(ctx, RedisConfig{
			Addr:      cfg.RedisAddr,
			Password:  cfg.RedisPassword,
			DB:        cfg.RedisDB,
			Retention: cfg.Retention,
		})
	case "sqlite":
		if strings.TrimSpace(cfg.SQLitePath) == "" {
			return nil, fmt.Errorf("SQLITE_PATH is required for sqlite memory backend")
		}
		return NewSQLiteStore(ctx, cfg.SQLitePath)
	default:
		return nil, fmt.Errorf("unsupported memory backend %q (expected auto|memory|postgres|redis|sqlite)", cfg.Backend)
	}
}

// Purger is implemented by stores that enforce retention by deletion instead of key expiry.
type Purger interface {
	PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error)
}

// UnavailableStore rejects every operation. Useful when the backend is known to be down.
type UnavailableStore struct {
	Err error
}

func (s UnavailableStore) cause() error {
	if s.Err != nil {
		return s.Err
	}
	return fmt.Errorf("backend unreachable")
}

func (s UnavailableStore) Append(context.Context, Turn) (string, error) {
	return "", unavailable("append turn", s.cause())
}

func (s UnavailableStore) RecentContext(context.Context, string, string, int) ([]Turn, error) {
	return nil, unavailable("recent context", s.cause())
}

func (s UnavailableStore) Close() error { return nil }
