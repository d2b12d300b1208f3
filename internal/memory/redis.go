package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// RedisConfig describes the redis-backed store.
type RedisConfig struct {
	Addr     string
	Password string
	DB       int
	// Retention is applied as a key TTL on every append; zero keeps turns forever.
	Retention time.Duration
	Prefix    string
}

// RedisStore keeps one sorted set per session, scored by a per-session sequence.
type RedisStore struct {
	client    *redis.Client
	retention time.Duration
	prefix    string
}

func NewRedisStore(ctx context.Context, cfg RedisConfig) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect redis: %w", err)
	}

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "solace"
	}
	return &RedisStore{client: client, retention: cfg.Retention, prefix: prefix}, nil
}

func (s *RedisStore) turnsKey(actorID, sessionID string) string {
	return fmt.Sprintf("%s:turns:%s:%s", s.prefix, actorID, sessionID)
}

func (s *RedisStore) seqKey(actorID, sessionID string) string {
	return fmt.Sprintf("%s:seq:%s:%s", s.prefix, actorID, sessionID)
}

func (s *RedisStore) Append(ctx context.Context, turn Turn) (string, error) {
	if turn.ID == "" {
		turn.ID = uuid.NewString()
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(turn)
	if err != nil {
		return "", unavailable("encode turn", err)
	}

	seqKey := s.seqKey(turn.ActorID, turn.SessionID)
	seq, err := s.client.Incr(ctx, seqKey).Result()
	if err != nil {
		return "", unavailable("allocate turn sequence", err)
	}

	key := s.turnsKey(turn.ActorID, turn.SessionID)
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.ZAdd(ctx, key, &redis.Z{Score: float64(seq), Member: data})
		if s.retention > 0 {
			pipe.Expire(ctx, key, s.retention)
			pipe.Expire(ctx, seqKey, s.retention)
		}
		return nil
	})
	if err != nil {
		return "", unavailable("append turn", err)
	}
	return turn.ID, nil
}

func (s *RedisStore) RecentContext(ctx context.Context, actorID, sessionID string, limit int) ([]Turn, error) {
	if limit <= 0 {
		limit = DefaultContextTurns
	}
	raw, err := s.client.ZRevRange(ctx, s.turnsKey(actorID, sessionID), 0, int64(limit-1)).Result()
	if err != nil {
		return nil, unavailable("query recent context", err)
	}

	return decodeRedisTurns(raw)
}

// decodeRedisTurns parses newest-first sorted set members into chronological turns.
func decodeRedisTurns(raw []string) ([]Turn, error) {
	items := make([]Turn, 0, len(raw))
	for _, member := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(member), &t); err != nil {
			return nil, unavailable("decode turn", err)
		}
		items = append(items, t)
	}
	reverseTurns(items)
	return items, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
