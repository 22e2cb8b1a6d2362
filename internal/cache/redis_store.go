// internal/cache/redis_store.go
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jason-s-yu/tabletop/internal/models"
)

// DefaultSessionTTL bounds how long an abandoned session lingers in Redis.
const DefaultSessionTTL = 24 * time.Hour

// RedisStore keeps each session as one JSON string under "session:<id>" with a TTL.
// Conditional writes use WATCH/MULTI/EXEC.
type RedisStore struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewRedisStore returns a store on rdb. A non-positive ttl uses DefaultSessionTTL.
func NewRedisStore(rdb *redis.Client, ttl time.Duration) *RedisStore {
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &RedisStore{rdb: rdb, ttl: ttl}
}

func sessionKey(id string) string {
	return "session:" + id
}

func (r *RedisStore) Load(ctx context.Context, id string) (*models.Session, error) {
	raw, err := r.rdb.Get(ctx, sessionKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("load %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", id, err)
	}
	return decodeSession(raw)
}

func (r *RedisStore) Create(ctx context.Context, s *models.Session) (bool, error) {
	raw, err := encodeSession(s, 1)
	if err != nil {
		return false, err
	}
	created, err := r.rdb.SetNX(ctx, sessionKey(s.ID), raw, r.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("create %s: %w", s.ID, err)
	}
	if created {
		s.Version = 1
	}
	return created, nil
}

func (r *RedisStore) Save(ctx context.Context, s *models.Session, expected int64) error {
	key := sessionKey(s.ID)
	raw, err := encodeSession(s, expected+1)
	if err != nil {
		return err
	}

	err = r.rdb.Watch(ctx, func(tx *redis.Tx) error {
		current, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return ErrSessionNotFound
		}
		if err != nil {
			return err
		}
		var stored struct {
			Version int64 `json:"version"`
		}
		if err := json.Unmarshal(current, &stored); err != nil {
			return fmt.Errorf("failed to unmarshal stored version: %w", err)
		}
		if stored.Version != expected {
			return ErrVersionConflict
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, raw, r.ttl)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		s.Version = expected + 1
		return nil
	case errors.Is(err, redis.TxFailedErr):
		return fmt.Errorf("save %s at version %d: %w", s.ID, expected, ErrVersionConflict)
	default:
		return fmt.Errorf("save %s at version %d: %w", s.ID, expected, err)
	}
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	if err := r.rdb.Del(ctx, sessionKey(id)).Err(); err != nil {
		return fmt.Errorf("delete %s: %w", id, err)
	}
	return nil
}
