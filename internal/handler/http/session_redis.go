package http

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "catalog:session:"

// RedisSessionStore keeps each session as a Redis hash.
type RedisSessionStore struct {
	rdb redis.Cmdable
}

// NewRedisSessionStore creates a session store on rdb.
func NewRedisSessionStore(rdb redis.Cmdable) *RedisSessionStore {
	return &RedisSessionStore{rdb: rdb}
}

// Load returns the session attributes. Unknown sessions load as empty.
func (s *RedisSessionStore) Load(ctx context.Context, id string) (map[string]string, error) {
	values, err := s.rdb.HGetAll(ctx, sessionKeyPrefix+id).Result()
	if err != nil {
		return nil, fmt.Errorf("redis session load: %w", err)
	}
	return values, nil
}

// Save replaces the session hash and resets its expiry in one transaction.
func (s *RedisSessionStore) Save(ctx context.Context, id string, values map[string]string, ttl time.Duration) error {
	key := sessionKeyPrefix + id
	_, err := s.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, key)
		if len(values) == 0 {
			return nil
		}
		pairs := make([]any, 0, 2*len(values))
		for k, v := range values {
			pairs = append(pairs, k, v)
		}
		pipe.HSet(ctx, key, pairs...)
		pipe.Expire(ctx, key, ttl)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis session save: %w", err)
	}
	return nil
}
