package kafka

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalogsearch/pkg/logger"
)

// IdempotencyStore remembers which events were applied. Implementations must
// be safe for concurrent use.
type IdempotencyStore interface {
	Contains(ctx context.Context, eventID string) (bool, error)
	// Add is called only after the event was handled successfully.
	Add(ctx context.Context, eventID string) error
}

// sweepEvery is how many Adds pass between sweeps of expired entries.
const sweepEvery = 1024

// MemoryIdempotencyStore keeps event IDs in process memory, so it only
// deduplicates redeliveries to the same replica.
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	seen    map[string]time.Time
	ttl     time.Duration
	adds    int
	nowFunc func() time.Time
}

// NewMemoryIdempotencyStore creates a store whose entries expire after ttl.
func NewMemoryIdempotencyStore(ttl time.Duration) *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{seen: make(map[string]time.Time), ttl: ttl, nowFunc: time.Now}
}

func (s *MemoryIdempotencyStore) Contains(_ context.Context, eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expires, ok := s.seen[eventID]
	if ok && !s.nowFunc().Before(expires) {
		delete(s.seen, eventID)
		return false, nil
	}
	return ok, nil
}

func (s *MemoryIdempotencyStore) Add(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.nowFunc()
	s.seen[eventID] = now.Add(s.ttl)
	if s.adds++; s.adds%sweepEvery == 0 {
		for id, expires := range s.seen {
			if !now.Before(expires) {
				delete(s.seen, id)
			}
		}
	}
	return nil
}

// Len returns the number of tracked IDs, expired ones not yet swept included.
func (s *MemoryIdempotencyStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.seen)
}

const idempotencyKeyPrefix = "catalog:event:"

// RedisIdempotencyStore records event IDs as expiring Redis keys, shared by
// every replica in the consumer group.
type RedisIdempotencyStore struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisIdempotencyStore(rdb redis.Cmdable, ttl time.Duration) *RedisIdempotencyStore {
	return &RedisIdempotencyStore{rdb: rdb, ttl: ttl}
}

func (s *RedisIdempotencyStore) Contains(ctx context.Context, eventID string) (bool, error) {
	n, err := s.rdb.Exists(ctx, idempotencyKeyPrefix+eventID).Result()
	if err != nil {
		return false, fmt.Errorf("idempotency lookup: %w", err)
	}
	return n > 0, nil
}

func (s *RedisIdempotencyStore) Add(ctx context.Context, eventID string) error {
	if err := s.rdb.Set(ctx, idempotencyKeyPrefix+eventID, time.Now().Unix(), s.ttl).Err(); err != nil {
		return fmt.Errorf("idempotency record: %w", err)
	}
	return nil
}

// IdempotentHandler skips events whose ID the store has already seen. A
// failing store never blocks indexing: the event is handled anyway and may
// be applied twice, which index writes tolerate.
func IdempotentHandler(store IdempotencyStore, next Handler, fallback *slog.Logger) Handler {
	return func(ctx context.Context, event *Event) error {
		if event.EventID == "" {
			return next(ctx, event)
		}
		log := logger.FromContext(ctx)
		if log == slog.Default() {
			log = fallback
		}

		seen, err := store.Contains(ctx, event.EventID)
		switch {
		case err != nil:
			log.WarnContext(ctx, "idempotency store lookup failed, processing anyway",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		case seen:
			if topic, group := deliveryFrom(ctx); topic != "" {
				ConsumerMessagesDuplicate.WithLabelValues(topic, group).Inc()
			}
			log.DebugContext(ctx, "skipping duplicate event",
				slog.String("event_id", event.EventID),
				slog.String("event_type", event.EventType),
			)
			return nil
		}

		if err := next(ctx, event); err != nil {
			return err
		}
		if err := store.Add(ctx, event.EventID); err != nil {
			log.WarnContext(ctx, "failed to record processed event",
				slog.String("event_id", event.EventID),
				slog.String("error", err.Error()),
			)
		}
		return nil
	}
}
