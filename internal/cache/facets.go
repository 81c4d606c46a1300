// Package cache keeps facet lookups in Redis between index writes.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/facet"
)

const (
	// DefaultTTL bounds how long facets survive without a write.
	DefaultTTL = 5 * time.Minute

	keyPrefix     = "catalog:facets:"
	generationKey = keyPrefix + "generation"
)

// FacetCache stores facet counts in Redis. Entries are keyed by the cache
// generation and a hash of the facet request. Invalidate bumps the
// generation, so an entry computed before a write lands under a key no
// reader asks for and expires with its TTL.
type FacetCache struct {
	rdb    redis.Cmdable
	ttl    time.Duration
	logger *slog.Logger
}

// NewFacetCache creates a facet cache. A non-positive ttl selects DefaultTTL.
func NewFacetCache(rdb redis.Cmdable, ttl time.Duration, logger *slog.Logger) *FacetCache {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &FacetCache{rdb: rdb, ttl: ttl, logger: logger}
}

// Generation returns the current cache generation. A lookup reads it before
// querying the engine and stores its result under it.
func (c *FacetCache) Generation(ctx context.Context) (uint64, error) {
	gen, err := c.rdb.Get(ctx, generationKey).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("facet cache generation: %w", err)
	}
	return gen, nil
}

// GetFacets returns the counts cached for req in generation gen. A miss is
// not an error.
func (c *FacetCache) GetFacets(ctx context.Context, gen uint64, req facet.Request) ([]domain.FacetCount, bool, error) {
	key := cacheKey(gen, req)
	data, err := c.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get facets: %w", err)
	}

	var counts []domain.FacetCount
	if err := json.Unmarshal(data, &counts); err != nil {
		// A corrupt entry is treated as a miss and overwritten by the next set.
		c.logger.WarnContext(ctx, "discarding unreadable facet cache entry",
			slog.String("key", key),
			slog.String("error", err.Error()),
		)
		return nil, false, nil
	}

	c.logger.DebugContext(ctx, "facet cache hit", slog.String("field", req.Field))
	return counts, true, nil
}

// SetFacets stores counts for req in generation gen.
func (c *FacetCache) SetFacets(ctx context.Context, gen uint64, req facet.Request, counts []domain.FacetCount) error {
	if counts == nil {
		counts = []domain.FacetCount{}
	}
	data, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("set facets: marshal: %w", err)
	}
	if err := c.rdb.Set(ctx, cacheKey(gen, req), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("set facets: %w", err)
	}
	return nil
}

// Invalidate starts a new generation, orphaning every cached entry.
func (c *FacetCache) Invalidate(ctx context.Context) error {
	gen, err := c.rdb.Incr(ctx, generationKey).Result()
	if err != nil {
		return fmt.Errorf("invalidate facets: %w", err)
	}

	c.logger.DebugContext(ctx, "facet cache invalidated", slog.Int64("generation", gen))
	return nil
}

// cacheKey hashes the facet field and its scope predicate.
func cacheKey(gen uint64, req facet.Request) string {
	sum := sha256.Sum256([]byte(req.Field + "|" + req.Scope))
	return fmt.Sprintf("%s%d:%x", keyPrefix, gen, sum[:12])
}
