package cache

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/catalogsearch/internal/domain"
	"github.com/utafrali/catalogsearch/internal/facet"
)

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestCache(t *testing.T) (*FacetCache, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewFacetCache(rdb, time.Minute, newTestLogger()), mr
}

var topLevel = facet.Request{Field: domain.FieldType1, Scope: domain.MatchAll}

func TestFacetCache_MissThenHit(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Zero(t, gen)

	_, ok, err := c.GetFacets(ctx, gen, topLevel)
	require.NoError(t, err)
	assert.False(t, ok)

	counts := []domain.FacetCount{
		{Field: domain.FieldType1, Value: "electronics", Count: 3},
		{Field: domain.FieldType1, Value: "home", Count: 1},
	}
	require.NoError(t, c.SetFacets(ctx, gen, topLevel, counts))

	got, ok, err := c.GetFacets(ctx, gen, topLevel)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, counts, got)
}

func TestFacetCache_EmptyCountsAreCached(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	require.NoError(t, c.SetFacets(ctx, 0, topLevel, nil))

	got, ok, err := c.GetFacets(ctx, 0, topLevel)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, got)
}

func TestFacetCache_Keys(t *testing.T) {
	a := facet.Request{Field: domain.FieldType3, Scope: "goodstype2:mobile"}
	b := facet.Request{Field: domain.FieldType3, Scope: "goodstype2:kitchen"}

	assert.NotEqual(t, cacheKey(0, a), cacheKey(0, b))
	assert.NotEqual(t, cacheKey(0, a), cacheKey(1, a))
	assert.Equal(t, cacheKey(3, a), cacheKey(3, facet.Request{Field: domain.FieldType3, Scope: "goodstype2:mobile"}))
	assert.Contains(t, cacheKey(0, a), keyPrefix)
	assert.NotEqual(t, generationKey, cacheKey(0, a))
}

func TestFacetCache_TTL(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, c.SetFacets(ctx, 0, topLevel, []domain.FacetCount{{Field: domain.FieldType1, Value: "home", Count: 1}}))
	assert.Equal(t, time.Minute, mr.TTL(cacheKey(0, topLevel)))

	mr.FastForward(2 * time.Minute)
	_, ok, err := c.GetFacets(ctx, 0, topLevel)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacetCache_DefaultTTL(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer rdb.Close()

	c := NewFacetCache(rdb, 0, newTestLogger())
	assert.Equal(t, DefaultTTL, c.ttl)
}

func TestFacetCache_InvalidateStartsNewGeneration(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	other := facet.Request{Field: domain.FieldAttributes, Scope: "goodstype3:phones"}
	require.NoError(t, c.SetFacets(ctx, 0, topLevel, []domain.FacetCount{}))
	require.NoError(t, c.SetFacets(ctx, 0, other, []domain.FacetCount{}))
	require.NoError(t, mr.Set("session:abc", "keep"))

	require.NoError(t, c.Invalidate(ctx))

	gen, err := c.Generation(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), gen)

	_, ok, err := c.GetFacets(ctx, gen, topLevel)
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.GetFacets(ctx, gen, other)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.True(t, mr.Exists("session:abc"))
}

func TestFacetCache_SetAfterInvalidateIsNotServed(t *testing.T) {
	ctx := context.Background()
	c, _ := newTestCache(t)

	// A lookup reads the generation and queries the engine, then a write
	// commits and invalidates before the lookup stores its counts.
	before, err := c.Generation(ctx)
	require.NoError(t, err)
	require.NoError(t, c.Invalidate(ctx))
	require.NoError(t, c.SetFacets(ctx, before, topLevel, []domain.FacetCount{
		{Field: domain.FieldType1, Value: "stale", Count: 1},
	}))

	now, err := c.Generation(ctx)
	require.NoError(t, err)
	_, ok, err := c.GetFacets(ctx, now, topLevel)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacetCache_GenerationsAreShared(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)
	newCache := func() *FacetCache {
		rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
		t.Cleanup(func() { _ = rdb.Close() })
		return NewFacetCache(rdb, time.Minute, newTestLogger())
	}
	a, b := newCache(), newCache()

	// One replica's write invalidates what the other cached.
	require.NoError(t, a.SetFacets(ctx, 0, topLevel, []domain.FacetCount{}))
	require.NoError(t, b.Invalidate(ctx))

	gen, err := a.Generation(ctx)
	require.NoError(t, err)
	_, ok, err := a.GetFacets(ctx, gen, topLevel)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacetCache_CorruptEntryIsAMiss(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)

	require.NoError(t, mr.Set(cacheKey(0, topLevel), "not json"))

	_, ok, err := c.GetFacets(ctx, 0, topLevel)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFacetCache_ConnectionError(t *testing.T) {
	ctx := context.Background()
	c, mr := newTestCache(t)
	mr.Close()

	_, err := c.Generation(ctx)
	assert.Error(t, err)
	_, _, err = c.GetFacets(ctx, 0, topLevel)
	assert.Error(t, err)
	assert.Error(t, c.SetFacets(ctx, 0, topLevel, nil))
	assert.Error(t, c.Invalidate(ctx))
}
