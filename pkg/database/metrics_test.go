package database

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestNewRedisPoolStatsCollector_NotNil(t *testing.T) {
	c := NewRedisPoolStatsCollector(nil, "test-service")
	require.NotNil(t, c)
	assert.Equal(t, "test-service", c.service)
}

func TestRedisPoolStatsCollector_Describe(t *testing.T) {
	c := NewRedisPoolStatsCollector(nil, "test-service")

	ch := make(chan *prometheus.Desc, 10)
	c.Describe(ch)
	close(ch)

	names := make([]string, 0, 6)
	for d := range ch {
		names = append(names, d.String())
	}
	require.Len(t, names, 6)
	assert.Contains(t, names[0], "redis_pool_hits_total")
	assert.Contains(t, names[3], "redis_pool_total_connections")
}

func TestRedisPoolStatsCollector_Collect(t *testing.T) {
	client := newTestRedis(t)
	require.NoError(t, client.Ping(context.Background()).Err())

	c := NewRedisPoolStatsCollector(client, "test-service")
	assert.Equal(t, 6, testutil.CollectAndCount(c))
}

func TestRedisPoolStatsCollector_ImplementsCollector(t *testing.T) {
	var _ prometheus.Collector = NewRedisPoolStatsCollector(nil, "test-service")
}

func TestRegisterRedisPoolMetrics_Twice(t *testing.T) {
	client := newTestRedis(t)

	require.NoError(t, RegisterRedisPoolMetrics(client, "catalog-test"))
	assert.NoError(t, RegisterRedisPoolMetrics(client, "catalog-test"))
}
