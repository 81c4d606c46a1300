package database

import (
	"context"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/codes"
)

func miniRedisConfig(t *testing.T) (*miniredis.Miniredis, RedisConfig) {
	t.Helper()
	mr := miniredis.RunT(t)
	port, err := strconv.Atoi(mr.Port())
	require.NoError(t, err)
	cfg := DefaultRedisConfig()
	cfg.Host = mr.Host()
	cfg.Port = port
	return mr, cfg
}

func TestRedisConfig_Addr(t *testing.T) {
	assert.Equal(t, "localhost:6379", DefaultRedisConfig().Addr())
	assert.Equal(t, "[::1]:6380", RedisConfig{Host: "::1", Port: 6380}.Addr())
}

func TestNewRedisClient_Success(t *testing.T) {
	mr, cfg := miniRedisConfig(t)

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisClient_Unreachable(t *testing.T) {
	mr, cfg := miniRedisConfig(t)
	mr.Close()

	_, err := NewRedisClient(context.Background(), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ping redis")
}

func TestNewRedisClient_TracesCommands(t *testing.T) {
	exporter := setupTestTracer(t)
	_, cfg := miniRedisConfig(t)

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()
	exporter.Reset()

	ctx := context.Background()
	require.NoError(t, client.Set(ctx, "catalog:facets:abc", "secret-value", 0).Err())
	_, err = client.Get(ctx, "catalog:missing").Result()
	require.ErrorIs(t, err, redis.Nil)

	spans := exporter.GetSpans()
	require.Len(t, spans, 2)
	assert.Equal(t, "redis.set", spans[0].Name)
	assert.Equal(t, "redis.get", spans[1].Name)
	// A miss is not a failure.
	assert.Equal(t, codes.Unset, spans[1].Status.Code)
	for _, kv := range spans[0].Attributes {
		if kv.Key == "db.statement" {
			assert.Equal(t, "set catalog:facets:abc", kv.Value.AsString())
		}
	}
}

func TestNewRedisClient_TracesPipelines(t *testing.T) {
	exporter := setupTestTracer(t)
	_, cfg := miniRedisConfig(t)

	client, err := NewRedisClient(context.Background(), cfg)
	require.NoError(t, err)
	defer client.Close()
	exporter.Reset()

	_, err = client.Pipelined(context.Background(), func(p redis.Pipeliner) error {
		p.Set(context.Background(), "a", "1", 0)
		p.Del(context.Background(), "b")
		return nil
	})
	require.NoError(t, err)

	spans := exporter.GetSpans()
	require.Len(t, spans, 1)
	assert.Equal(t, "redis.pipeline", spans[0].Name)
}
