package database

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// PoolSize defaults to go-redis' 10 connections per CPU when zero.
	PoolSize int
	// DialTimeout and ReadTimeout fall back to the go-redis defaults.
	DialTimeout time.Duration
	ReadTimeout time.Duration
}

// DefaultRedisConfig returns the defaults for a local Redis.
func DefaultRedisConfig() RedisConfig {
	return RedisConfig{
		Host:        "localhost",
		Port:        6379,
		DialTimeout: 5 * time.Second,
		ReadTimeout: 3 * time.Second,
	}
}

// Addr returns the host:port address, bracketing IPv6 literals.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, fmt.Sprint(c.Port))
}

// NewRedisClient connects to Redis and verifies the connection with PING.
// Every command is traced and timed through TraceQuery.
func NewRedisClient(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:        cfg.Addr(),
		Password:    cfg.Password,
		DB:          cfg.DB,
		PoolSize:    cfg.PoolSize,
		DialTimeout: cfg.DialTimeout,
		ReadTimeout: cfg.ReadTimeout,
	})
	client.AddHook(redisTracingHook{})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr(), err)
	}
	return client, nil
}

// redisTracingHook reports each command, and each pipeline as a whole, to
// TraceQuery. Statements carry the command name and first key only so
// cached values never reach spans or logs.
type redisTracingHook struct{}

func (redisTracingHook) DialHook(next redis.DialHook) redis.DialHook {
	return next
}

func (redisTracingHook) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		ctx, end := TraceQuery(ctx, "redis", cmd.Name(), redisStatement(cmd))
		err := next(ctx, cmd)
		end(redisError(err))
		return err
	}
}

func (redisTracingHook) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		names := make([]string, 0, len(cmds))
		for _, cmd := range cmds {
			names = append(names, cmd.Name())
		}
		ctx, end := TraceQuery(ctx, "redis", "pipeline", strings.Join(names, " "))
		err := next(ctx, cmds)
		end(redisError(err))
		return err
	}
}

func redisStatement(cmd redis.Cmder) string {
	args := cmd.Args()
	if len(args) < 2 {
		return cmd.Name()
	}
	return fmt.Sprintf("%s %v", cmd.Name(), args[1])
}

// redisError drops redis.Nil, which only reports a cache miss.
func redisError(err error) error {
	if err == redis.Nil {
		return nil
	}
	return err
}
