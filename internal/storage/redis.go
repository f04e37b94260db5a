package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisKeyPrefix = "pd:ctx:"

// RedisClient wraps the go-redis client with health checking
type RedisClient struct {
	*redis.Client
}

// NewRedisClient connects to url and pings it
func NewRedisClient(ctx context.Context, url string) (*RedisClient, error) {
	if url == "" {
		return nil, fmt.Errorf("redis url is required")
	}

	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisClient{Client: client}, nil
}

func (c *RedisClient) Health(ctx context.Context) error {
	return c.Ping(ctx).Err()
}

// RedisBackend stores each browser context as one hash. Every write
// refreshes the hash ttl so idle contexts expire on their own.
type RedisBackend struct {
	client *RedisClient
	ttl    time.Duration
}

var _ Backend = (*RedisBackend)(nil)

func NewRedisBackend(client *RedisClient, ttl time.Duration) *RedisBackend {
	return &RedisBackend{client: client, ttl: ttl}
}

func scopeKey(scope string) string {
	return redisKeyPrefix + scope
}

func (r *RedisBackend) Get(ctx context.Context, scope string, key Key) (string, error) {
	v, err := r.client.HGet(ctx, scopeKey(scope), string(key)).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("redis hget %s: %w", key, err)
	}
	return v, nil
}

func (r *RedisBackend) Set(ctx context.Context, scope string, key Key, value string) error {
	k := scopeKey(scope)
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, k, string(key), value)
		if r.ttl > 0 {
			pipe.Expire(ctx, k, r.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis hset %s: %w", key, err)
	}
	return nil
}

func (r *RedisBackend) Delete(ctx context.Context, scope string, keys ...Key) error {
	if len(keys) == 0 {
		return nil
	}
	fields := make([]string, len(keys))
	for i, k := range keys {
		fields[i] = string(k)
	}
	if err := r.client.HDel(ctx, scopeKey(scope), fields...).Err(); err != nil {
		return fmt.Errorf("redis hdel: %w", err)
	}
	return nil
}

// Health pings the server
func (r *RedisBackend) Health(ctx context.Context) error {
	return r.client.Health(ctx)
}

func (r *RedisBackend) Close() error {
	return r.client.Close()
}
