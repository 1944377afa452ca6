package cache

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// Redis stores entries in Redis. Every namespace carries a generation counter
// that is part of each data key; InvalidateAll bumps the counter, orphaning
// all older keys at once, and Redis TTLs reclaim them.
type Redis struct {
	client *redis.Client
	prefix string
}

var _ Store = (*Redis)(nil)

// NewRedis connects using a redis:// URL.
func NewRedis(ctx context.Context, url, prefix string) (*Redis, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewRedisWithClient(client, prefix), nil
}

// NewRedisWithClient wraps an existing client.
func NewRedisWithClient(client *redis.Client, prefix string) *Redis {
	if prefix == "" {
		prefix = "bookmate"
	}
	return &Redis{client: client, prefix: prefix}
}

func (r *Redis) generationKey(namespace string) string {
	return r.prefix + ":gen:" + namespace
}

func (r *Redis) dataKey(namespace string, generation int64, key string) string {
	return r.prefix + ":" + namespace + ":" + strconv.FormatInt(generation, 10) + ":" + key
}

func (r *Redis) generation(ctx context.Context, namespace string) (int64, error) {
	gen, err := r.client.Get(ctx, r.generationKey(namespace)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

func (r *Redis) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	gen, err := r.generation(ctx, namespace)
	if err != nil {
		return nil, false, fmt.Errorf("redis generation: %w", err)
	}
	val, err := r.client.Get(ctx, r.dataKey(namespace, gen, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

func (r *Redis) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration) error {
	gen, err := r.generation(ctx, namespace)
	if err != nil {
		return fmt.Errorf("redis generation: %w", err)
	}
	if err := r.client.Set(ctx, r.dataKey(namespace, gen, key), value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

func (r *Redis) InvalidateAll(ctx context.Context, namespace string) error {
	if err := r.client.Incr(ctx, r.generationKey(namespace)).Err(); err != nil {
		return fmt.Errorf("redis invalidate: %w", err)
	}
	return nil
}

func (r *Redis) Close() error {
	return r.client.Close()
}
