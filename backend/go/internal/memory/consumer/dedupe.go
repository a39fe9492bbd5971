package consumer

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
)

// Deduplicator remembers which messages were already handled.
type Deduplicator interface {
	// Claim returns true the first time key is seen.
	Claim(ctx context.Context, key string) (bool, error)
	// Release forgets key so a redelivery of it is processed again.
	Release(ctx context.Context, key string) error
}

// KeyClaimer is the part of a redis client the deduplicator needs.
type KeyClaimer interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// RedisDeduplicator claims keys with SETNX so redelivered messages are
// processed once within ttl.
type RedisDeduplicator struct {
	client KeyClaimer
	prefix string
	ttl    time.Duration
}

// NewRedisDeduplicator creates a deduplicator storing keys under prefix.
func NewRedisDeduplicator(client KeyClaimer, prefix string, ttl time.Duration) *RedisDeduplicator {
	return &RedisDeduplicator{client: client, prefix: prefix, ttl: ttl}
}

// Claim implements Deduplicator.
func (d *RedisDeduplicator) Claim(ctx context.Context, key string) (bool, error) {
	ok, err := d.client.SetNX(ctx, d.prefix+key, time.Now().Unix(), d.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx %s: %w", key, err)
	}
	return ok, nil
}

// Release implements Deduplicator.
func (d *RedisDeduplicator) Release(ctx context.Context, key string) error {
	if err := d.client.Del(ctx, d.prefix+key).Err(); err != nil {
		return fmt.Errorf("redis del %s: %w", key, err)
	}
	return nil
}
