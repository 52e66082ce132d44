package slotlock

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultHoldPrefix = "hold:slot:"

// RedisHoldStore coordinates slot holds across replicas by relying on Redis
// SETNX semantics. A TTL is attached to every hold to avoid stale locks.
type RedisHoldStore struct {
	client    redis.Cmdable
	keyPrefix string
}

// NewRedisHoldStore constructs the hold helper.
func NewRedisHoldStore(client redis.Cmdable, prefix string) *RedisHoldStore {
	if prefix == "" {
		prefix = defaultHoldPrefix
	}
	return &RedisHoldStore{client: client, keyPrefix: prefix}
}

// TryHold attempts to acquire a hold using SET NX EX.
func (r *RedisHoldStore) TryHold(ctx context.Context, key SlotKey, ttl time.Duration) (bool, error) {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	ok, err := r.client.SetNX(ctx, r.keyPrefix+key.String(), "held", ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx: %w", err)
	}
	return ok, nil
}

// Release removes the hold key.
func (r *RedisHoldStore) Release(ctx context.Context, key SlotKey) error {
	if err := r.client.Del(ctx, r.keyPrefix+key.String()).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}
