package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter shares per-recipient send slots across worker processes.
// A slot is taken with a single SET NX PX round trip, so acquisition is
// atomic on the redis side; the key's remaining TTL is the retry-after.
type RedisLimiter struct {
	rdb    *redis.Client
	window time.Duration
}

var _ Limiter = (*RedisLimiter)(nil)

func NewRedisLimiter(rdb *redis.Client, window time.Duration) (*RedisLimiter, error) {
	if err := validWindow(window); err != nil {
		return nil, err
	}
	return &RedisLimiter{rdb: rdb, window: window}, nil
}

func (l *RedisLimiter) TryAcquire(ctx context.Context, recipient string) (bool, time.Duration, error) {
	key := "ratelimit:" + recipient

	ok, err := l.rdb.SetNX(ctx, key, time.Now().UTC().Format(time.RFC3339Nano), l.window).Result()
	if err != nil {
		return false, 0, err
	}
	if ok {
		return true, 0, nil
	}

	ttl, err := l.rdb.PTTL(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}
	if ttl < 0 {
		// Key expired between SETNX and PTTL; next claim will get the slot.
		ttl = 0
	}
	return false, ttl, nil
}
