package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newRedisLimiter(t *testing.T, window time.Duration) (*RedisLimiter, *miniredis.Miniredis) {
	t.Helper()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	l, err := NewRedisLimiter(rdb, window)
	if err != nil {
		t.Fatalf("NewRedisLimiter: %v", err)
	}
	return l, mr
}

func TestRedisLimiter_AcquireAndDefer(t *testing.T) {
	t.Parallel()

	l, mr := newRedisLimiter(t, 30*time.Second)
	ctx := context.Background()

	allowed, _, err := l.TryAcquire(ctx, "+15550001111")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !allowed {
		t.Fatalf("expected first acquire allowed")
	}

	if !mr.Exists("ratelimit:+15550001111") {
		t.Fatalf("expected rate limit key to exist")
	}

	// Inside the window: deferred with remaining TTL.
	mr.FastForward(10 * time.Second)
	allowed, retryAfter, err := l.TryAcquire(ctx, "+15550001111")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if allowed {
		t.Fatalf("expected second acquire deferred")
	}
	if retryAfter <= 0 || retryAfter > 20*time.Second {
		t.Fatalf("expected retryAfter in (0, 20s], got %v", retryAfter)
	}

	// After the window: allowed again.
	mr.FastForward(21 * time.Second)
	allowed, _, err = l.TryAcquire(ctx, "+15550001111")
	if err != nil {
		t.Fatalf("TryAcquire: %v", err)
	}
	if !allowed {
		t.Fatalf("expected acquire allowed after window expiry")
	}
}

func TestRedisLimiter_PerRecipientKeys(t *testing.T) {
	t.Parallel()

	l, _ := newRedisLimiter(t, 60*time.Second)
	ctx := context.Background()

	if allowed, _, _ := l.TryAcquire(ctx, "A"); !allowed {
		t.Fatalf("expected A allowed")
	}
	if allowed, _, _ := l.TryAcquire(ctx, "B"); !allowed {
		t.Fatalf("expected B allowed")
	}
	if allowed, _, _ := l.TryAcquire(ctx, "A"); allowed {
		t.Fatalf("expected A deferred")
	}
}

func TestNewRedisLimiter_WindowBounds(t *testing.T) {
	t.Parallel()

	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	if _, err := NewRedisLimiter(rdb, time.Second); err == nil {
		t.Fatalf("expected error for window below 10s")
	}
	if _, err := NewRedisLimiter(rdb, 10*time.Minute); err == nil {
		t.Fatalf("expected error for window above 300s")
	}
}
