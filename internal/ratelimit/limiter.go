package ratelimit

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/studiobell/dispatch/internal/model"
)

// Limiter throttles sends per recipient. TryAcquire answers "may I send to
// this recipient now?" and, when not, how long until the next slot opens.
// Acquiring must be atomic: two workers can never both take the same
// recipient's slot within one window.
type Limiter interface {
	TryAcquire(ctx context.Context, recipient string) (allowed bool, retryAfter time.Duration, err error)
}

func validWindow(window time.Duration) error {
	min := time.Duration(model.MinRateLimitSeconds) * time.Second
	max := time.Duration(model.MaxRateLimitSeconds) * time.Second
	if window < min || window > max {
		return errors.New("rate limit window must be between 10s and 300s")
	}
	return nil
}

// MemoryLimiter tracks last-send times in process. Suitable for a single
// worker process; multi-process deployments use the redis limiter.
type MemoryLimiter struct {
	window time.Duration
	now    func() time.Time

	mu       sync.Mutex
	lastSend map[string]time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

func NewMemoryLimiter(window time.Duration) (*MemoryLimiter, error) {
	return NewMemoryLimiterWithClock(window, func() time.Time { return time.Now().UTC() })
}

// NewMemoryLimiterWithClock injects a clock for deterministic tests.
func NewMemoryLimiterWithClock(window time.Duration, now func() time.Time) (*MemoryLimiter, error) {
	if err := validWindow(window); err != nil {
		return nil, err
	}
	if now == nil {
		return nil, errors.New("now must not be nil")
	}
	return &MemoryLimiter{
		window:   window,
		now:      now,
		lastSend: make(map[string]time.Time),
	}, nil
}

func (l *MemoryLimiter) TryAcquire(ctx context.Context, recipient string) (bool, time.Duration, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.lastSend[recipient]; ok {
		elapsed := now.Sub(last)
		if elapsed < l.window {
			return false, l.window - elapsed, nil
		}
	}

	l.lastSend[recipient] = now
	return true, 0, nil
}
