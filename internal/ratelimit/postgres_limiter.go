package ratelimit

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

// PostgresLimiter shares per-recipient send slots through the rate_limits
// table for deployments without redis. The acquire is a single conditional
// upsert so two workers cannot both take a recipient's slot.
type PostgresLimiter struct {
	db     *sql.DB
	window time.Duration
}

var _ Limiter = (*PostgresLimiter)(nil)

func NewPostgresLimiter(db *sql.DB, window time.Duration) (*PostgresLimiter, error) {
	if err := validWindow(window); err != nil {
		return nil, err
	}
	return &PostgresLimiter{db: db, window: window}, nil
}

func (l *PostgresLimiter) TryAcquire(ctx context.Context, recipient string) (bool, time.Duration, error) {
	var acquired time.Time
	err := l.db.QueryRowContext(ctx, `
		INSERT INTO rate_limits (recipient, last_sent_at)
		VALUES ($1, now())
		ON CONFLICT (recipient) DO UPDATE
		SET last_sent_at = now()
		WHERE rate_limits.last_sent_at <= now() - make_interval(secs => $2)
		RETURNING last_sent_at
	`, recipient, l.window.Seconds()).Scan(&acquired)
	if err == nil {
		return true, 0, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, 0, err
	}

	// Slot is taken; compute the remaining wait from the recorded send.
	var last time.Time
	err = l.db.QueryRowContext(ctx,
		`SELECT last_sent_at FROM rate_limits WHERE recipient = $1`, recipient,
	).Scan(&last)
	if errors.Is(err, sql.ErrNoRows) {
		// Record vanished between statements; next claim gets the slot.
		return false, 0, nil
	}
	if err != nil {
		return false, 0, err
	}

	retryAfter := l.window - time.Since(last)
	if retryAfter < 0 {
		retryAfter = 0
	}
	return false, retryAfter, nil
}
