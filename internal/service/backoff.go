package service

import "time"

const (
	retryStep     = 30 * time.Second
	maxRetryDelay = 15 * time.Minute
)

// RetryDelay is the fixed-linear retry policy: the nth failed attempt
// schedules the next one n*30s out, capped at 15 minutes. Pure function of
// the attempt count so workers need no shared retry state.
func RetryDelay(attempts int) time.Duration {
	if attempts < 1 {
		attempts = 1
	}
	d := time.Duration(attempts) * retryStep
	if d > maxRetryDelay {
		return maxRetryDelay
	}
	return d
}
