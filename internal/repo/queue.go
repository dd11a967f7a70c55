package repo

import (
	"context"
	"time"

	"github.com/studiobell/dispatch/internal/model"
)

// Filter narrows List results. Zero values mean "no constraint".
type Filter struct {
	Status      model.Status
	MessageType string
	Since       time.Time
	Limit       int
	Offset      int
}

// Stats aggregates queue entry counts for the observability surface.
type Stats struct {
	Total    int                  `json:"total"`
	ByStatus map[model.Status]int `json:"byStatus"`
	ByType   map[string]int       `json:"byType"`
}

// QueueRepository is the durable store of queue entries. ClaimNext is the
// single point of mutual exclusion between workers: every outcome write is
// conditional on the entry still being in processing state, so a cancel
// recorded mid-flight wins over a late success or failure.
type QueueRepository interface {
	// Enqueue inserts a pending entry. ErrDuplicateID on id collision.
	Enqueue(ctx context.Context, e *model.QueueEntry) error

	// ClaimNext atomically takes the next eligible pending entry
	// (scheduledFor <= now, ordered by priority, scheduledFor, createdAt),
	// flips it to processing and stamps lastAttemptAt. Returns (nil, nil)
	// when nothing is eligible.
	ClaimNext(ctx context.Context) (*model.QueueEntry, error)

	// RecordSuccess resolves a processing entry to sent.
	// ErrAlreadyResolved if the entry left processing state meanwhile.
	RecordSuccess(ctx context.Context, id string) error

	// RecordFailure increments attempts and either fails the entry
	// (attempts reached maxAttempts) or reverts it to pending scheduled at
	// retryAt. The error message is stored either way.
	RecordFailure(ctx context.Context, id string, errMsg string, retryAt time.Time) error

	// RecordPermanentFailure fails a processing entry immediately,
	// regardless of remaining attempts.
	RecordPermanentFailure(ctx context.Context, id string, errMsg string) error

	// Defer reverts a processing entry to pending with scheduledFor pushed
	// to until, without counting an attempt. Used for rate-limit deferral.
	Defer(ctx context.Context, id string, until time.Time) error

	// Cancel moves a pending or processing entry to cancelled. Returns
	// false when the entry is already terminal, ErrNotFound when unknown.
	Cancel(ctx context.Context, id string) (bool, error)

	// Stats returns counts by status and by message type.
	Stats(ctx context.Context) (Stats, error)

	// List returns entries matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*model.QueueEntry, error)

	// ReclaimStale reverts processing entries whose last attempt is older
	// than the threshold back to pending, and reports how many.
	ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error)

	// HasActiveReminder reports whether any non-cancelled entry carries the
	// given dedup key in its metadata.
	HasActiveReminder(ctx context.Context, dedupKey string) (bool, error)
}
