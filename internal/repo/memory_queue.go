package repo

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/studiobell/dispatch/internal/model"
)

// MemoryQueue is an in-process QueueRepository used by tests and by
// deployments that run without postgres. Claim exclusivity is provided by
// the mutex; the ordering and conditional-update semantics are identical to
// the postgres implementation.
type MemoryQueue struct {
	mu      sync.Mutex
	entries map[string]*model.QueueEntry
	now     func() time.Time
}

var _ QueueRepository = (*MemoryQueue)(nil)

func NewMemoryQueue() *MemoryQueue {
	return NewMemoryQueueWithClock(func() time.Time { return time.Now().UTC() })
}

// NewMemoryQueueWithClock injects a clock for deterministic tests.
func NewMemoryQueueWithClock(now func() time.Time) *MemoryQueue {
	return &MemoryQueue{
		entries: make(map[string]*model.QueueEntry),
		now:     now,
	}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, e *model.QueueEntry) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.entries[e.ID]; ok {
		return model.ErrDuplicateID
	}
	cp := cloneEntry(e)
	q.entries[e.ID] = cp
	return nil
}

func (q *MemoryQueue) ClaimNext(ctx context.Context) (*model.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	now := q.now()
	var best *model.QueueEntry
	for _, e := range q.entries {
		if e.Status != model.StatusPending || e.ScheduledFor.After(now) {
			continue
		}
		if best == nil || claimBefore(e, best) {
			best = e
		}
	}
	if best == nil {
		return nil, nil
	}

	best.Status = model.StatusProcessing
	t := now
	best.LastAttemptAt = &t
	return cloneEntry(best), nil
}

// claimBefore implements the (priority, scheduledFor, createdAt) claim order.
func claimBefore(a, b *model.QueueEntry) bool {
	if a.Priority != b.Priority {
		return a.Priority < b.Priority
	}
	if !a.ScheduledFor.Equal(b.ScheduledFor) {
		return a.ScheduledFor.Before(b.ScheduledFor)
	}
	return a.CreatedAt.Before(b.CreatedAt)
}

func (q *MemoryQueue) RecordSuccess(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.processingEntry(id)
	if err != nil {
		return err
	}
	e.Status = model.StatusSent
	t := q.now()
	e.SentAt = &t
	return nil
}

func (q *MemoryQueue) RecordFailure(ctx context.Context, id string, errMsg string, retryAt time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.processingEntry(id)
	if err != nil {
		return err
	}
	e.Attempts++
	e.ErrorMessage = &errMsg
	if e.Attempts >= e.MaxAttempts {
		e.Status = model.StatusFailed
	} else {
		e.Status = model.StatusPending
		e.ScheduledFor = retryAt.UTC()
	}
	return nil
}

func (q *MemoryQueue) RecordPermanentFailure(ctx context.Context, id string, errMsg string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.processingEntry(id)
	if err != nil {
		return err
	}
	e.Attempts++
	e.ErrorMessage = &errMsg
	e.Status = model.StatusFailed
	return nil
}

func (q *MemoryQueue) Defer(ctx context.Context, id string, until time.Time) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, err := q.processingEntry(id)
	if err != nil {
		return err
	}
	e.Status = model.StatusPending
	e.ScheduledFor = until.UTC()
	return nil
}

func (q *MemoryQueue) Cancel(ctx context.Context, id string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	e, ok := q.entries[id]
	if !ok {
		return false, model.ErrNotFound
	}
	if !e.Status.CanCancel() {
		return false, nil
	}
	e.Status = model.StatusCancelled
	return true, nil
}

func (q *MemoryQueue) Stats(ctx context.Context) (Stats, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	st := Stats{
		ByStatus: make(map[model.Status]int),
		ByType:   make(map[string]int),
	}
	for _, e := range q.entries {
		st.Total++
		st.ByStatus[e.Status]++
		st.ByType[e.MessageType]++
	}
	return st, nil
}

func (q *MemoryQueue) List(ctx context.Context, f Filter) ([]*model.QueueEntry, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	var out []*model.QueueEntry
	for _, e := range q.entries {
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		if f.MessageType != "" && e.MessageType != f.MessageType {
			continue
		}
		if !f.Since.IsZero() && e.CreatedAt.Before(f.Since) {
			continue
		}
		out = append(out, cloneEntry(e))
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})

	if f.Offset > 0 {
		if f.Offset >= len(out) {
			return nil, nil
		}
		out = out[f.Offset:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (q *MemoryQueue) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	cutoff := q.now().Add(-olderThan)
	n := 0
	for _, e := range q.entries {
		if e.Status != model.StatusProcessing {
			continue
		}
		if e.LastAttemptAt != nil && e.LastAttemptAt.Before(cutoff) {
			e.Status = model.StatusPending
			n++
		}
	}
	return n, nil
}

func (q *MemoryQueue) HasActiveReminder(ctx context.Context, dedupKey string) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	for _, e := range q.entries {
		if e.Status == model.StatusCancelled {
			continue
		}
		if e.Metadata[model.MetaDedupKey] == dedupKey {
			return true, nil
		}
	}
	return false, nil
}

// processingEntry looks up an entry that must still be claimed.
func (q *MemoryQueue) processingEntry(id string) (*model.QueueEntry, error) {
	e, ok := q.entries[id]
	if !ok {
		return nil, model.ErrNotFound
	}
	if e.Status != model.StatusProcessing {
		return nil, model.ErrAlreadyResolved
	}
	return e, nil
}

func cloneEntry(e *model.QueueEntry) *model.QueueEntry {
	cp := *e
	if e.Metadata != nil {
		cp.Metadata = make(map[string]string, len(e.Metadata))
		for k, v := range e.Metadata {
			cp.Metadata[k] = v
		}
	}
	if e.SentAt != nil {
		t := *e.SentAt
		cp.SentAt = &t
	}
	if e.LastAttemptAt != nil {
		t := *e.LastAttemptAt
		cp.LastAttemptAt = &t
	}
	if e.ErrorMessage != nil {
		s := *e.ErrorMessage
		cp.ErrorMessage = &s
	}
	return &cp
}
