package repo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/studiobell/dispatch/internal/model"
)

// PostgresQueue implements QueueRepository on a queue_entries table.
// The claim is a single conditional UPDATE over a SKIP LOCKED subquery, so
// two workers can never take the same row; all outcome writes are guarded
// by `status = 'processing'` which gives cancelled entries terminal
// precedence over late success/failure updates.
type PostgresQueue struct {
	db *sql.DB
}

var _ QueueRepository = (*PostgresQueue)(nil)

func NewPostgresQueue(db *sql.DB) *PostgresQueue {
	return &PostgresQueue{db: db}
}

const entryColumns = `
	id, recipient, text, message_type, priority, scheduled_for,
	attempts, max_attempts, status, sent_at, last_attempt_at,
	error_message, metadata, created_at`

func (r *PostgresQueue) Enqueue(ctx context.Context, e *model.QueueEntry) error {
	meta, err := json.Marshal(e.Metadata)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO queue_entries
			(id, recipient, text, message_type, priority, scheduled_for,
			 attempts, max_attempts, status, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, e.ID, e.Recipient, e.Text, e.MessageType, e.Priority, e.ScheduledFor,
		e.Attempts, e.MaxAttempts, string(e.Status), meta, e.CreatedAt)
	if err != nil && isUniqueViolation(err) {
		return model.ErrDuplicateID
	}
	return err
}

func (r *PostgresQueue) ClaimNext(ctx context.Context) (*model.QueueEntry, error) {
	now := time.Now().UTC()

	row := r.db.QueryRowContext(ctx, `
		UPDATE queue_entries
		SET status = 'processing', last_attempt_at = $1
		WHERE id = (
			SELECT id FROM queue_entries
			WHERE status = 'pending' AND scheduled_for <= $1
			ORDER BY priority ASC, scheduled_for ASC, created_at ASC
			FOR UPDATE SKIP LOCKED
			LIMIT 1
		)
		RETURNING `+entryColumns, now)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e, nil
}

func (r *PostgresQueue) RecordSuccess(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = 'sent', sent_at = now()
		WHERE id = $1 AND status = 'processing'
	`, id)
	if err != nil {
		return err
	}
	return r.checkResolved(ctx, res, id)
}

func (r *PostgresQueue) RecordFailure(ctx context.Context, id string, errMsg string, retryAt time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET attempts = attempts + 1,
		    error_message = $2,
		    status = CASE WHEN attempts + 1 >= max_attempts THEN 'failed' ELSE 'pending' END,
		    scheduled_for = CASE WHEN attempts + 1 >= max_attempts THEN scheduled_for ELSE $3 END
		WHERE id = $1 AND status = 'processing'
	`, id, errMsg, retryAt.UTC())
	if err != nil {
		return err
	}
	return r.checkResolved(ctx, res, id)
}

func (r *PostgresQueue) RecordPermanentFailure(ctx context.Context, id string, errMsg string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET attempts = attempts + 1, error_message = $2, status = 'failed'
		WHERE id = $1 AND status = 'processing'
	`, id, errMsg)
	if err != nil {
		return err
	}
	return r.checkResolved(ctx, res, id)
}

func (r *PostgresQueue) Defer(ctx context.Context, id string, until time.Time) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = 'pending', scheduled_for = $2
		WHERE id = $1 AND status = 'processing'
	`, id, until.UTC())
	if err != nil {
		return err
	}
	return r.checkResolved(ctx, res, id)
}

func (r *PostgresQueue) Cancel(ctx context.Context, id string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = 'cancelled'
		WHERE id = $1 AND status IN ('pending', 'processing')
	`, id)
	if err != nil {
		return false, err
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 1 {
		return true, nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM queue_entries WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return false, err
	}
	if !exists {
		return false, model.ErrNotFound
	}
	return false, nil
}

func (r *PostgresQueue) Stats(ctx context.Context) (Stats, error) {
	st := Stats{
		ByStatus: make(map[model.Status]int),
		ByType:   make(map[string]int),
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT status, COUNT(*) FROM queue_entries GROUP BY status
	`)
	if err != nil {
		return st, err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return st, err
		}
		st.ByStatus[model.Status(status)] = n
		st.Total += n
	}
	if err := rows.Err(); err != nil {
		return st, err
	}

	typeRows, err := r.db.QueryContext(ctx, `
		SELECT message_type, COUNT(*) FROM queue_entries GROUP BY message_type
	`)
	if err != nil {
		return st, err
	}
	defer typeRows.Close()
	for typeRows.Next() {
		var mt string
		var n int
		if err := typeRows.Scan(&mt, &n); err != nil {
			return st, err
		}
		st.ByType[mt] = n
	}
	return st, typeRows.Err()
}

func (r *PostgresQueue) List(ctx context.Context, f Filter) ([]*model.QueueEntry, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	offset := f.Offset
	if offset < 0 {
		offset = 0
	}

	since := f.Since
	if since.IsZero() {
		since = time.Unix(0, 0).UTC()
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM queue_entries
		WHERE ($1 = '' OR status = $1)
		  AND ($2 = '' OR message_type = $2)
		  AND created_at >= $3
		ORDER BY created_at DESC
		LIMIT $4 OFFSET $5
	`, string(f.Status), f.MessageType, since, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*model.QueueEntry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (r *PostgresQueue) ReclaimStale(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan)

	res, err := r.db.ExecContext(ctx, `
		UPDATE queue_entries
		SET status = 'pending'
		WHERE status = 'processing' AND last_attempt_at < $1
	`, cutoff)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (r *PostgresQueue) HasActiveReminder(ctx context.Context, dedupKey string) (bool, error) {
	var exists bool
	err := r.db.QueryRowContext(ctx, `
		SELECT EXISTS(
			SELECT 1 FROM queue_entries
			WHERE metadata->>'dedup_key' = $1 AND status <> 'cancelled'
		)
	`, dedupKey).Scan(&exists)
	return exists, err
}

// checkResolved maps a zero-row conditional update to the right error.
func (r *PostgresQueue) checkResolved(ctx context.Context, res sql.Result, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}

	var exists bool
	if err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM queue_entries WHERE id = $1)`, id,
	).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return model.ErrNotFound
	}
	return model.ErrAlreadyResolved
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntry(row rowScanner) (*model.QueueEntry, error) {
	var e model.QueueEntry
	var status string
	var sentAt, lastAttemptAt sql.NullTime
	var errMsg sql.NullString
	var meta []byte

	if err := row.Scan(
		&e.ID,
		&e.Recipient,
		&e.Text,
		&e.MessageType,
		&e.Priority,
		&e.ScheduledFor,
		&e.Attempts,
		&e.MaxAttempts,
		&status,
		&sentAt,
		&lastAttemptAt,
		&errMsg,
		&meta,
		&e.CreatedAt,
	); err != nil {
		return nil, err
	}

	e.Status = model.Status(status)
	if sentAt.Valid {
		t := sentAt.Time
		e.SentAt = &t
	}
	if lastAttemptAt.Valid {
		t := lastAttemptAt.Time
		e.LastAttemptAt = &t
	}
	if errMsg.Valid {
		s := errMsg.String
		e.ErrorMessage = &s
	}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &e.Metadata); err != nil {
			return nil, err
		}
	}
	return &e, nil
}

func isUniqueViolation(err error) bool {
	// pgx wraps server errors; 23505 is unique_violation.
	type sqlState interface{ SQLState() string }
	var st sqlState
	return errors.As(err, &st) && st.SQLState() == "23505"
}
