package audit

import (
	"context"
	"log/slog"
)

const (
	ActionEnqueued       = "enqueued"
	ActionSent           = "sent"
	ActionFailed         = "failed"
	ActionRetryScheduled = "retry_scheduled"
	ActionDeferred       = "deferred"
	ActionCancelled      = "cancelled"
	ActionReclaimed      = "reclaimed"
)

// Event is one structured audit record: an enqueue, a terminal outcome, or
// a rate-limit defer.
type Event struct {
	Action      string
	EntryID     string
	Recipient   string
	MessageType string
	Detail      string
}

// Sink receives audit events.
type Sink interface {
	Record(ctx context.Context, ev Event)
}

// SlogSink writes audit events as structured log records.
type SlogSink struct {
	log *slog.Logger
}

var _ Sink = (*SlogSink)(nil)

func NewSlogSink(log *slog.Logger) *SlogSink {
	if log == nil {
		log = slog.Default()
	}
	return &SlogSink{log: log}
}

func (s *SlogSink) Record(ctx context.Context, ev Event) {
	s.log.InfoContext(ctx, "audit",
		"action", ev.Action,
		"entry_id", ev.EntryID,
		"recipient", ev.Recipient,
		"message_type", ev.MessageType,
		"detail", ev.Detail,
	)
}

// NopSink discards events; used in tests.
type NopSink struct{}

var _ Sink = (*NopSink)(nil)

func (NopSink) Record(context.Context, Event) {}
