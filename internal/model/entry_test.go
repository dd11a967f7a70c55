package model

import (
	"errors"
	"testing"
	"time"
)

func TestNewQueueEntry_Defaults(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	e, err := NewQueueEntry(NewEntryParams{
		Recipient: "+15550001111",
		Text:      "hello",
	}, now)
	if err != nil {
		t.Fatalf("NewQueueEntry returned error: %v", err)
	}

	if e.ID == "" {
		t.Fatalf("expected generated id")
	}
	if e.Priority != DefaultPriority {
		t.Fatalf("expected default priority %d, got %d", DefaultPriority, e.Priority)
	}
	if e.MaxAttempts != DefaultMaxAttempts {
		t.Fatalf("expected default maxAttempts %d, got %d", DefaultMaxAttempts, e.MaxAttempts)
	}
	if e.MessageType != MessageTypeGeneric {
		t.Fatalf("expected default messageType %q, got %q", MessageTypeGeneric, e.MessageType)
	}
	if !e.ScheduledFor.Equal(now) {
		t.Fatalf("expected scheduledFor=now, got %v", e.ScheduledFor)
	}
	if e.Status != StatusPending {
		t.Fatalf("expected pending status, got %q", e.Status)
	}
	if e.Attempts != 0 {
		t.Fatalf("expected 0 attempts, got %d", e.Attempts)
	}
}

func TestNewQueueEntry_Validation(t *testing.T) {
	t.Parallel()

	now := time.Now().UTC()

	cases := []struct {
		name   string
		params NewEntryParams
		field  string
	}{
		{"empty recipient", NewEntryParams{Text: "hi"}, "recipient"},
		{"blank recipient", NewEntryParams{Recipient: "   ", Text: "hi"}, "recipient"},
		{"empty text", NewEntryParams{Recipient: "+15550001111"}, "text"},
		{"priority too low", NewEntryParams{Recipient: "+15550001111", Text: "hi", Priority: -1}, "priority"},
		{"priority too high", NewEntryParams{Recipient: "+15550001111", Text: "hi", Priority: 6}, "priority"},
		{"negative maxAttempts", NewEntryParams{Recipient: "+15550001111", Text: "hi", MaxAttempts: -2}, "maxAttempts"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewQueueEntry(tc.params, now)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Field != tc.field {
				t.Fatalf("expected field %q, got %q", tc.field, ve.Field)
			}
		})
	}
}

func TestStatus_Transitions(t *testing.T) {
	t.Parallel()

	terminal := []Status{StatusSent, StatusFailed, StatusCancelled}
	for _, s := range terminal {
		if !s.IsTerminal() {
			t.Fatalf("expected %q to be terminal", s)
		}
		if s.CanCancel() {
			t.Fatalf("expected %q to not be cancellable", s)
		}
	}

	for _, s := range []Status{StatusPending, StatusProcessing} {
		if s.IsTerminal() {
			t.Fatalf("expected %q to not be terminal", s)
		}
		if !s.CanCancel() {
			t.Fatalf("expected %q to be cancellable", s)
		}
	}

	if Status("bogus").Valid() {
		t.Fatalf("expected bogus status to be invalid")
	}
}

func TestIsPermanentDelivery(t *testing.T) {
	t.Parallel()

	permanent := &DeliveryError{Permanent: true, Err: errors.New("rejected")}
	transient := &DeliveryError{Permanent: false, Err: errors.New("timeout")}

	if !IsPermanentDelivery(permanent) {
		t.Fatalf("expected permanent classification")
	}
	if IsPermanentDelivery(transient) {
		t.Fatalf("expected transient classification")
	}
	if IsPermanentDelivery(errors.New("plain")) {
		t.Fatalf("plain errors are not permanent delivery errors")
	}
}

func TestReminderDedupKey(t *testing.T) {
	t.Parallel()

	if got := ReminderDedupKey("lesson-1", "student-2"); got != "lesson-1:student-2" {
		t.Fatalf("unexpected dedup key %q", got)
	}
}
