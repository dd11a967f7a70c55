package model

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusSent       Status = "sent"
	StatusFailed     Status = "failed"
	StatusCancelled  Status = "cancelled"
)

// IsTerminal reports whether the status permits no further transitions.
func (s Status) IsTerminal() bool {
	return s == StatusSent || s == StatusFailed || s == StatusCancelled
}

// CanCancel reports whether an entry in this status may still be cancelled.
func (s Status) CanCancel() bool {
	return s == StatusPending || s == StatusProcessing
}

func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusProcessing, StatusSent, StatusFailed, StatusCancelled:
		return true
	}
	return false
}

const (
	MessageTypeGeneric        = "generic"
	MessageTypeLessonReminder = "lesson-reminder"
	MessageTypeMakeupReminder = "makeup-reminder"
	MessageTypeAuthLink       = "auth-link"
)

const (
	MetaLessonID  = "lesson_id"
	MetaStudentID = "student_id"
	MetaDedupKey  = "dedup_key"
)

const (
	MinPriority = 1
	MaxPriority = 5

	DefaultPriority    = 3
	DefaultMaxAttempts = 3
)

// QueueEntry is one unit of outbound message work.
type QueueEntry struct {
	ID            string            `json:"id"`
	Recipient     string            `json:"recipient"`
	Text          string            `json:"text"`
	MessageType   string            `json:"messageType"`
	Priority      int               `json:"priority"`
	ScheduledFor  time.Time         `json:"scheduledFor"`
	Attempts      int               `json:"attempts"`
	MaxAttempts   int               `json:"maxAttempts"`
	Status        Status            `json:"status"`
	SentAt        *time.Time        `json:"sentAt,omitempty"`
	LastAttemptAt *time.Time        `json:"lastAttemptAt,omitempty"`
	ErrorMessage  *string           `json:"errorMessage,omitempty"`
	Metadata      map[string]string `json:"metadata,omitempty"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// NewEntryParams carries caller-supplied fields for NewQueueEntry.
// Zero values fall back to defaults where a default exists.
type NewEntryParams struct {
	Recipient    string
	Text         string
	MessageType  string
	Priority     int
	ScheduledFor time.Time
	MaxAttempts  int
	Metadata     map[string]string
}

// NewQueueEntry validates params and builds a pending entry.
func NewQueueEntry(p NewEntryParams, now time.Time) (*QueueEntry, error) {
	if strings.TrimSpace(p.Recipient) == "" {
		return nil, &ValidationError{Field: "recipient", Reason: "must not be empty"}
	}
	if strings.TrimSpace(p.Text) == "" {
		return nil, &ValidationError{Field: "text", Reason: "must not be empty"}
	}

	priority := p.Priority
	if priority == 0 {
		priority = DefaultPriority
	}
	if priority < MinPriority || priority > MaxPriority {
		return nil, &ValidationError{Field: "priority", Reason: "must be between 1 and 5"}
	}

	maxAttempts := p.MaxAttempts
	if maxAttempts == 0 {
		maxAttempts = DefaultMaxAttempts
	}
	if maxAttempts < 1 {
		return nil, &ValidationError{Field: "maxAttempts", Reason: "must be at least 1"}
	}

	messageType := p.MessageType
	if messageType == "" {
		messageType = MessageTypeGeneric
	}

	now = now.UTC()
	scheduledFor := p.ScheduledFor.UTC()
	if p.ScheduledFor.IsZero() {
		scheduledFor = now
	}

	return &QueueEntry{
		ID:           uuid.NewString(),
		Recipient:    p.Recipient,
		Text:         p.Text,
		MessageType:  messageType,
		Priority:     priority,
		ScheduledFor: scheduledFor,
		MaxAttempts:  maxAttempts,
		Status:       StatusPending,
		Metadata:     p.Metadata,
		CreatedAt:    now,
	}, nil
}

// ReminderDedupKey derives the identifier that prevents duplicate reminders
// for the same lesson+student pair.
func ReminderDedupKey(lessonID, studentID string) string {
	return lessonID + ":" + studentID
}
