package model

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound signals an operation referenced an unknown queue entry id.
	ErrNotFound = errors.New("queue entry not found")
	// ErrDuplicateID signals an enqueue with an id that already exists.
	ErrDuplicateID = errors.New("queue entry id already exists")
	// ErrAlreadyResolved signals an outcome write raced with a cancel or a
	// stale-claim reclaim; the entry is no longer in processing state.
	ErrAlreadyResolved = errors.New("queue entry already resolved")
	// ErrChannelDisabled signals the delivery channel is administratively off.
	ErrChannelDisabled = errors.New("delivery channel is disabled")
)

// ValidationError rejects malformed input before any state mutation.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// DeliveryError wraps an adapter failure with its retry classification.
// Transient errors are retried up to MaxAttempts; permanent ones may be
// short-circuited straight to failed.
type DeliveryError struct {
	Permanent bool
	Err       error
}

func (e *DeliveryError) Error() string {
	kind := "transient"
	if e.Permanent {
		kind = "permanent"
	}
	return fmt.Sprintf("%s delivery error: %v", kind, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

// IsPermanentDelivery reports whether err is a non-retriable delivery error.
func IsPermanentDelivery(err error) bool {
	var de *DeliveryError
	return errors.As(err, &de) && de.Permanent
}
