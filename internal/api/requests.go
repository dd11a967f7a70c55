package api

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/studiobell/dispatch/internal/model"
)

type enqueueRequest struct {
	Recipient    string            `json:"recipient" validate:"required,e164"`
	Text         string            `json:"text" validate:"required,max=1600"`
	MessageType  string            `json:"messageType" validate:"omitempty,max=64"`
	Priority     int               `json:"priority" validate:"omitempty,min=1,max=5"`
	ScheduledFor string            `json:"scheduledFor" validate:"omitempty"`
	MaxAttempts  int               `json:"maxAttempts" validate:"omitempty,min=1,max=10"`
	Metadata     map[string]string `json:"metadata" validate:"omitempty,max=16"`
}

type scheduleRequest struct {
	HoursBeforeClass int `json:"hoursBeforeClass" validate:"required,min=1,max=168"`
}

type settingsRequest struct {
	Enabled          bool   `json:"enabled"`
	RateLimitSeconds int    `json:"rateLimitSeconds" validate:"required,min=10,max=300"`
	ChannelStatus    string `json:"channelStatus" validate:"omitempty,max=64"`
}

// toParams converts a validated request into entry params.
// scheduledFor must be RFC3339 when present.
func (r enqueueRequest) toParams() (model.NewEntryParams, error) {
	p := model.NewEntryParams{
		Recipient:   r.Recipient,
		Text:        r.Text,
		MessageType: r.MessageType,
		Priority:    r.Priority,
		MaxAttempts: r.MaxAttempts,
		Metadata:    r.Metadata,
	}
	if r.ScheduledFor != "" {
		t, err := time.Parse(time.RFC3339, r.ScheduledFor)
		if err != nil {
			return p, &model.ValidationError{Field: "scheduledFor", Reason: "must be RFC3339"}
		}
		p.ScheduledFor = t
	}
	return p, nil
}

// validationMessage flattens validator output into a client-facing reason.
func validationMessage(err error) string {
	if errs, ok := err.(validator.ValidationErrors); ok && len(errs) > 0 {
		fe := errs[0]
		switch fe.Tag() {
		case "required":
			return fe.Field() + " is required"
		case "e164":
			return fe.Field() + " must be an E.164 phone number"
		case "min", "max":
			return fe.Field() + " is out of range"
		default:
			return fe.Field() + " is invalid"
		}
	}
	return err.Error()
}
