package model

import "time"

const (
	MinRateLimitSeconds = 10
	MaxRateLimitSeconds = 300

	DefaultRateLimitSeconds = 60
)

// ChannelSettings is the single administrative record controlling the
// outbound channel.
type ChannelSettings struct {
	Enabled          bool      `json:"enabled"`
	RateLimitSeconds int       `json:"rateLimitSeconds"`
	ChannelStatus    string    `json:"channelStatus"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// DefaultChannelSettings is what a fresh deployment runs with before an
// operator touches the settings record.
func DefaultChannelSettings() ChannelSettings {
	return ChannelSettings{
		Enabled:          true,
		RateLimitSeconds: DefaultRateLimitSeconds,
		ChannelStatus:    "unauthenticated",
	}
}

// Validate checks operator-supplied settings bounds.
func (s ChannelSettings) Validate() error {
	if s.RateLimitSeconds < MinRateLimitSeconds || s.RateLimitSeconds > MaxRateLimitSeconds {
		return &ValidationError{Field: "rateLimitSeconds", Reason: "must be between 10 and 300"}
	}
	return nil
}
