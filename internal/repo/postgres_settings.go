package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/studiobell/dispatch/internal/model"
)

// PostgresSettings stores the channel settings in a single-row table.
type PostgresSettings struct {
	db *sql.DB
}

var _ SettingsRepository = (*PostgresSettings)(nil)

func NewPostgresSettings(db *sql.DB) *PostgresSettings {
	return &PostgresSettings{db: db}
}

func (r *PostgresSettings) Get(ctx context.Context) (model.ChannelSettings, error) {
	var s model.ChannelSettings
	err := r.db.QueryRowContext(ctx, `
		SELECT enabled, rate_limit_seconds, channel_status, updated_at
		FROM channel_settings
		WHERE id = 1
	`).Scan(&s.Enabled, &s.RateLimitSeconds, &s.ChannelStatus, &s.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.DefaultChannelSettings(), nil
	}
	if err != nil {
		return model.ChannelSettings{}, err
	}
	return s, nil
}

func (r *PostgresSettings) Update(ctx context.Context, s model.ChannelSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO channel_settings (id, enabled, rate_limit_seconds, channel_status, updated_at)
		VALUES (1, $1, $2, $3, now())
		ON CONFLICT (id) DO UPDATE
		SET enabled = EXCLUDED.enabled,
		    rate_limit_seconds = EXCLUDED.rate_limit_seconds,
		    channel_status = EXCLUDED.channel_status,
		    updated_at = now()
	`, s.Enabled, s.RateLimitSeconds, s.ChannelStatus)
	return err
}
