package repo

import (
	"context"
	"sync"

	"github.com/studiobell/dispatch/internal/model"
)

// SettingsRepository stores the single channel settings record.
type SettingsRepository interface {
	Get(ctx context.Context) (model.ChannelSettings, error)
	Update(ctx context.Context, s model.ChannelSettings) error
}

// MemorySettings holds settings in process, for tests and redis-less runs.
type MemorySettings struct {
	mu sync.RWMutex
	s  model.ChannelSettings
}

func NewMemorySettings() *MemorySettings {
	return &MemorySettings{s: model.DefaultChannelSettings()}
}

func (m *MemorySettings) Get(ctx context.Context) (model.ChannelSettings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.s, nil
}

func (m *MemorySettings) Update(ctx context.Context, s model.ChannelSettings) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s = s
	return nil
}
