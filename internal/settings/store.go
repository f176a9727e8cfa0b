// Package settings keeps the runtime-mutable engine settings.
package settings

import (
	"context"
	"sync"

	"trading-alerts/internal/model"
)

// Persister is the durable side of the store.
type Persister interface {
	LoadSettings(ctx context.Context) (model.Settings, bool, error)
	SaveSettings(ctx context.Context, s model.Settings) error
}

// Store holds the current settings.
type Store struct {
	mu       sync.RWMutex
	cur      model.Settings
	defaults model.Settings
	p        Persister
}

// New creates a store that starts from defaults until Load runs.
func New(p Persister, defaults model.Settings) *Store {
	return &Store{cur: defaults, defaults: defaults, p: p}
}

// Load reads the persisted settings. On first start the defaults are
// validated and written.
func (s *Store) Load(ctx context.Context) error {
	loaded, found, err := s.p.LoadSettings(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !found {
		if err := s.defaults.Validate(); err != nil {
			return err
		}
		if err := s.p.SaveSettings(ctx, s.defaults); err != nil {
			return err
		}
		s.cur = s.defaults
		return nil
	}
	if err := loaded.Validate(); err != nil {
		return err
	}
	s.cur = loaded
	return nil
}

// Get returns the current settings.
func (s *Store) Get() model.Settings {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.cur
}

// Notification returns the current transport configuration.
func (s *Store) Notification() model.NotificationSettings {
	return s.Get().NotificationSettings
}

// Update merges fields into the settings, validates and persists them.
// It returns the settings before and after the change.
func (s *Store) Update(ctx context.Context, fields map[string]any) (prev, next model.Settings, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev = s.cur
	next, err = model.ApplyPatch(prev, fields, model.PatchRules{})
	if err != nil {
		return prev, prev, err
	}
	if err := next.Validate(); err != nil {
		return prev, prev, err
	}
	if err := s.p.SaveSettings(ctx, next); err != nil {
		return prev, prev, err
	}
	s.cur = next
	return prev, next, nil
}
