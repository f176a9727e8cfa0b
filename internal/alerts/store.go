// Package alerts holds the in-memory alert index and keeps it in step with
// durable storage. Every mutation is one critical section: the new record is
// persisted first and only then becomes visible to readers.
package alerts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"trading-alerts/internal/model"
)

// ErrSkip can be returned from a Mutate callback to abort without writing.
var ErrSkip = errors.New("alerts: mutation skipped")

// Persister is the durable side of the store.
type Persister interface {
	SaveAlert(ctx context.Context, a model.Alert) error
	DeleteAlert(ctx context.Context, id string) error
	LoadAlerts(ctx context.Context) ([]model.Alert, error)
}

// Store is the authoritative alert index shared by the scheduler and the
// control surface.
type Store struct {
	mu     sync.Mutex
	alerts map[string]model.Alert
	p      Persister
}

// New creates an empty store backed by p.
func New(p Persister) *Store {
	return &Store{
		alerts: make(map[string]model.Alert),
		p:      p,
	}
}

// Load replaces the in-memory index with the persisted records.
func (s *Store) Load(ctx context.Context) error {
	list, err := s.p.LoadAlerts(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = make(map[string]model.Alert, len(list))
	for _, a := range list {
		s.alerts[a.ID] = a
	}
	return nil
}

// Create adds a new alert. The id must not exist yet.
func (s *Store) Create(ctx context.Context, a model.Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.alerts[a.ID]; exists {
		return fmt.Errorf("alert %s: %w", a.ID, model.ErrAlreadyExists)
	}
	if err := s.p.SaveAlert(ctx, a); err != nil {
		return err
	}
	s.alerts[a.ID] = a.Clone()
	return nil
}

// Get returns a copy of the alert.
func (s *Store) Get(id string) (model.Alert, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.alerts[id]
	if !ok {
		return model.Alert{}, false
	}
	return a.Clone(), true
}

// List returns copies of every alert ordered by creation time.
func (s *Store) List() []model.Alert {
	return s.filter(func(model.Alert) bool { return true })
}

// Active returns copies of the active alerts ordered by creation time.
func (s *Store) Active() []model.Alert {
	return s.filter(func(a model.Alert) bool { return a.Active })
}

// Len returns the number of alerts.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.alerts)
}

func (s *Store) filter(keep func(model.Alert) bool) []model.Alert {
	s.mu.Lock()
	out := make([]model.Alert, 0, len(s.alerts))
	for _, a := range s.alerts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

// Mutate applies fn to a copy of the alert, persists the result and commits
// it. If fn returns an error nothing is written; ErrSkip is returned as is
// together with the unchanged alert.
func (s *Store) Mutate(ctx context.Context, id string, fn func(a *model.Alert) error) (model.Alert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cur, ok := s.alerts[id]
	if !ok {
		return model.Alert{}, fmt.Errorf("alert %s: %w", id, model.ErrNotFound)
	}

	next := cur.Clone()
	if err := fn(&next); err != nil {
		return cur.Clone(), err
	}
	next.ID = cur.ID // immutable

	if err := s.p.SaveAlert(ctx, next); err != nil {
		return cur.Clone(), err
	}
	s.alerts[id] = next
	return next.Clone(), nil
}

// Delete removes the alert. It reports false when the id does not exist.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.alerts[id]; !ok {
		return false, nil
	}
	if err := s.p.DeleteAlert(ctx, id); err != nil {
		return false, err
	}
	delete(s.alerts, id)
	return true, nil
}
