package memory

import (
	"context"
	"sync"

	"kline-archive/internal/domain"
	"kline-archive/internal/store"
)

// ActionStore is an in-memory implementation of store.ActionStore.
type ActionStore struct {
	mu   sync.RWMutex
	data map[string][]domain.CorporateAction // keyed by instrument
}

// NewActionStore creates a new in-memory corporate-action store.
func NewActionStore() *ActionStore {
	return &ActionStore{data: make(map[string][]domain.CorporateAction)}
}

// Compile-time interface check.
var _ store.ActionStore = (*ActionStore)(nil)

// Insert adds actions, skipping (instrument, ex_date) pairs already present.
func (s *ActionStore) Insert(_ context.Context, actions []domain.CorporateAction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, a := range actions {
		existing := s.data[a.Instrument]
		dup := false
		for _, e := range existing {
			if e.ExDate.Equal(a.ExDate) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		s.data[a.Instrument] = append(existing, a)
	}
	for id := range s.data {
		domain.SortActions(s.data[id])
	}
	return nil
}

// GetByInstrument retrieves all actions for an instrument ordered by
// ex-dividend date ascending.
func (s *ActionStore) GetByInstrument(_ context.Context, instrument string) ([]domain.CorporateAction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	actions := s.data[instrument]
	out := make([]domain.CorporateAction, len(actions))
	copy(out, actions)
	return out, nil
}
