// Package memory provides in-memory store implementations used by unit
// tests of the sync manager and reader.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"kline-archive/internal/codec"
	"kline-archive/internal/domain"
	"kline-archive/internal/store"
)

// BarStore is an in-memory implementation of store.BarStore. Datasets hold
// encoded records so fixed-point round-trips match the persistent backends.
type BarStore struct {
	mu   sync.RWMutex
	data map[string][]codec.EncodedBar // keyed by (instrument, resolution)
}

// NewBarStore creates a new in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{data: make(map[string][]codec.EncodedBar)}
}

// Compile-time interface check.
var _ store.BarStore = (*BarStore)(nil)

func barKey(instrument string, res domain.Resolution) string {
	return fmt.Sprintf("%s|%d", instrument, int(res))
}

func (s *BarStore) validate(instrument string, res domain.Resolution) error {
	if err := domain.ValidateInstrument(instrument); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInstrument, err)
	}
	if !res.IsNative() {
		return fmt.Errorf("%w: %d", store.ErrUnsupportedResolution, int(res))
	}
	return nil
}

// Append merges ascending bars into the dataset per the tail-replace rule.
func (s *BarStore) Append(_ context.Context, instrument string, res domain.Resolution, bars []domain.Bar) (int, error) {
	if err := s.validate(instrument, res); err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := barKey(instrument, res)
	existing := s.data[key]

	var lastTime int64
	tailRun := 0
	if n := len(existing); n > 0 {
		lastTime = existing[n-1].Time
		for i := n - 1; i >= 0 && existing[i].Time == lastTime && tailRun <= store.MaxTailRun; i-- {
			tailRun++
		}
	}

	plan, err := store.PlanAppend(lastTime, tailRun, codec.EncodeAll(bars))
	if err != nil {
		return 0, err
	}
	if len(plan.Bars) == 0 {
		return 0, nil
	}

	kept := existing[:len(existing)-plan.Replace]
	merged := make([]codec.EncodedBar, 0, len(kept)+len(plan.Bars))
	merged = append(merged, kept...)
	merged = append(merged, plan.Bars...)
	s.data[key] = merged
	return len(plan.Bars), nil
}

// Read returns the most recent n bars oldest-first, or all when n <= 0.
func (s *BarStore) Read(_ context.Context, instrument string, res domain.Resolution, n int) ([]domain.Bar, error) {
	if err := s.validate(instrument, res); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	encs := s.data[barKey(instrument, res)]
	if n > 0 && len(encs) > n {
		encs = encs[len(encs)-n:]
	}
	return codec.DecodeAll(encs, res), nil
}

// ReadAfter returns bars strictly newer than after, keeping the most recent
// limit bars when limit > 0.
func (s *BarStore) ReadAfter(_ context.Context, instrument string, res domain.Resolution, after time.Time, limit int) ([]domain.Bar, error) {
	if err := s.validate(instrument, res); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	encs := s.data[barKey(instrument, res)]
	cut := codec.EncodeTime(after)
	i := sort.Search(len(encs), func(i int) bool { return encs[i].Time > cut })
	encs = encs[i:]
	if limit > 0 && len(encs) > limit {
		encs = encs[len(encs)-limit:]
	}
	return codec.DecodeAll(encs, res), nil
}

// MinTime returns the oldest bar time; ok is false for an empty dataset.
func (s *BarStore) MinTime(_ context.Context, instrument string, res domain.Resolution) (time.Time, bool, error) {
	return s.edgeTime(instrument, res, false)
}

// MaxTime returns the newest bar time.
func (s *BarStore) MaxTime(_ context.Context, instrument string, res domain.Resolution) (time.Time, bool, error) {
	return s.edgeTime(instrument, res, true)
}

func (s *BarStore) edgeTime(instrument string, res domain.Resolution, last bool) (time.Time, bool, error) {
	if err := s.validate(instrument, res); err != nil {
		return time.Time{}, false, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	encs := s.data[barKey(instrument, res)]
	if len(encs) == 0 {
		return time.Time{}, false, nil
	}
	e := encs[0]
	if last {
		e = encs[len(encs)-1]
	}
	return codec.DecodeTime(e.Time, res.DateOnly()), true, nil
}

// TrimBefore removes bars strictly older than cutoff.
func (s *BarStore) TrimBefore(_ context.Context, instrument string, res domain.Resolution, cutoff time.Time) (int64, error) {
	if err := s.validate(instrument, res); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := barKey(instrument, res)
	encs := s.data[key]
	cut := codec.EncodeTime(cutoff)
	i := sort.Search(len(encs), func(i int) bool { return encs[i].Time >= cut })
	if i == 0 {
		return 0, nil
	}
	s.data[key] = append([]codec.EncodedBar(nil), encs[i:]...)
	return int64(i), nil
}

// Delete removes the whole dataset.
func (s *BarStore) Delete(_ context.Context, instrument string, res domain.Resolution) error {
	if err := s.validate(instrument, res); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.data, barKey(instrument, res))
	return nil
}
