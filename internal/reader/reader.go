// Package reader is the query surface of the archive: it routes a
// requested resolution to its persisted base, aggregates derived
// resolutions on the fly, applies price adjustment on read, and caches
// repeated raw queries.
package reader

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"kline-archive/internal/adjust"
	"kline-archive/internal/aggregate"
	"kline-archive/internal/calendar"
	"kline-archive/internal/domain"
	"kline-archive/internal/observability"
	"kline-archive/internal/store"
)

// DefaultCacheSize bounds the read cache when Options leaves it zero.
const DefaultCacheSize = 128

// Options configures a Reader.
type Options struct {
	// CacheSize bounds the raw read cache; 0 means DefaultCacheSize.
	CacheSize int

	// DefaultDays is the trading-day window returned for sub-day reads
	// that pass n == 0. 0 disables the default window (n == 0 reads all).
	DefaultDays int

	// Now overrides the clock for default-window computation in tests.
	Now func() time.Time

	Logger *log.Logger
}

// Reader serves adjusted and raw bar series from a backend.
type Reader struct {
	bars    store.BarStore
	actions store.ActionStore
	cal     calendar.Calendar
	cache   *readCache
	log     *log.Logger

	defaultDays int
	now         func() time.Time
}

// New creates a Reader over the given backend. actions may be nil when no
// corporate-action source is wired, in which case adjusted reads equal raw
// reads. cal may be nil for a weekday default.
func New(bars store.BarStore, actions store.ActionStore, cal calendar.Calendar, opts Options) *Reader {
	if cal == nil {
		cal = calendar.Weekdays{}
	}
	size := opts.CacheSize
	if size <= 0 {
		size = DefaultCacheSize
	}
	logger := opts.Logger
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}
	return &Reader{
		bars:        bars,
		actions:     actions,
		cal:         cal,
		cache:       newReadCache(size),
		log:         logger,
		defaultDays: opts.DefaultDays,
		now:         now,
	}
}

// Read returns the most recent n bars at the requested resolution,
// oldest-first, adjusted per mode. n < 0 reads the whole series; n == 0
// reads the configured default trading-day window for sub-day resolutions
// (the whole series otherwise). Derived resolutions are aggregated from
// their native base per the base-selection policy.
//
// Raw native reads go through the bounded cache; the cache is not
// invalidated on write, so use ReadRaw or Flush when freshness after an
// append matters.
func (r *Reader) Read(ctx context.Context, instrument string, res domain.Resolution, n int, mode adjust.Mode) ([]domain.Bar, error) {
	if !res.IsValid() {
		return nil, fmt.Errorf("%w: %d", store.ErrUnsupportedResolution, int(res))
	}

	bars, err := r.readRawRouted(ctx, instrument, res, n)
	if err != nil {
		return nil, err
	}
	if mode == adjust.None || len(bars) == 0 {
		return bars, nil
	}

	actions, err := r.instrumentActions(ctx, instrument)
	if err != nil {
		return nil, err
	}
	return adjust.Apply(bars, actions, mode)
}

// ReadRaw returns unadjusted bars, bypassing the cache entirely.
func (r *Reader) ReadRaw(ctx context.Context, instrument string, res domain.Resolution, n int) ([]domain.Bar, error) {
	if !res.IsValid() {
		return nil, fmt.Errorf("%w: %d", store.ErrUnsupportedResolution, int(res))
	}
	return r.routed(ctx, instrument, res, n, false)
}

// Flush empties the read cache. Callers that appended bars and need the
// new tail through Read must flush first.
func (r *Reader) Flush() {
	r.cache.flush()
}

// CacheLen reports the number of cached entries.
func (r *Reader) CacheLen() int { return r.cache.len() }

func (r *Reader) readRawRouted(ctx context.Context, instrument string, res domain.Resolution, n int) ([]domain.Bar, error) {
	return r.routed(ctx, instrument, res, n, true)
}

func (r *Reader) routed(ctx context.Context, instrument string, res domain.Resolution, n int, cached bool) ([]domain.Bar, error) {
	if res.IsNative() {
		return r.readNative(ctx, instrument, res, n, cached)
	}

	// Derived sub-day resolution: read the native base and aggregate.
	base := domain.Base(res)
	window := int(res / base)
	baseN := n
	if n > 0 {
		baseN = n * window
	}
	bars, err := r.readNative(ctx, instrument, base, baseN, cached)
	if err != nil {
		return nil, err
	}
	return aggregate.Resolve(bars, base, res)
}

func (r *Reader) readNative(ctx context.Context, instrument string, res domain.Resolution, n int, cached bool) ([]domain.Bar, error) {
	if n == 0 && r.defaultDays > 0 && res.IsIntraday() {
		// Default window: bars for the last defaultDays trading days.
		cutoff := r.cal.Shift(r.now(), -r.defaultDays)
		return r.bars.ReadAfter(ctx, instrument, res, cutoff, 0)
	}

	if !cached || n <= 0 {
		return r.bars.Read(ctx, instrument, res, n)
	}

	key := cacheKey(instrument, res, n)
	if bars, ok := r.cache.get(key); ok {
		observability.RecordCacheHit()
		return bars, nil
	}
	observability.RecordCacheMiss()
	bars, err := r.bars.Read(ctx, instrument, res, n)
	if err != nil {
		return nil, err
	}
	r.cache.put(key, bars)
	return bars, nil
}

func (r *Reader) instrumentActions(ctx context.Context, instrument string) ([]domain.CorporateAction, error) {
	if r.actions == nil {
		return nil, nil
	}
	actions, err := r.actions.GetByInstrument(ctx, instrument)
	if err != nil {
		return nil, fmt.Errorf("load corporate actions: %w", err)
	}
	return actions, nil
}
