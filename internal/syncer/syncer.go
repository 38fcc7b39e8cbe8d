// Package syncer reconciles the bulk columnar backend with the
// transactional row backend, in both directions.
//
// bulk-to-row gives the row backend a warm recent window for session
// appends; row-to-bulk merges committed session rows into the archive and
// then trims the row backend to its retention window. Both directions are
// idempotent: a run that finds no new rows changes nothing, so a failed
// run is safely retried on the next schedule.
package syncer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/google/uuid"

	"kline-archive/internal/domain"
	"kline-archive/internal/observability"
	"kline-archive/internal/store"
)

// Direction selects which backend is the copy source.
type Direction int

const (
	BulkToRow Direction = iota
	RowToBulk
)

func (d Direction) String() string {
	if d == BulkToRow {
		return "bulk-to-row"
	}
	return "row-to-bulk"
}

// ParseDirection normalizes a direction flag value.
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "bulk-to-row":
		return BulkToRow, nil
	case "row-to-bulk":
		return RowToBulk, nil
	default:
		return 0, fmt.Errorf("unknown sync direction %q", s)
	}
}

// Limits bounds one resolution's sync volume.
type Limits struct {
	// SeedCount is the number of most recent rows copied when seeding an
	// empty row backend (bulk-to-row). <= 0 copies everything.
	SeedCount int

	// RetainDays is the calendar-day retention window the row backend is
	// trimmed to after a successful row-to-bulk merge. <= 0 disables
	// trimming.
	RetainDays int
}

// Manager moves committed bar data between the two backends.
type Manager struct {
	bulk store.BarStore
	row  store.BarStore
	log  *log.Logger
}

// New creates a sync manager. A nil logger discards output.
func New(bulk, row store.BarStore, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	return &Manager{bulk: bulk, row: row, log: logger}
}

// Sync runs one batch synchronization of an instrument for the given
// resolutions. Failures of individual datasets are logged and collected;
// the remaining datasets still run, and the joined error is returned for
// the scheduler to retry next run.
func (m *Manager) Sync(ctx context.Context, instrument string, dir Direction, kinds []domain.Resolution, limits map[domain.Resolution]Limits) error {
	runID := uuid.NewString()
	started := time.Now()

	var errs []error
	for _, res := range kinds {
		var err error
		switch dir {
		case BulkToRow:
			err = m.bulkToRow(ctx, runID, instrument, res, limits[res])
		case RowToBulk:
			err = m.rowToBulk(ctx, runID, instrument, res, limits[res])
		default:
			err = fmt.Errorf("unknown sync direction %d", int(dir))
		}
		if err != nil {
			m.log.Printf("run %s: sync %s %s/%s failed: %v", runID, dir, instrument, res, err)
			errs = append(errs, fmt.Errorf("%s %s/%s: %w", dir, instrument, res, err))
		}
	}

	outcome := "success"
	if len(errs) > 0 {
		outcome = "failure"
	}
	observability.RecordSyncRun(dir.String(), outcome, time.Since(started).Seconds())
	if len(errs) == 0 {
		observability.DefaultMetrics.LastSuccessfulSync.SetToCurrentTime()
	}
	return errors.Join(errs...)
}

// bulkToRow copies bulk rows newer than the row backend's watermark into
// the row backend, or seeds an empty row backend with the most recent
// SeedCount rows.
func (m *Manager) bulkToRow(ctx context.Context, runID, instrument string, res domain.Resolution, lim Limits) error {
	watermark, ok, err := m.row.MaxTime(ctx, instrument, res)
	if err != nil {
		return fmt.Errorf("row watermark: %w", err)
	}

	var bars []domain.Bar
	if ok {
		bars, err = m.bulk.ReadAfter(ctx, instrument, res, watermark, lim.SeedCount)
	} else {
		bars, err = m.bulk.Read(ctx, instrument, res, lim.SeedCount)
	}
	if err != nil {
		return fmt.Errorf("read bulk rows: %w", err)
	}
	if len(bars) == 0 {
		observability.RecordSyncSkipped()
		return nil
	}

	written, err := m.row.Append(ctx, instrument, res, bars)
	if err != nil {
		return fmt.Errorf("append to row backend: %w", err)
	}
	observability.RecordSyncCopied(BulkToRow.String(), written)
	m.log.Printf("run %s: copied %d rows %s/%s bulk->row", runID, written, instrument, res)
	return nil
}

// rowToBulk merges row-backend rows newer than the bulk watermark into the
// bulk backend, then trims the row backend to its retention window. The
// trim runs only after a successful merge and never removes rows newer
// than the post-merge bulk watermark.
func (m *Manager) rowToBulk(ctx context.Context, runID, instrument string, res domain.Resolution, lim Limits) error {
	watermark, ok, err := m.bulk.MaxTime(ctx, instrument, res)
	if err != nil {
		return fmt.Errorf("bulk watermark: %w", err)
	}

	var bars []domain.Bar
	if ok {
		bars, err = m.row.ReadAfter(ctx, instrument, res, watermark, 0)
	} else {
		bars, err = m.row.Read(ctx, instrument, res, 0)
	}
	if err != nil {
		return fmt.Errorf("read row rows: %w", err)
	}
	if len(bars) == 0 {
		observability.RecordSyncSkipped()
		return nil
	}

	written, err := m.bulk.Append(ctx, instrument, res, bars)
	if err != nil {
		return fmt.Errorf("merge into bulk backend: %w", err)
	}
	observability.RecordSyncCopied(RowToBulk.String(), written)
	m.log.Printf("run %s: merged %d rows %s/%s row->bulk", runID, written, instrument, res)

	if lim.RetainDays <= 0 {
		return nil
	}

	rowMax, ok, err := m.row.MaxTime(ctx, instrument, res)
	if err != nil || !ok {
		return err
	}
	cutoff := midnight(rowMax).AddDate(0, 0, -(lim.RetainDays - 1))

	// Retention safety: rows the bulk backend has not absorbed yet must
	// survive, whatever the retention window says.
	if postMerge, ok, err := m.bulk.MaxTime(ctx, instrument, res); err != nil {
		return fmt.Errorf("post-merge watermark: %w", err)
	} else if !ok || cutoff.After(postMerge) {
		if !ok {
			return nil
		}
		cutoff = midnight(postMerge)
	}

	trimmed, err := m.row.TrimBefore(ctx, instrument, res, cutoff)
	if err != nil {
		return fmt.Errorf("trim row backend: %w", err)
	}
	if trimmed > 0 {
		observability.RecordSyncTrimmed(trimmed)
		m.log.Printf("run %s: trimmed %d rows %s/%s from row backend", runID, trimmed, instrument, res)
	}
	return nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
