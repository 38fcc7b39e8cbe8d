package store

import (
	"context"
	"time"

	"kline-archive/internal/domain"
)

// BarStore is the backend-agnostic contract for bar dataset storage. It is
// implemented by the bulk columnar file backend, the transactional row
// backend (PostgreSQL) and the warehouse backend (ClickHouse); the sync
// manager and the reader only ever see this interface.
type BarStore interface {
	// Append merges ascending bars into the dataset using the tail-replace
	// rule: bars older than the last saved time are dropped, a leading bar
	// sharing the last saved time replaces the stored tail row(s), and the
	// remainder is appended. Returns the number of rows written.
	Append(ctx context.Context, instrument string, res domain.Resolution, bars []domain.Bar) (int, error)

	// Read returns the most recent n bars oldest-first, or the whole
	// dataset when n <= 0. A missing dataset yields an empty result.
	Read(ctx context.Context, instrument string, res domain.Resolution, n int) ([]domain.Bar, error)

	// ReadAfter returns bars strictly newer than the given time,
	// oldest-first. When limit > 0 only the most recent limit bars of the
	// selection are returned.
	ReadAfter(ctx context.Context, instrument string, res domain.Resolution, after time.Time, limit int) ([]domain.Bar, error)

	// MinTime returns the oldest bar time. ok is false when the dataset is
	// absent or empty.
	MinTime(ctx context.Context, instrument string, res domain.Resolution) (t time.Time, ok bool, err error)

	// MaxTime returns the newest bar time, i.e. the backend's watermark for
	// the dataset. ok is false when the dataset is absent or empty.
	MaxTime(ctx context.Context, instrument string, res domain.Resolution) (t time.Time, ok bool, err error)

	// TrimBefore removes bars strictly older than cutoff and returns the
	// number of rows removed.
	TrimBefore(ctx context.Context, instrument string, res domain.Resolution, cutoff time.Time) (int64, error)

	// Delete removes the whole dataset. Deleting an absent dataset is not
	// an error.
	Delete(ctx context.Context, instrument string, res domain.Resolution) error
}

// ActionStore provides access to corporate-action storage.
type ActionStore interface {
	// Insert adds actions, skipping any (instrument, ex_date) pair already
	// present. Re-running an ingestion batch is therefore idempotent.
	Insert(ctx context.Context, actions []domain.CorporateAction) error

	// GetByInstrument retrieves all actions for an instrument ordered by
	// ex-dividend date ascending. No actions yields an empty result.
	GetByInstrument(ctx context.Context, instrument string) ([]domain.CorporateAction, error)
}
