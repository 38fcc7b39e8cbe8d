package clickhouse

import (
	"context"
	"fmt"
	"time"

	"kline-archive/internal/codec"
	"kline-archive/internal/domain"
	"kline-archive/internal/store"
)

// BarStore implements store.BarStore over a single bars MergeTree table
// ordered by (instrument, resolution, time). Values are the encoded
// fixed-point integers, bit-exact with the other backends.
type BarStore struct {
	conn *Conn
}

// NewBarStore creates a new BarStore.
func NewBarStore(conn *Conn) *BarStore {
	return &BarStore{conn: conn}
}

// Compile-time interface check.
var _ store.BarStore = (*BarStore)(nil)

func validate(instrument string, res domain.Resolution) error {
	if err := domain.ValidateInstrument(instrument); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInstrument, err)
	}
	if !res.IsNative() {
		return fmt.Errorf("%w: %d", store.ErrUnsupportedResolution, int(res))
	}
	return nil
}

// Append merges ascending bars per the tail-replace rule. The replaced
// tail rows are removed with a lightweight delete before the batch insert.
func (s *BarStore) Append(ctx context.Context, instrument string, res domain.Resolution, bars []domain.Bar) (int, error) {
	if err := validate(instrument, res); err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	lastTime, tailRun, err := s.tailState(ctx, instrument, res)
	if err != nil {
		return 0, err
	}

	plan, err := store.PlanAppend(lastTime, tailRun, codec.EncodeAll(bars))
	if err != nil {
		return 0, err
	}
	if len(plan.Bars) == 0 {
		return 0, nil
	}

	if plan.Replace > 0 {
		err := s.conn.Exec(ctx, `
			DELETE FROM bars WHERE instrument = ? AND resolution = ? AND time = ?
		`, instrument, int64(res), lastTime)
		if err != nil {
			return 0, fmt.Errorf("replace tail rows: %w", err)
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO bars (
			instrument, resolution, time, open, high, low, close,
			volume, amount, change_px, change, amplitude, turnover
		)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare batch: %w", err)
	}

	for _, e := range plan.Bars {
		err = batch.Append(
			instrument, int64(res), e.Time,
			e.Open, e.High, e.Low, e.Close,
			e.Volume, e.Amount, e.ChangePx,
			e.Change, e.Amplitude, e.Turnover,
		)
		if err != nil {
			return 0, fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return 0, fmt.Errorf("send batch: %w", err)
	}
	return len(plan.Bars), nil
}

// Read returns the most recent n bars oldest-first, or all when n <= 0.
func (s *BarStore) Read(ctx context.Context, instrument string, res domain.Resolution, n int) ([]domain.Bar, error) {
	query := `
		SELECT time, open, high, low, close, volume, amount, change_px, change, amplitude, turnover
		FROM bars
		WHERE instrument = ? AND resolution = ?
		ORDER BY time DESC
	`
	args := []any{instrument, int64(res)}
	if n > 0 {
		query += " LIMIT ?"
		args = append(args, int64(n))
	}
	return s.query(ctx, instrument, res, query, args...)
}

// ReadAfter returns bars strictly newer than after, keeping the most recent
// limit bars when limit > 0.
func (s *BarStore) ReadAfter(ctx context.Context, instrument string, res domain.Resolution, after time.Time, limit int) ([]domain.Bar, error) {
	query := `
		SELECT time, open, high, low, close, volume, amount, change_px, change, amplitude, turnover
		FROM bars
		WHERE instrument = ? AND resolution = ? AND time > ?
		ORDER BY time DESC
	`
	args := []any{instrument, int64(res), codec.EncodeTime(after)}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, int64(limit))
	}
	return s.query(ctx, instrument, res, query, args...)
}

func (s *BarStore) query(ctx context.Context, instrument string, res domain.Resolution, query string, args ...any) ([]domain.Bar, error) {
	if err := validate(instrument, res); err != nil {
		return nil, err
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	var encs []codec.EncodedBar
	for rows.Next() {
		var e codec.EncodedBar
		err := rows.Scan(
			&e.Time, &e.Open, &e.High, &e.Low, &e.Close,
			&e.Volume, &e.Amount, &e.ChangePx,
			&e.Change, &e.Amplitude, &e.Turnover,
		)
		if err != nil {
			return nil, fmt.Errorf("scan bar row: %w", err)
		}
		encs = append(encs, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bar rows: %w", err)
	}

	// Rows arrive newest-first; callers expect oldest-first.
	for i, j := 0, len(encs)-1; i < j; i, j = i+1, j-1 {
		encs[i], encs[j] = encs[j], encs[i]
	}
	return codec.DecodeAll(encs, res), nil
}

// MinTime returns the oldest bar time; ok is false for an empty dataset.
func (s *BarStore) MinTime(ctx context.Context, instrument string, res domain.Resolution) (time.Time, bool, error) {
	return s.edgeTime(ctx, instrument, res, "min")
}

// MaxTime returns the newest bar time, the warehouse watermark.
func (s *BarStore) MaxTime(ctx context.Context, instrument string, res domain.Resolution) (time.Time, bool, error) {
	return s.edgeTime(ctx, instrument, res, "max")
}

func (s *BarStore) edgeTime(ctx context.Context, instrument string, res domain.Resolution, fn string) (time.Time, bool, error) {
	if err := validate(instrument, res); err != nil {
		return time.Time{}, false, err
	}

	query := fmt.Sprintf(`
		SELECT %s(time), count() FROM bars WHERE instrument = ? AND resolution = ?
	`, fn)

	var packed int64
	var count uint64
	if err := s.conn.QueryRow(ctx, query, instrument, int64(res)).Scan(&packed, &count); err != nil {
		return time.Time{}, false, fmt.Errorf("%s time: %w", fn, err)
	}
	if count == 0 {
		return time.Time{}, false, nil
	}
	return codec.DecodeTime(packed, res.DateOnly()), true, nil
}

// TrimBefore removes bars strictly older than cutoff.
func (s *BarStore) TrimBefore(ctx context.Context, instrument string, res domain.Resolution, cutoff time.Time) (int64, error) {
	if err := validate(instrument, res); err != nil {
		return 0, err
	}

	cut := codec.EncodeTime(cutoff)

	var count uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count() FROM bars WHERE instrument = ? AND resolution = ? AND time < ?
	`, instrument, int64(res), cut).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count trim rows: %w", err)
	}
	if count == 0 {
		return 0, nil
	}

	err = s.conn.Exec(ctx, `
		DELETE FROM bars WHERE instrument = ? AND resolution = ? AND time < ?
	`, instrument, int64(res), cut)
	if err != nil {
		return 0, fmt.Errorf("trim bars: %w", err)
	}
	return int64(count), nil
}

// Delete removes the whole dataset.
func (s *BarStore) Delete(ctx context.Context, instrument string, res domain.Resolution) error {
	if err := validate(instrument, res); err != nil {
		return err
	}

	err := s.conn.Exec(ctx, `
		DELETE FROM bars WHERE instrument = ? AND resolution = ?
	`, instrument, int64(res))
	if err != nil {
		return fmt.Errorf("delete dataset: %w", err)
	}
	return nil
}

// tailState reads the newest packed time and the size of the trailing run
// sharing it.
func (s *BarStore) tailState(ctx context.Context, instrument string, res domain.Resolution) (int64, int, error) {
	query := fmt.Sprintf(`
		SELECT time FROM bars
		WHERE instrument = ? AND resolution = ?
		ORDER BY time DESC
		LIMIT %d
	`, store.MaxTailRun+1)

	rows, err := s.conn.Query(ctx, query, instrument, int64(res))
	if err != nil {
		return 0, 0, fmt.Errorf("read tail times: %w", err)
	}
	defer rows.Close()

	var lastTime int64
	run := 0
	for rows.Next() {
		var t int64
		if err := rows.Scan(&t); err != nil {
			return 0, 0, fmt.Errorf("scan tail time: %w", err)
		}
		if run == 0 {
			lastTime = t
			run = 1
			continue
		}
		if t != lastTime {
			break
		}
		run++
	}
	if err := rows.Err(); err != nil {
		return 0, 0, fmt.Errorf("iterate tail times: %w", err)
	}
	return lastTime, run, nil
}
