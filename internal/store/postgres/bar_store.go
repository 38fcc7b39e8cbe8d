package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"kline-archive/internal/codec"
	"kline-archive/internal/domain"
	"kline-archive/internal/store"
)

// BarStore implements store.BarStore using PostgreSQL. Each (instrument,
// resolution) dataset is a deterministically named table holding encoded
// fixed-point values, so contents are bit-exact with the other backends.
type BarStore struct {
	pool *Pool
}

// NewBarStore creates a new BarStore.
func NewBarStore(pool *Pool) *BarStore {
	return &BarStore{pool: pool}
}

// Compile-time interface check.
var _ store.BarStore = (*BarStore)(nil)

// TableName returns the deterministic table name for a dataset.
func TableName(instrument string, res domain.Resolution) string {
	return fmt.Sprintf("bars_%s_%d", instrument, int(res))
}

func validate(instrument string, res domain.Resolution) error {
	if err := domain.ValidateInstrument(instrument); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInstrument, err)
	}
	if !res.IsNative() {
		return fmt.Errorf("%w: %d", store.ErrUnsupportedResolution, int(res))
	}
	return nil
}

// Append merges ascending bars into the dataset table within a single
// transaction: read the tail, plan the merge, delete the replaced tail
// rows, insert the survivors, commit. Every error path rolls back.
func (s *BarStore) Append(ctx context.Context, instrument string, res domain.Resolution, bars []domain.Bar) (int, error) {
	if err := validate(instrument, res); err != nil {
		return 0, err
	}
	if len(bars) == 0 {
		return 0, nil
	}

	table := TableName(instrument, res)
	if err := s.ensureTable(ctx, table); err != nil {
		return 0, err
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	lastTime, tailRun, err := tailState(ctx, tx, table)
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
		if _, err := tx.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE time = $1`, table), lastTime); err != nil {
			return 0, fmt.Errorf("replace tail rows: %w", err)
		}
	}

	insert := fmt.Sprintf(`
		INSERT INTO %s (
			time, open, high, low, close, volume, amount, change_px, change, amplitude, turnover
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, table)

	for _, e := range plan.Bars {
		_, err := tx.Exec(ctx, insert,
			e.Time, e.Open, e.High, e.Low, e.Close,
			e.Volume, e.Amount, e.ChangePx,
			e.Change, e.Amplitude, e.Turnover,
		)
		if err != nil {
			return 0, fmt.Errorf("insert bar: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit tx: %w", err)
	}
	return len(plan.Bars), nil
}

// Read returns the most recent n bars oldest-first, or all when n <= 0.
func (s *BarStore) Read(ctx context.Context, instrument string, res domain.Resolution, n int) ([]domain.Bar, error) {
	if err := validate(instrument, res); err != nil {
		return nil, err
	}

	table := TableName(instrument, res)
	query := fmt.Sprintf(`SELECT %s FROM %s ORDER BY time DESC`, barColumns, table)
	if n > 0 {
		query += fmt.Sprintf(" LIMIT %d", n)
	}

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		if isUndefinedTableError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bars: %w", err)
	}
	defer rows.Close()

	encs, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	reverse(encs)
	return codec.DecodeAll(encs, res), nil
}

// ReadAfter returns bars strictly newer than after, keeping the most recent
// limit bars when limit > 0.
func (s *BarStore) ReadAfter(ctx context.Context, instrument string, res domain.Resolution, after time.Time, limit int) ([]domain.Bar, error) {
	if err := validate(instrument, res); err != nil {
		return nil, err
	}

	table := TableName(instrument, res)
	query := fmt.Sprintf(`SELECT %s FROM %s WHERE time > $1 ORDER BY time DESC`, barColumns, table)
	if limit > 0 {
		query += fmt.Sprintf(" LIMIT %d", limit)
	}

	rows, err := s.pool.Query(ctx, query, codec.EncodeTime(after))
	if err != nil {
		if isUndefinedTableError(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read bars after: %w", err)
	}
	defer rows.Close()

	encs, err := scanBars(rows)
	if err != nil {
		return nil, err
	}
	reverse(encs)
	return codec.DecodeAll(encs, res), nil
}

// MinTime returns the oldest bar time; ok is false when the dataset is
// absent or empty.
func (s *BarStore) MinTime(ctx context.Context, instrument string, res domain.Resolution) (time.Time, bool, error) {
	return s.edgeTime(ctx, instrument, res, "min")
}

// MaxTime returns the newest bar time, the row backend's watermark.
func (s *BarStore) MaxTime(ctx context.Context, instrument string, res domain.Resolution) (time.Time, bool, error) {
	return s.edgeTime(ctx, instrument, res, "max")
}

func (s *BarStore) edgeTime(ctx context.Context, instrument string, res domain.Resolution, fn string) (time.Time, bool, error) {
	if err := validate(instrument, res); err != nil {
		return time.Time{}, false, err
	}

	table := TableName(instrument, res)
	var packed *int64
	err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT %s(time) FROM %s`, fn, table)).Scan(&packed)
	if err != nil {
		if isUndefinedTableError(err) || isNotFoundError(err) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, fmt.Errorf("%s time: %w", fn, err)
	}
	if packed == nil {
		return time.Time{}, false, nil
	}
	return codec.DecodeTime(*packed, res.DateOnly()), true, nil
}

// TrimBefore removes bars strictly older than cutoff.
func (s *BarStore) TrimBefore(ctx context.Context, instrument string, res domain.Resolution, cutoff time.Time) (int64, error) {
	if err := validate(instrument, res); err != nil {
		return 0, err
	}

	table := TableName(instrument, res)
	tag, err := s.pool.Exec(ctx, fmt.Sprintf(`DELETE FROM %s WHERE time < $1`, table), codec.EncodeTime(cutoff))
	if err != nil {
		if isUndefinedTableError(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("trim bars: %w", err)
	}
	return tag.RowsAffected(), nil
}

// Delete drops the dataset table. An absent table is not an error.
func (s *BarStore) Delete(ctx context.Context, instrument string, res domain.Resolution) error {
	if err := validate(instrument, res); err != nil {
		return err
	}

	table := TableName(instrument, res)
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, table)); err != nil {
		return fmt.Errorf("drop table %s: %w", table, err)
	}
	return nil
}

// ensureTable creates the dataset table on first append. Instrument names
// are validated to letters+digits, so interpolation is safe.
func (s *BarStore) ensureTable(ctx context.Context, table string) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			time      BIGINT PRIMARY KEY,
			open      BIGINT NOT NULL,
			high      BIGINT NOT NULL,
			low       BIGINT NOT NULL,
			close     BIGINT NOT NULL,
			volume    BIGINT NOT NULL,
			amount    BIGINT NOT NULL,
			change_px BIGINT NOT NULL,
			change    DOUBLE PRECISION NOT NULL,
			amplitude DOUBLE PRECISION NOT NULL,
			turnover  DOUBLE PRECISION NOT NULL
		)
	`, table)
	if _, err := s.pool.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", table, err)
	}
	return nil
}

// tailState reads the packed time of the newest row and the size of the
// trailing run sharing it, inside the append transaction.
func tailState(ctx context.Context, tx pgx.Tx, table string) (int64, int, error) {
	query := fmt.Sprintf(`SELECT time FROM %s ORDER BY time DESC LIMIT %d`, table, store.MaxTailRun+1)
	rows, err := tx.Query(ctx, query)
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

const barColumns = "time, open, high, low, close, volume, amount, change_px, change, amplitude, turnover"

// scanBars scans encoded bar rows.
func scanBars(rows pgx.Rows) ([]codec.EncodedBar, error) {
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
	return encs, nil
}

func reverse(encs []codec.EncodedBar) {
	for i, j := 0, len(encs)-1; i < j; i, j = i+1, j-1 {
		encs[i], encs[j] = encs[j], encs[i]
	}
}
