package postgres

import (
	"context"
	"fmt"
	"time"

	"kline-archive/internal/domain"
	"kline-archive/internal/store"
)

// ActionStore implements store.ActionStore using PostgreSQL. The
// corporate_actions table is created by migrations.
type ActionStore struct {
	pool *Pool
}

// NewActionStore creates a new ActionStore.
func NewActionStore(pool *Pool) *ActionStore {
	return &ActionStore{pool: pool}
}

// Compile-time interface check.
var _ store.ActionStore = (*ActionStore)(nil)

// Insert adds actions, skipping (instrument, ex_date) pairs already
// present, so re-running an ingestion batch is idempotent.
func (s *ActionStore) Insert(ctx context.Context, actions []domain.CorporateAction) error {
	if len(actions) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO corporate_actions (instrument, ex_date, bonus_ratio, cash_dividend)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (instrument, ex_date) DO NOTHING
	`

	for _, a := range actions {
		if err := domain.ValidateInstrument(a.Instrument); err != nil {
			return fmt.Errorf("%w: %v", store.ErrInvalidInstrument, err)
		}
		_, err := tx.Exec(ctx, query,
			a.Instrument,
			a.ExDate.UTC().Format("2006-01-02"),
			a.BonusRatio,
			a.CashDividend,
		)
		if err != nil {
			return fmt.Errorf("insert corporate action: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// GetByInstrument retrieves all actions for an instrument ordered by
// ex-dividend date ascending.
func (s *ActionStore) GetByInstrument(ctx context.Context, instrument string) ([]domain.CorporateAction, error) {
	if err := domain.ValidateInstrument(instrument); err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInstrument, err)
	}

	query := `
		SELECT instrument, ex_date, bonus_ratio, cash_dividend
		FROM corporate_actions
		WHERE instrument = $1
		ORDER BY ex_date ASC
	`

	rows, err := s.pool.Query(ctx, query, instrument)
	if err != nil {
		return nil, fmt.Errorf("get corporate actions: %w", err)
	}
	defer rows.Close()

	var actions []domain.CorporateAction
	for rows.Next() {
		var a domain.CorporateAction
		var exDate time.Time
		if err := rows.Scan(&a.Instrument, &exDate, &a.BonusRatio, &a.CashDividend); err != nil {
			return nil, fmt.Errorf("scan corporate action: %w", err)
		}
		a.ExDate = time.Date(exDate.Year(), exDate.Month(), exDate.Day(), 0, 0, 0, 0, time.UTC)
		actions = append(actions, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate corporate actions: %w", err)
	}
	return actions, nil
}
