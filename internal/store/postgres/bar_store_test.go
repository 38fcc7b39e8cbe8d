package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"kline-archive/internal/domain"
)

func minuteBars(start time.Time, closes ...float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		out[i] = domain.Bar{
			Time:   start.Add(time.Duration(i) * time.Minute),
			Open:   c - 0.1,
			High:   c + 0.2,
			Low:    c - 0.2,
			Close:  c,
			Volume: 100,
			Amount: 1000,
		}
	}
	return out
}

func TestBarStore_AppendAndRead(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewBarStore(pool)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	written, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2))
	require.NoError(t, err)
	require.Equal(t, 3, written)

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	require.Equal(t, 10.0, bars[0].Close)
	require.Equal(t, 10.2, bars[2].Close)
	require.True(t, bars[1].Time.Equal(start.Add(time.Minute)))
}

func TestBarStore_TailReplace(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewBarStore(pool)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	_, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1))
	require.NoError(t, err)

	// The forming tail bar is redelivered with its final value.
	batch := []domain.Bar{
		{Time: start.Add(time.Minute), Open: 10, High: 10.3, Low: 10, Close: 10.15, Volume: 150},
		{Time: start.Add(2 * time.Minute), Open: 10.15, High: 10.4, Low: 10.1, Close: 10.3, Volume: 120},
	}
	written, err := s.Append(ctx, "sh600000", domain.Res1Min, batch)
	require.NoError(t, err)
	require.Equal(t, 2, written)

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	require.NoError(t, err)
	require.Len(t, bars, 3)
	require.Equal(t, 10.15, bars[1].Close)
	require.Equal(t, int64(150), bars[1].Volume)
}

func TestBarStore_ReadAfterAndLimits(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewBarStore(pool)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	_, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2, 10.3))
	require.NoError(t, err)

	bars, err := s.ReadAfter(ctx, "sh600000", domain.Res1Min, start.Add(time.Minute), 0)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 10.2, bars[0].Close)

	bars, err = s.Read(ctx, "sh600000", domain.Res1Min, 2)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 10.3, bars[1].Close)
}

func TestBarStore_MinMaxTime(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewBarStore(pool)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	// Absent dataset.
	_, ok, err := s.MaxTime(ctx, "sh600000", domain.Res1Min)
	require.NoError(t, err)
	require.False(t, ok)

	_, err = s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1))
	require.NoError(t, err)

	min, ok, err := s.MinTime(ctx, "sh600000", domain.Res1Min)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, min.Equal(start))

	max, ok, err := s.MaxTime(ctx, "sh600000", domain.Res1Min)
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, max.Equal(start.Add(time.Minute)))
}

func TestBarStore_TrimBefore(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewBarStore(pool)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	_, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2, 10.3))
	require.NoError(t, err)

	trimmed, err := s.TrimBefore(ctx, "sh600000", domain.Res1Min, start.Add(2*time.Minute))
	require.NoError(t, err)
	require.Equal(t, int64(2), trimmed)

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	require.Equal(t, 10.2, bars[0].Close)
}

func TestBarStore_Delete(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewBarStore(pool)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	_, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10))
	require.NoError(t, err)

	require.NoError(t, s.Delete(ctx, "sh600000", domain.Res1Min))

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	require.NoError(t, err)
	require.Empty(t, bars)

	// Dropping an absent dataset is fine.
	require.NoError(t, s.Delete(ctx, "sh600000", domain.Res1Min))
}

func TestBarStore_DayResolutionDateOnly(t *testing.T) {
	pool, cleanup := setupTestDB(t)
	defer cleanup()

	s := NewBarStore(pool)
	ctx := context.Background()

	in := []domain.Bar{{
		Time:  time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		Open:  10, High: 10.5, Low: 9.8, Close: 10.2,
	}}
	_, err := s.Append(ctx, "sh600000", domain.ResDay, in)
	require.NoError(t, err)

	bars, err := s.Read(ctx, "sh600000", domain.ResDay, 0)
	require.NoError(t, err)
	require.Len(t, bars, 1)
	require.True(t, bars[0].Time.Equal(time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)))
}
