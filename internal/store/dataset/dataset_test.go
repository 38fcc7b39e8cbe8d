package dataset

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"kline-archive/internal/domain"
	"kline-archive/internal/store"
)

func bar(ts time.Time, close float64) domain.Bar {
	return domain.Bar{
		Time:   ts,
		Open:   close - 0.1,
		High:   close + 0.2,
		Low:    close - 0.2,
		Close:  close,
		Volume: 100,
		Amount: 1000,
	}
}

func minuteBars(start time.Time, closes ...float64) []domain.Bar {
	out := make([]domain.Bar, len(closes))
	for i, c := range closes {
		out[i] = bar(start.Add(time.Duration(i)*time.Minute), c)
	}
	return out
}

func TestAppendAndRead(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	written, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2))
	if err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if written != 3 {
		t.Errorf("Append wrote %d rows, want 3", written)
	}

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(bars) != 3 {
		t.Fatalf("Read returned %d bars, want 3", len(bars))
	}
	if bars[0].Close != 10 || bars[2].Close != 10.2 {
		t.Errorf("bars out of order or corrupted: %+v", bars)
	}
	if !bars[1].Time.Equal(start.Add(time.Minute)) {
		t.Errorf("bar time = %v, want %v", bars[1].Time, start.Add(time.Minute))
	}
}

func TestReadMostRecentN(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2, 10.3)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 2)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(bars) != 2 || bars[0].Close != 10.2 || bars[1].Close != 10.3 {
		t.Errorf("Read(2) = %+v, want last two bars", bars)
	}
}

func TestAppendReplacesFormingTail(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2)); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}

	// Re-deliver the last bar with its final value, plus one new bar.
	batch := []domain.Bar{
		bar(start.Add(2*time.Minute), 10.25),
		bar(start.Add(3*time.Minute), 10.4),
	}
	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, batch); err != nil {
		t.Fatalf("second Append failed: %v", err)
	}

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(bars) != 4 {
		t.Fatalf("Read returned %d bars, want 4", len(bars))
	}
	if bars[2].Close != 10.25 {
		t.Errorf("tail bar not replaced: close = %v, want 10.25", bars[2].Close)
	}
	if bars[3].Close != 10.4 {
		t.Errorf("new bar missing: close = %v, want 10.4", bars[3].Close)
	}
}

func TestAppendIdempotentRedelivery(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)
	batch := minuteBars(start, 10, 10.1, 10.2)

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, batch); err != nil {
		t.Fatalf("first Append failed: %v", err)
	}
	// Redelivering the same batch only rewrites the tail row.
	written, err := s.Append(ctx, "sh600000", domain.Res1Min, batch)
	if err != nil {
		t.Fatalf("second Append failed: %v", err)
	}
	if written != 1 {
		t.Errorf("redelivery wrote %d rows, want 1 (tail replace)", written)
	}

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	if len(bars) != 3 {
		t.Errorf("Read returned %d bars after redelivery, want 3", len(bars))
	}
}

func TestReadAfter(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2, 10.3)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	bars, err := s.ReadAfter(ctx, "sh600000", domain.Res1Min, start.Add(time.Minute), 0)
	if err != nil {
		t.Fatalf("ReadAfter failed: %v", err)
	}
	// Strictly newer: the bar at the cut time itself is excluded.
	if len(bars) != 2 || bars[0].Close != 10.2 {
		t.Errorf("ReadAfter = %+v, want bars after 09:31", bars)
	}
}

func TestMinMaxTime(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	_, ok, err := s.MaxTime(ctx, "sh600000", domain.Res1Min)
	if err != nil || ok {
		t.Fatalf("MaxTime on absent dataset = ok=%v err=%v, want ok=false", ok, err)
	}

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	min, ok, err := s.MinTime(ctx, "sh600000", domain.Res1Min)
	if err != nil || !ok {
		t.Fatalf("MinTime failed: ok=%v err=%v", ok, err)
	}
	if !min.Equal(start) {
		t.Errorf("MinTime = %v, want %v", min, start)
	}

	max, ok, err := s.MaxTime(ctx, "sh600000", domain.Res1Min)
	if err != nil || !ok {
		t.Fatalf("MaxTime failed: ok=%v err=%v", ok, err)
	}
	if !max.Equal(start.Add(2 * time.Minute)) {
		t.Errorf("MaxTime = %v, want %v", max, start.Add(2*time.Minute))
	}
}

func TestTrimBefore(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2, 10.3)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	trimmed, err := s.TrimBefore(ctx, "sh600000", domain.Res1Min, start.Add(2*time.Minute))
	if err != nil {
		t.Fatalf("TrimBefore failed: %v", err)
	}
	if trimmed != 2 {
		t.Errorf("TrimBefore removed %d rows, want 2", trimmed)
	}

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	// The bar at the cutoff itself survives.
	if len(bars) != 2 || bars[0].Close != 10.2 {
		t.Errorf("post-trim bars = %+v", bars)
	}
}

func TestDelete(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}
	if err := s.Delete(ctx, "sh600000", domain.Res1Min); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	if err != nil {
		t.Fatalf("Read after Delete failed: %v", err)
	}
	if len(bars) != 0 {
		t.Errorf("Read after Delete returned %d bars", len(bars))
	}

	// Deleting an absent dataset is fine.
	if err := s.Delete(ctx, "sh600000", domain.Res1Min); err != nil {
		t.Errorf("second Delete failed: %v", err)
	}
}

func TestFileLayout(t *testing.T) {
	dir := t.TempDir()
	s := New(dir, nil)

	got := s.Path("sh600000", domain.Res5Min)
	want := filepath.Join(dir, "minute", "sh6", "sh600000-5.kds")
	if got != want {
		t.Errorf("Path = %q, want %q", got, want)
	}
	if got := s.Path("sz000001", domain.ResWeek); got != filepath.Join(dir, "long", "sz0", "sz000001-102.kds") {
		t.Errorf("week path = %q", got)
	}
}

func TestRejectsInvalidInput(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "600000", domain.Res1Min, minuteBars(start, 10)); !errors.Is(err, store.ErrInvalidInstrument) {
		t.Errorf("bad instrument: got %v, want ErrInvalidInstrument", err)
	}
	if _, err := s.Append(ctx, "sh600000", domain.Res30Min, minuteBars(start, 10)); !errors.Is(err, store.ErrUnsupportedResolution) {
		t.Errorf("derived resolution: got %v, want ErrUnsupportedResolution", err)
	}
	if _, err := s.Read(ctx, "sh600000", domain.Res30Min, 0); !errors.Is(err, store.ErrUnsupportedResolution) {
		t.Errorf("derived resolution read: got %v, want ErrUnsupportedResolution", err)
	}
}

func TestRecoveryClampsCountToFileSize(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10, 10.1, 10.2)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Simulate a crash that lost the last record's bytes but kept the
	// bumped header count.
	path := s.Path("sh600000", domain.Res1Min)
	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("stat failed: %v", err)
	}
	if err := os.Truncate(path, fi.Size()-recordSize); err != nil {
		t.Fatalf("truncate failed: %v", err)
	}

	bars, err := s.Read(ctx, "sh600000", domain.Res1Min, 0)
	if err != nil {
		t.Fatalf("Read after truncation failed: %v", err)
	}
	if len(bars) != 2 {
		t.Errorf("Read returned %d bars, want the 2 intact ones", len(bars))
	}
}

func TestResolutionMismatchDetected(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()
	start := time.Date(2024, 1, 2, 9, 30, 0, 0, time.UTC)

	if _, err := s.Append(ctx, "sh600000", domain.Res1Min, minuteBars(start, 10)); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	// Point the 5-minute dataset at the 1-minute file.
	src := s.Path("sh600000", domain.Res1Min)
	dst := s.Path("sh600000", domain.Res5Min)
	data, err := os.ReadFile(src)
	if err != nil {
		t.Fatalf("read file: %v", err)
	}
	if err := os.WriteFile(dst, data, 0o644); err != nil {
		t.Fatalf("write file: %v", err)
	}

	if _, err := s.Read(ctx, "sh600000", domain.Res5Min, 0); err == nil {
		t.Error("expected resolution mismatch error")
	}
}

func TestDayResolutionStoresDateOnly(t *testing.T) {
	s := New(t.TempDir(), nil)
	ctx := context.Background()

	in := []domain.Bar{bar(time.Date(2024, 1, 2, 15, 0, 0, 0, time.UTC), 10.5)}
	if _, err := s.Append(ctx, "sh600000", domain.ResDay, in); err != nil {
		t.Fatalf("Append failed: %v", err)
	}

	bars, err := s.Read(ctx, "sh600000", domain.ResDay, 0)
	if err != nil {
		t.Fatalf("Read failed: %v", err)
	}
	want := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	if len(bars) != 1 || !bars[0].Time.Equal(want) {
		t.Errorf("day bar time = %v, want %v", bars[0].Time, want)
	}
}
