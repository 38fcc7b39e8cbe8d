package calendar

import (
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestIsTradingDay(t *testing.T) {
	w := Weekdays{}

	if !w.IsTradingDay(day(2024, 6, 14)) { // Friday
		t.Error("Friday should trade")
	}
	if w.IsTradingDay(day(2024, 6, 15)) { // Saturday
		t.Error("Saturday should not trade")
	}
	if w.IsTradingDay(day(2024, 6, 16)) { // Sunday
		t.Error("Sunday should not trade")
	}
}

func TestShiftBackward(t *testing.T) {
	w := Weekdays{}

	// Monday minus one trading day is the previous Friday.
	got := w.Shift(day(2024, 6, 17), -1)
	if !got.Equal(day(2024, 6, 14)) {
		t.Errorf("Shift(Mon, -1) = %v, want Friday 2024-06-14", got)
	}

	// A full trading week back.
	got = w.Shift(day(2024, 6, 17), -5)
	if !got.Equal(day(2024, 6, 10)) {
		t.Errorf("Shift(Mon, -5) = %v, want Monday 2024-06-10", got)
	}
}

func TestShiftForward(t *testing.T) {
	w := Weekdays{}

	got := w.Shift(day(2024, 6, 14), 1) // Friday + 1
	if !got.Equal(day(2024, 6, 17)) {
		t.Errorf("Shift(Fri, 1) = %v, want Monday 2024-06-17", got)
	}
}

func TestShiftFromWeekend(t *testing.T) {
	w := Weekdays{}

	// A weekend date settles on the preceding Friday first.
	got := w.Shift(day(2024, 6, 16), 0)
	if !got.Equal(day(2024, 6, 14)) {
		t.Errorf("Shift(Sun, 0) = %v, want Friday 2024-06-14", got)
	}

	got = w.Shift(day(2024, 6, 16), -1)
	if !got.Equal(day(2024, 6, 13)) {
		t.Errorf("Shift(Sun, -1) = %v, want Thursday 2024-06-13", got)
	}
}

func TestShiftDropsClock(t *testing.T) {
	w := Weekdays{}

	got := w.Shift(time.Date(2024, 6, 14, 15, 30, 0, 0, time.UTC), 0)
	if !got.Equal(day(2024, 6, 14)) {
		t.Errorf("Shift should truncate to midnight, got %v", got)
	}
}
