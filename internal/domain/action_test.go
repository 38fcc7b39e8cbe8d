package domain

import (
	"testing"
	"time"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestSortActions(t *testing.T) {
	actions := []CorporateAction{
		{Instrument: "sh600000", ExDate: date(2024, 6, 1)},
		{Instrument: "sh600000", ExDate: date(2023, 6, 1)},
		{Instrument: "sh600000", ExDate: date(2025, 6, 1)},
	}
	SortActions(actions)
	for i := 1; i < len(actions); i++ {
		if actions[i].ExDate.Before(actions[i-1].ExDate) {
			t.Fatalf("actions not sorted at index %d: %v", i, actions)
		}
	}
}

func TestClipActions(t *testing.T) {
	actions := []CorporateAction{
		{ExDate: date(2023, 6, 1)},
		{ExDate: date(2024, 6, 1)},
		{ExDate: date(2025, 6, 1)},
	}

	got := ClipActions(actions, date(2024, 6, 1))
	if len(got) != 2 {
		t.Fatalf("ClipActions kept %d actions, want 2", len(got))
	}
	// An action dated exactly on the last bar stays.
	if !got[1].ExDate.Equal(date(2024, 6, 1)) {
		t.Errorf("last kept action = %v, want 2024-06-01", got[1].ExDate)
	}
}

func TestIsNoop(t *testing.T) {
	if !(CorporateAction{}).IsNoop() {
		t.Error("zero action should be a noop")
	}
	if (CorporateAction{CashDividend: 0.5}).IsNoop() {
		t.Error("dividend action should not be a noop")
	}
	if (CorporateAction{BonusRatio: 10}).IsNoop() {
		t.Error("bonus action should not be a noop")
	}
}
