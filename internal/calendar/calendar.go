// Package calendar is the boundary to the trading-calendar service. The
// engine only needs two answers from it: whether a date trades, and the
// date N trading days away. Implementations must never loop unbounded on
// bad input; maxScan caps every search with a calendar-day fallback.
package calendar

import "time"

// Calendar answers trading-date questions.
type Calendar interface {
	// IsTradingDay reports whether d is a trading date.
	IsTradingDay(d time.Time) bool

	// Shift returns the trading date n trading days after d (before, for
	// negative n). n == 0 returns the nearest trading date at or before d.
	Shift(d time.Time, n int) time.Time
}

// maxScan bounds any walk over calendar days. Beyond it the implementation
// falls back to plain calendar-day arithmetic instead of recursing further.
const maxScan = 366

// Weekdays is the default calendar: every Monday-Friday trades. Holiday
// closures come from a real calendar service in deployments that have one.
type Weekdays struct{}

// Compile-time interface check.
var _ Calendar = Weekdays{}

// IsTradingDay reports whether d falls on a weekday.
func (Weekdays) IsTradingDay(d time.Time) bool {
	wd := d.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// Shift walks trading days with an explicit bound. When the bound is
// exhausted (malformed input far outside any trading range) it falls back
// to calendar-day arithmetic.
func (w Weekdays) Shift(d time.Time, n int) time.Time {
	d = midnight(d)

	step := 1
	if n < 0 {
		step = -1
		n = -n
	}

	// Settle on a trading day first, scanning backward.
	cur := d
	for i := 0; !w.IsTradingDay(cur); i++ {
		if i >= maxScan {
			return d.AddDate(0, 0, -step*n)
		}
		cur = cur.AddDate(0, 0, -1)
	}

	for moved := 0; moved < n; {
		cur = cur.AddDate(0, 0, step)
		scanned := 0
		for !w.IsTradingDay(cur) {
			if scanned++; scanned > maxScan {
				return d.AddDate(0, 0, step*n)
			}
			cur = cur.AddDate(0, 0, step)
		}
		moved++
	}
	return cur
}

func midnight(d time.Time) time.Time {
	y, m, day := d.UTC().Date()
	return time.Date(y, m, day, 0, 0, 0, 0, time.UTC)
}
