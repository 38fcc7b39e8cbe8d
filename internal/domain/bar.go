package domain

import "time"

// Bar represents one OHLCV record for an instrument at a resolution.
// Time is UTC; for date-only resolutions it is truncated to midnight.
type Bar struct {
	Time      time.Time // bar timestamp
	Open      float64   // opening price
	High      float64   // highest price
	Low       float64   // lowest price
	Close     float64   // closing price
	Volume    int64     // traded share/lot count
	Amount    int64     // turnover value
	ChangePx  float64   // absolute change vs. previous close
	Change    float64   // fractional change vs. previous close
	Amplitude float64   // (high-low)/previous close
	Turnover  float64   // turnover ratio
}

// Clone returns a copy of the bar.
func (b Bar) Clone() Bar { return b }

// BarsAscending reports whether bars are in non-decreasing time order.
func BarsAscending(bars []Bar) bool {
	for i := 1; i < len(bars); i++ {
		if bars[i].Time.Before(bars[i-1].Time) {
			return false
		}
	}
	return true
}
