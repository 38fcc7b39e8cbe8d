// Package aggregate derives non-persisted resolutions from a persisted
// base resolution by windowed combination of bars.
package aggregate

import (
	"fmt"

	"kline-archive/internal/codec"
	"kline-archive/internal/domain"
)

// Resolve aggregates base-resolution bars up to the target resolution.
// The target must be an integer multiple of the base; equal resolutions
// return the input unchanged.
func Resolve(bars []domain.Bar, base, target domain.Resolution) ([]domain.Bar, error) {
	if base == target {
		return bars, nil
	}
	if base <= 0 || target%base != 0 {
		return nil, fmt.Errorf("resolution %d is not a multiple of base %d", int(target), int(base))
	}
	return Windows(bars, int(target/base)), nil
}

// Windows combines consecutive, non-overlapping windows of the given size
// into single bars. Windows are counted from the most recent bar backward,
// so when the count is not an exact multiple the oldest leading bars that
// cannot fill a window are dropped.
//
// Per window: open is the first bar's open, close the last bar's close,
// high/low the extremes, volume/amount/turnover sums, and the window
// timestamp is the last bar's. Change continuity across the first window
// is preserved by back-deriving the preceding close from the first used
// bar's own close and change.
func Windows(bars []domain.Bar, window int) []domain.Bar {
	if window <= 1 || len(bars) == 0 {
		return bars
	}

	// Drop the oldest bars that do not fill a whole window.
	if rem := len(bars) % window; rem > 0 {
		bars = bars[rem:]
	}
	if len(bars) == 0 {
		return nil
	}

	prevClose := codec.RoundPrice(bars[0].Close - bars[0].ChangePx)

	out := make([]domain.Bar, 0, len(bars)/window)
	for i := 0; i < len(bars); i += window {
		w := bars[i : i+window]
		agg := combine(w)

		agg.ChangePx = codec.RoundPrice(agg.Close - prevClose)
		if prevClose != 0 {
			agg.Change = agg.ChangePx / prevClose
			agg.Amplitude = (agg.High - agg.Low) / prevClose
		} else {
			agg.Change = 0
			agg.Amplitude = 0
		}

		out = append(out, agg)
		prevClose = agg.Close
	}
	return out
}

// combine folds one full window into a single bar, leaving the
// previous-close dependent fields for the caller.
func combine(w []domain.Bar) domain.Bar {
	agg := domain.Bar{
		Time:  w[len(w)-1].Time,
		Open:  w[0].Open,
		Close: w[len(w)-1].Close,
		High:  w[0].High,
		Low:   w[0].Low,
	}
	for _, b := range w {
		if b.High > agg.High {
			agg.High = b.High
		}
		if b.Low < agg.Low {
			agg.Low = b.Low
		}
		agg.Volume += b.Volume
		agg.Amount += b.Amount
		agg.Turnover += b.Turnover
	}
	return agg
}
