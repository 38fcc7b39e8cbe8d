package store

import (
	"fmt"

	"kline-archive/internal/codec"
)

// MaxTailRun bounds the number of stored rows allowed to share the exact
// tail timestamp. A longer run means the dataset is malformed rather than
// "still forming" and the append is refused.
const MaxTailRun = 16

// AppendPlan describes how an incoming batch merges into an existing
// dataset tail.
type AppendPlan struct {
	// Replace is the number of trailing stored rows to overwrite. Non-zero
	// only when the first surviving incoming bar shares the stored tail
	// timestamp.
	Replace int

	// Bars are the rows to write: the replacement row (if any) followed by
	// the strictly new rows, ascending by time.
	Bars []codec.EncodedBar
}

// PlanAppend computes the tail-merge for an incoming batch against a
// dataset whose last saved packed time is lastTime, with tailRun stored
// rows sharing that exact time. Incoming bars must be ascending; bars older
// than lastTime are silently dropped (out-of-order history is never
// retroactively inserted by this path).
//
// lastTime == 0 means the dataset is absent or empty, in which case the
// whole batch is written verbatim.
func PlanAppend(lastTime int64, tailRun int, incoming []codec.EncodedBar) (AppendPlan, error) {
	for i := 1; i < len(incoming); i++ {
		if incoming[i].Time < incoming[i-1].Time {
			return AppendPlan{}, fmt.Errorf("%w: bars not ascending at index %d", ErrInvalidInput, i)
		}
	}

	if lastTime == 0 {
		return AppendPlan{Bars: incoming}, nil
	}

	// Keep only bars at or after the stored tail.
	first := len(incoming)
	for i, e := range incoming {
		if e.Time >= lastTime {
			first = i
			break
		}
	}
	overlap := incoming[first:]
	if len(overlap) == 0 {
		return AppendPlan{}, nil
	}

	if overlap[0].Time > lastTime {
		// Strictly new: plain append.
		return AppendPlan{Bars: overlap}, nil
	}

	// Leading edge duplicates the stored tail: replace it, append the rest.
	if tailRun > MaxTailRun {
		return AppendPlan{}, fmt.Errorf("%w: %d rows share tail time %d", ErrInvalidInput, tailRun, lastTime)
	}
	if tailRun < 1 {
		tailRun = 1
	}
	return AppendPlan{Replace: tailRun, Bars: overlap}, nil
}
