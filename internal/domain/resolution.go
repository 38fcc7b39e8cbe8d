package domain

import (
	"fmt"
	"strconv"
)

// Resolution is the canonical integer code for a bar granularity.
// Sub-day resolutions use their minute count (1, 5, 15, 30, ...);
// day and longer resolutions use the 101+ range.
type Resolution int

// Canonical resolution codes.
const (
	Res1Min    Resolution = 1
	Res5Min    Resolution = 5
	Res15Min   Resolution = 15
	Res30Min   Resolution = 30
	Res60Min   Resolution = 60
	ResDay     Resolution = 101
	ResWeek    Resolution = 102
	ResMonth   Resolution = 103
	ResQuarter Resolution = 104
	ResHalf    Resolution = 105
	ResYear    Resolution = 106
)

// Family is the storage grouping of a resolution: sub-day bars, daily bars,
// and week-and-longer bars live in separate bulk file groups.
type Family string

const (
	FamilyMinute Family = "minute"
	FamilyDay    Family = "day"
	FamilyLong   Family = "long"
)

// nativeSet lists the directly persisted resolutions. Everything else is
// derived on read by aggregation from a native base.
var nativeSet = map[Resolution]struct{}{
	Res1Min: {}, Res5Min: {}, Res15Min: {},
	ResDay: {}, ResWeek: {}, ResMonth: {}, ResQuarter: {}, ResHalf: {}, ResYear: {},
}

// IsNative reports whether r is directly persisted.
func (r Resolution) IsNative() bool {
	_, ok := nativeSet[r]
	return ok
}

// IsIntraday reports whether r is a sub-day (minute) resolution.
func (r Resolution) IsIntraday() bool { return r < ResDay }

// IsValid reports whether r is a known native resolution or a derivable
// multiple of a native minute base.
func (r Resolution) IsValid() bool {
	if r.IsNative() {
		return true
	}
	return r > 0 && r < ResDay && r%Base(r) == 0
}

// DateOnly reports whether bars at this resolution carry date granularity
// only. A resolution is date-only unless it divides 15 minutes exactly.
func (r Resolution) DateOnly() bool {
	if r <= 0 {
		return true
	}
	if r >= ResDay {
		return true
	}
	return Res15Min%r != 0
}

// Family returns the bulk storage family of r.
func (r Resolution) Family() Family {
	switch {
	case r < ResDay:
		return FamilyMinute
	case r == ResDay:
		return FamilyDay
	default:
		return FamilyLong
	}
}

// Base returns the native minute base a derived sub-day resolution is
// aggregated from: the 15-minute base when the target is a multiple of 15,
// the 5-minute base for multiples of 5, and the 1-minute base otherwise.
func Base(r Resolution) Resolution {
	switch {
	case r%Res15Min == 0:
		return Res15Min
	case r%Res5Min == 0:
		return Res5Min
	default:
		return Res1Min
	}
}

func (r Resolution) String() string {
	switch r {
	case ResDay:
		return "day"
	case ResWeek:
		return "week"
	case ResMonth:
		return "month"
	case ResQuarter:
		return "quarter"
	case ResHalf:
		return "halfyear"
	case ResYear:
		return "year"
	default:
		return strconv.Itoa(int(r)) + "min"
	}
}

// resolutionAliases maps the human resolution strings accepted at the API
// boundary to canonical codes.
var resolutionAliases = map[string]Resolution{
	"d": ResDay, "day": ResDay,
	"w": ResWeek, "week": ResWeek,
	"m": ResMonth, "month": ResMonth,
	"q": ResQuarter, "quarter": ResQuarter,
	"h": ResHalf, "halfyear": ResHalf,
	"y": ResYear, "year": ResYear,
}

// ParseResolution normalizes a human resolution string ("d", "w", "5",
// "101", ...) to its canonical code. Unknown or underivable codes are
// rejected before any I/O happens.
func ParseResolution(s string) (Resolution, error) {
	if r, ok := resolutionAliases[s]; ok {
		return r, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("unknown resolution %q", s)
	}
	r := Resolution(n)
	if !r.IsValid() {
		return 0, fmt.Errorf("unsupported resolution code %d", n)
	}
	return r, nil
}
