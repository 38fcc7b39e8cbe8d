// Package codec converts bars between their float domain form and the
// compact fixed-point integer representation used by storage backends.
//
// Price fields are scaled by 10^4 and rounded to int64; volume and amount
// are stored verbatim as int64; ratio fields stay float64. Timestamps are
// packed into a single int64 in YYYYMMDDHHMMSS form. All backends store
// the encoded values, so round-trips are bit-exact across backends.
package codec

import (
	"math"
	"time"

	"kline-archive/internal/domain"
)

// PriceScale is the fixed-point scale for price fields.
const PriceScale = 10000

// EncodedBar is the storage representation of a domain.Bar.
type EncodedBar struct {
	Time      int64 // packed YYYYMMDDHHMMSS
	Open      int64 // price * PriceScale
	High      int64
	Low       int64
	Close     int64
	Volume    int64
	Amount    int64
	ChangePx  int64 // price delta * PriceScale
	Change    float64
	Amplitude float64
	Turnover  float64
}

// EncodePrice converts a price to its fixed-point form.
func EncodePrice(p float64) int64 {
	return int64(math.Round(p * PriceScale))
}

// DecodePrice is the exact inverse scaling of EncodePrice.
func DecodePrice(v int64) float64 {
	return float64(v) / PriceScale
}

// RoundPrice rounds a price to the fixed-point storage precision.
func RoundPrice(p float64) float64 {
	return math.Round(p*PriceScale) / PriceScale
}

// EncodeTime packs a timestamp into YYYYMMDDHHMMSS form.
func EncodeTime(t time.Time) int64 {
	t = t.UTC()
	y, mo, d := t.Date()
	h, mi, s := t.Clock()
	return int64(y)*1e10 + int64(mo)*1e8 + int64(d)*1e6 +
		int64(h)*1e4 + int64(mi)*1e2 + int64(s)
}

// DecodeTime unpacks a YYYYMMDDHHMMSS integer. When dateOnly is set the
// clock component is discarded, matching the granularity persisted for
// day-and-longer resolutions.
func DecodeTime(v int64, dateOnly bool) time.Time {
	s := int(v % 100)
	v /= 100
	mi := int(v % 100)
	v /= 100
	h := int(v % 100)
	v /= 100
	d := int(v % 100)
	v /= 100
	mo := time.Month(v % 100)
	v /= 100
	y := int(v)
	if dateOnly {
		h, mi, s = 0, 0, 0
	}
	return time.Date(y, mo, d, h, mi, s, 0, time.UTC)
}

// Encode converts a bar to its fixed-point storage form.
func Encode(b domain.Bar) EncodedBar {
	return EncodedBar{
		Time:      EncodeTime(b.Time),
		Open:      EncodePrice(b.Open),
		High:      EncodePrice(b.High),
		Low:       EncodePrice(b.Low),
		Close:     EncodePrice(b.Close),
		Volume:    b.Volume,
		Amount:    b.Amount,
		ChangePx:  EncodePrice(b.ChangePx),
		Change:    b.Change,
		Amplitude: b.Amplitude,
		Turnover:  b.Turnover,
	}
}

// Decode converts a stored bar back to its domain form. The resolution
// decides whether the timestamp keeps its clock component.
func Decode(e EncodedBar, res domain.Resolution) domain.Bar {
	return domain.Bar{
		Time:      DecodeTime(e.Time, res.DateOnly()),
		Open:      DecodePrice(e.Open),
		High:      DecodePrice(e.High),
		Low:       DecodePrice(e.Low),
		Close:     DecodePrice(e.Close),
		Volume:    e.Volume,
		Amount:    e.Amount,
		ChangePx:  DecodePrice(e.ChangePx),
		Change:    e.Change,
		Amplitude: e.Amplitude,
		Turnover:  e.Turnover,
	}
}

// EncodeAll encodes a slice of bars in order.
func EncodeAll(bars []domain.Bar) []EncodedBar {
	out := make([]EncodedBar, len(bars))
	for i, b := range bars {
		out[i] = Encode(b)
	}
	return out
}

// DecodeAll decodes a slice of stored bars in order.
func DecodeAll(encs []EncodedBar, res domain.Resolution) []domain.Bar {
	out := make([]domain.Bar, len(encs))
	for i, e := range encs {
		out[i] = Decode(e, res)
	}
	return out
}
