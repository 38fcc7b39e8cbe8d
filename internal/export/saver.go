// Package export writes dataset snapshots for analytics tooling. Snapshot
// files are a one-way export: nothing in the archive reads them back.
package export

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"kline-archive/internal/domain"
)

// Record is the flat DTO written to snapshot files.
type Record struct {
	Time      string  `json:"time" parquet:"time"`
	Open      float64 `json:"open" parquet:"open"`
	High      float64 `json:"high" parquet:"high"`
	Low       float64 `json:"low" parquet:"low"`
	Close     float64 `json:"close" parquet:"close"`
	Volume    int64   `json:"volume" parquet:"volume"`
	Amount    int64   `json:"amount" parquet:"amount"`
	ChangePx  float64 `json:"change_px" parquet:"change_px"`
	Change    float64 `json:"change" parquet:"change"`
	Amplitude float64 `json:"amplitude" parquet:"amplitude"`
	Turnover  float64 `json:"turnover" parquet:"turnover"`
}

// Saver writes one snapshot file.
type Saver interface {
	Save(records []Record, path string) error
	Extension() string
}

// NewSaver returns the Saver for a format (parquet, csv, json), or nil for
// an unsupported format.
func NewSaver(format string) Saver {
	switch strings.ToLower(strings.TrimSpace(format)) {
	case "parquet":
		return ParquetSaver{}
	case "csv":
		return CSVSaver{}
	case "json":
		return JSONSaver{}
	default:
		return nil
	}
}

// Records converts bars to the export DTO. Intraday resolutions keep the
// clock component; day-and-longer resolutions keep the date form only.
// Derived sub-day windows still carry real clock times, so the layout keys
// on intraday rather than the storage decode rule.
func Records(bars []domain.Bar, res domain.Resolution) []Record {
	layout := "2006-01-02"
	if res.IsIntraday() {
		layout = "2006-01-02 15:04:05"
	}
	out := make([]Record, len(bars))
	for i, b := range bars {
		out[i] = Record{
			Time:      b.Time.UTC().Format(layout),
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    b.Volume,
			Amount:    b.Amount,
			ChangePx:  b.ChangePx,
			Change:    b.Change,
			Amplitude: b.Amplitude,
			Turnover:  b.Turnover,
		}
	}
	return out
}

// SnapshotPath builds the deterministic snapshot file name for a dataset.
func SnapshotPath(dir, instrument string, res domain.Resolution, ext string, at time.Time) string {
	name := fmt.Sprintf("%s-%d-%s.%s", instrument, int(res), at.UTC().Format("20060102"), ext)
	return filepath.Join(dir, name)
}
