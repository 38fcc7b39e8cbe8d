// Package ingest parses raw bar and corporate-action batches from CSV
// files produced by the external fetchers.
package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"kline-archive/internal/domain"
)

// Bar CSV column order. The change columns are optional; a shorter row is
// zero-filled from change_px on.
var barHeader = []string{"time", "open", "high", "low", "close", "volume", "amount", "change_px", "change", "amplitude", "turnover"}

const (
	timeLayout = "2006-01-02 15:04:05"
	dateLayout = "2006-01-02"
)

// ParseBars reads a bar batch. Rows must be ascending by time; the first
// row may be a header, detected by its time column.
func ParseBars(r io.Reader) ([]domain.Bar, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var bars []domain.Bar
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read bar csv: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "time") {
			continue
		}
		b, err := parseBarRow(row)
		if err != nil {
			return nil, fmt.Errorf("bar csv line %d: %w", line, err)
		}
		bars = append(bars, b)
	}
	if !domain.BarsAscending(bars) {
		return nil, fmt.Errorf("bar csv rows are not ascending by time")
	}
	return bars, nil
}

func parseBarRow(row []string) (domain.Bar, error) {
	if len(row) < 7 {
		return domain.Bar{}, fmt.Errorf("expected at least 7 columns, got %d", len(row))
	}

	t, err := ParseTime(row[0])
	if err != nil {
		return domain.Bar{}, err
	}

	fields := make([]float64, len(barHeader)-1)
	for i := 1; i < len(barHeader) && i < len(row); i++ {
		v := strings.TrimSpace(row[i])
		if v == "" {
			continue
		}
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("column %s: %w", barHeader[i], err)
		}
		fields[i-1] = f
	}

	return domain.Bar{
		Time:      t,
		Open:      fields[0],
		High:      fields[1],
		Low:       fields[2],
		Close:     fields[3],
		Volume:    int64(fields[4]),
		Amount:    int64(fields[5]),
		ChangePx:  fields[6],
		Change:    fields[7],
		Amplitude: fields[8],
		Turnover:  fields[9],
	}, nil
}

// ParseActions reads a corporate-action batch with columns
// ex_date,bonus_ratio,cash_dividend for one instrument.
func ParseActions(r io.Reader, instrument string) ([]domain.CorporateAction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1

	var actions []domain.CorporateAction
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read action csv: %w", err)
		}
		line++
		if line == 1 && strings.EqualFold(strings.TrimSpace(row[0]), "ex_date") {
			continue
		}
		if len(row) < 3 {
			return nil, fmt.Errorf("action csv line %d: expected 3 columns, got %d", line, len(row))
		}

		exDate, err := time.Parse(dateLayout, strings.TrimSpace(row[0]))
		if err != nil {
			return nil, fmt.Errorf("action csv line %d: %w", line, err)
		}
		r10, err := strconv.ParseFloat(strings.TrimSpace(row[1]), 64)
		if err != nil {
			return nil, fmt.Errorf("action csv line %d: bonus_ratio: %w", line, err)
		}
		div, err := strconv.ParseFloat(strings.TrimSpace(row[2]), 64)
		if err != nil {
			return nil, fmt.Errorf("action csv line %d: cash_dividend: %w", line, err)
		}

		actions = append(actions, domain.CorporateAction{
			Instrument:   instrument,
			ExDate:       exDate.UTC(),
			BonusRatio:   r10,
			CashDividend: div,
		})
	}
	domain.SortActions(actions)
	return actions, nil
}

// ParseTime accepts both the date-time and the date-only calendar forms.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(timeLayout, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("unrecognized time %q", s)
	}
	return t.UTC(), nil
}
