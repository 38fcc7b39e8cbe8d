package export

import (
	"encoding/csv"
	"os"
	"strconv"
)

// CSVSaver writes snapshots as CSV.
type CSVSaver struct{}

func (CSVSaver) Extension() string { return "csv" }

func (CSVSaver) Save(records []Record, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"time", "open", "high", "low", "close", "volume", "amount", "change_px", "change", "amplitude", "turnover"}
	if err := w.Write(header); err != nil {
		return err
	}
	for _, r := range records {
		row := []string{
			r.Time,
			floatStr(r.Open),
			floatStr(r.High),
			floatStr(r.Low),
			floatStr(r.Close),
			strconv.FormatInt(r.Volume, 10),
			strconv.FormatInt(r.Amount, 10),
			floatStr(r.ChangePx),
			floatStr(r.Change),
			floatStr(r.Amplitude),
			floatStr(r.Turnover),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	return nil
}

func floatStr(f float64) string { return strconv.FormatFloat(f, 'f', -1, 64) }
