package export

import (
	"github.com/parquet-go/parquet-go"
)

// ParquetSaver writes snapshots as Parquet.
type ParquetSaver struct{}

func (ParquetSaver) Extension() string { return "parquet" }

func (ParquetSaver) Save(records []Record, path string) error {
	return parquet.WriteFile(path, records)
}
