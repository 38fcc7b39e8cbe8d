package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"kline-archive/internal/adjust"
	"kline-archive/internal/domain"
	"kline-archive/internal/export"
	"kline-archive/internal/observability"
	"kline-archive/internal/reader"
	"kline-archive/internal/store"
	"kline-archive/internal/store/dataset"
	"kline-archive/internal/store/migrations"
	pgstore "kline-archive/internal/store/postgres"
)

func main() {
	dataDir := flag.String("data-dir", "data", "Bulk dataset root directory")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (corporate actions)")
	instrument := flag.String("instrument", "", "Instrument identifier, e.g. sh600000")
	resolution := flag.String("resolution", "d", "Bar resolution (native or derived)")
	n := flag.Int("n", 20, "Number of most recent bars (<= 0 for all)")
	adjustMode := flag.String("adjust", "none", "Price adjustment: none, forward or backward")
	exportFormat := flag.String("export", "", "Export snapshot instead of printing: parquet, csv or json")
	exportDir := flag.String("export-dir", ".", "Directory for exported snapshots")
	timeout := flag.Duration("timeout", time.Minute, "Overall run timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[barread] ", log.LstdFlags)

	if *instrument == "" {
		logger.Fatal("missing -instrument")
	}
	res, err := domain.ParseResolution(*resolution)
	if err != nil {
		logger.Fatal(err)
	}
	mode, err := adjust.ParseMode(*adjustMode)
	if err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var actions store.ActionStore
	if *postgresDSN != "" {
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Connect postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("Postgres migrations: %v", err)
		}
		actions = pgstore.NewActionStore(pool)
	} else if mode != adjust.None {
		logger.Fatal("adjusted reads need -postgres-dsn for corporate actions")
	}

	bulk := dataset.New(*dataDir, logger)
	r := reader.New(bulk, actions, nil, reader.Options{Logger: logger})

	bars, err := r.Read(ctx, *instrument, res, *n, mode)
	if err != nil {
		logger.Fatalf("Read %s/%s: %v", *instrument, res, err)
	}
	observability.RecordRead("file", len(bars))
	if len(bars) == 0 {
		logger.Printf("No bars for %s/%s", *instrument, res)
		return
	}

	if *exportFormat != "" {
		saver := export.NewSaver(*exportFormat)
		if saver == nil {
			logger.Fatalf("Unknown export format %q", *exportFormat)
		}
		path := export.SnapshotPath(*exportDir, *instrument, res, saver.Extension(), time.Now())
		if err := saver.Save(export.Records(bars, res), path); err != nil {
			logger.Fatalf("Export snapshot: %v", err)
		}
		logger.Printf("Exported %d bars to %s", len(bars), path)
		return
	}

	printBars(bars, res)
}

func printBars(bars []domain.Bar, res domain.Resolution) {
	layout := "2006-01-02"
	if res.IsIntraday() {
		layout = "2006-01-02 15:04:05"
	}
	fmt.Printf("%-19s %10s %10s %10s %10s %12s %14s\n", "time", "open", "high", "low", "close", "volume", "amount")
	for _, b := range bars {
		fmt.Printf("%-19s %10.4f %10.4f %10.4f %10.4f %12d %14d\n",
			b.Time.UTC().Format(layout), b.Open, b.High, b.Low, b.Close, b.Volume, b.Amount)
	}
}
