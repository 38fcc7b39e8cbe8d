package main

import (
	"context"
	"flag"
	"log"
	"os"
	"time"

	"kline-archive/internal/domain"
	"kline-archive/internal/ingest"
	"kline-archive/internal/observability"
	"kline-archive/internal/store"
	"kline-archive/internal/store/dataset"
	"kline-archive/internal/store/migrations"
	pgstore "kline-archive/internal/store/postgres"
)

func main() {
	dataDir := flag.String("data-dir", "data", "Bulk dataset root directory")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (row backend / actions)")
	instrument := flag.String("instrument", "", "Instrument identifier, e.g. sh600000")
	resolution := flag.String("resolution", "d", "Bar resolution")
	backend := flag.String("backend", "file", "Target backend for bars: file or postgres")
	actions := flag.Bool("actions", false, "Load a corporate-action batch instead of bars")
	timeout := flag.Duration("timeout", 5*time.Minute, "Overall run timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[baringest] ", log.LstdFlags|log.Lshortfile)

	if *instrument == "" {
		logger.Fatal("missing -instrument")
	}
	if flag.NArg() != 1 {
		logger.Fatal("expected exactly one CSV file argument")
	}
	path := flag.Arg(0)

	if err := domain.ValidateInstrument(*instrument); err != nil {
		logger.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	f, err := os.Open(path)
	if err != nil {
		logger.Fatalf("Open %s: %v", path, err)
	}
	defer f.Close()

	if *actions {
		loadActions(ctx, logger, *postgresDSN, *instrument, f)
		return
	}

	res, err := domain.ParseResolution(*resolution)
	if err != nil {
		logger.Fatal(err)
	}

	bars, err := ingest.ParseBars(f)
	if err != nil {
		logger.Fatalf("Parse %s: %v", path, err)
	}
	if len(bars) == 0 {
		logger.Printf("No bars in %s, nothing to do", path)
		return
	}

	var target store.BarStore
	switch *backend {
	case "file":
		target = dataset.New(*dataDir, logger)
	case "postgres":
		if *postgresDSN == "" {
			logger.Fatal("missing -postgres-dsn for postgres backend")
		}
		pool, err := pgstore.NewPool(ctx, *postgresDSN)
		if err != nil {
			logger.Fatalf("Connect postgres: %v", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalf("Postgres migrations: %v", err)
		}
		target = pgstore.NewBarStore(pool)
	default:
		logger.Fatalf("Unknown backend %q", *backend)
	}

	written, err := target.Append(ctx, *instrument, res, bars)
	if err != nil {
		logger.Fatalf("Append %s/%s: %v", *instrument, res, err)
	}
	observability.RecordAppend(*backend, written)
	logger.Printf("Appended %d of %d bars to %s/%s (%s backend)", written, len(bars), *instrument, res, *backend)
}

func loadActions(ctx context.Context, logger *log.Logger, dsn, instrument string, f *os.File) {
	if dsn == "" {
		logger.Fatal("missing -postgres-dsn for action loading")
	}

	batch, err := ingest.ParseActions(f, instrument)
	if err != nil {
		logger.Fatalf("Parse actions: %v", err)
	}
	if len(batch) == 0 {
		logger.Printf("No actions, nothing to do")
		return
	}

	pool, err := pgstore.NewPool(ctx, dsn)
	if err != nil {
		logger.Fatalf("Connect postgres: %v", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Postgres migrations: %v", err)
	}

	if err := pgstore.NewActionStore(pool).Insert(ctx, batch); err != nil {
		logger.Fatalf("Insert actions: %v", err)
	}
	logger.Printf("Loaded %d corporate actions for %s", len(batch), instrument)
}
