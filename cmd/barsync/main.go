package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"kline-archive/internal/domain"
	"kline-archive/internal/observability"
	"kline-archive/internal/store"
	chstore "kline-archive/internal/store/clickhouse"
	"kline-archive/internal/store/dataset"
	"kline-archive/internal/store/migrations"
	pgstore "kline-archive/internal/store/postgres"
	"kline-archive/internal/syncer"
)

func main() {
	dataDir := flag.String("data-dir", "data", "Bulk dataset root directory")
	postgresDSN := flag.String("postgres-dsn", "", "PostgreSQL connection string (row backend)")
	clickhouseDSN := flag.String("clickhouse-dsn", "", "ClickHouse DSN; when set it replaces the file store as bulk backend")
	direction := flag.String("direction", "row-to-bulk", "Sync direction: bulk-to-row or row-to-bulk")
	instruments := flag.String("instruments", "", "Comma-separated instrument identifiers")
	resolutions := flag.String("resolutions", "1,5,15,d", "Comma-separated resolutions to sync")
	seedCount := flag.Int("seed-count", 2000, "Rows used to seed an empty row backend (bulk-to-row)")
	retainDays := flag.Int("retain-days", 10, "Calendar days retained in the row backend after merge")
	timeout := flag.Duration("timeout", 30*time.Minute, "Overall run timeout")
	metricsAddr := flag.String("metrics-addr", "", "Prometheus metrics HTTP address (empty to disable)")

	flag.Parse()

	logger := log.New(os.Stdout, "[barsync] ", log.LstdFlags|log.Lshortfile)

	if *postgresDSN == "" {
		logger.Fatal("missing -postgres-dsn")
	}
	if *instruments == "" {
		logger.Fatal("missing -instruments")
	}

	dir, err := syncer.ParseDirection(*direction)
	if err != nil {
		logger.Fatal(err)
	}
	kinds, err := parseResolutions(*resolutions)
	if err != nil {
		logger.Fatal(err)
	}

	if *metricsAddr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", observability.Handler())
			mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
				w.Write([]byte("ok"))
			})
			logger.Printf("Starting metrics server on %s", *metricsAddr)
			if err := http.ListenAndServe(*metricsAddr, mux); err != nil && err != http.ErrServerClosed {
				logger.Printf("Metrics server error: %v", err)
			}
		}()
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Printf("Received %v, aborting run", sig)
		cancel()
	}()

	pool, err := pgstore.NewPool(ctx, *postgresDSN)
	if err != nil {
		logger.Fatalf("Connect postgres: %v", err)
	}
	defer pool.Close()
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		logger.Fatalf("Postgres migrations: %v", err)
	}
	row := pgstore.NewBarStore(pool)

	var bulk store.BarStore
	if *clickhouseDSN != "" {
		conn, err := chstore.Open(ctx, *clickhouseDSN)
		if err != nil {
			logger.Fatalf("Connect clickhouse: %v", err)
		}
		defer conn.Close()
		if err := migrations.RunClickhouseMigrations(ctx, conn); err != nil {
			logger.Fatalf("ClickHouse migrations: %v", err)
		}
		bulk = chstore.NewBarStore(conn)
		logger.Printf("Bulk backend: clickhouse")
	} else {
		bulk = dataset.New(*dataDir, logger)
		logger.Printf("Bulk backend: file store at %s", *dataDir)
	}

	limits := make(map[domain.Resolution]syncer.Limits, len(kinds))
	for _, res := range kinds {
		limits[res] = syncer.Limits{SeedCount: *seedCount, RetainDays: *retainDays}
	}

	manager := syncer.New(bulk, row, logger)

	failed := false
	for _, instrument := range strings.Split(*instruments, ",") {
		instrument = strings.TrimSpace(instrument)
		if instrument == "" {
			continue
		}
		if err := manager.Sync(ctx, instrument, dir, kinds, limits); err != nil {
			logger.Printf("Sync %s failed: %v", instrument, err)
			failed = true
		}
	}

	if failed {
		os.Exit(1)
	}
	logger.Printf("Sync complete")
}

func parseResolutions(s string) ([]domain.Resolution, error) {
	var kinds []domain.Resolution
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		res, err := domain.ParseResolution(part)
		if err != nil {
			return nil, err
		}
		kinds = append(kinds, res)
	}
	return kinds, nil
}
