// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the archive.
type Metrics struct {
	// Store metrics
	BarsAppended    *prometheus.CounterVec
	BarsRead        *prometheus.CounterVec
	StoreOpDuration *prometheus.HistogramVec
	StoreOpErrors   *prometheus.CounterVec

	// Sync metrics
	SyncRuns        *prometheus.CounterVec
	SyncRowsCopied  *prometheus.CounterVec
	SyncRowsTrimmed prometheus.Counter
	SyncSkipped     prometheus.Counter
	SyncDuration    *prometheus.HistogramVec

	// Reader metrics
	ReadCacheHits   prometheus.Counter
	ReadCacheMisses prometheus.Counter

	// Health metrics
	LastSuccessfulSync prometheus.Gauge
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "kline_archive"
	}

	return &Metrics{
		// Store metrics
		BarsAppended: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bars_appended_total",
			Help:      "Total number of bar rows written by backend",
		}, []string{"backend"}),
		BarsRead: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "bars_read_total",
			Help:      "Total number of bar rows served to callers by backend",
		}, []string{"backend"}),
		StoreOpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "op_duration_seconds",
			Help:      "Duration of store operations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"backend", "operation"}),
		StoreOpErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "store",
			Name:      "op_errors_total",
			Help:      "Total number of store operation errors",
		}, []string{"backend", "operation"}),

		// Sync metrics
		SyncRuns: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "runs_total",
			Help:      "Total number of sync runs by direction and outcome",
		}, []string{"direction", "outcome"}),
		SyncRowsCopied: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rows_copied_total",
			Help:      "Total number of rows copied between backends by direction",
		}, []string{"direction"}),
		SyncRowsTrimmed: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "rows_trimmed_total",
			Help:      "Total number of row-backend rows removed by retention trimming",
		}),
		SyncSkipped: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "datasets_skipped_total",
			Help:      "Total number of datasets skipped because no new rows were available",
		}),
		SyncDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "sync",
			Name:      "duration_seconds",
			Help:      "Duration of sync runs by direction",
			Buckets:   prometheus.DefBuckets,
		}, []string{"direction"}),

		// Reader metrics
		ReadCacheHits: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "cache_hits_total",
			Help:      "Total number of read cache hits",
		}),
		ReadCacheMisses: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "reader",
			Name:      "cache_misses_total",
			Help:      "Total number of read cache misses",
		}),

		// Health metrics
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful sync run",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordAppend increments the appended-bars counter for a backend.
func RecordAppend(backend string, rows int) {
	DefaultMetrics.BarsAppended.WithLabelValues(backend).Add(float64(rows))
}

// RecordRead increments the read-bars counter for a backend.
func RecordRead(backend string, rows int) {
	DefaultMetrics.BarsRead.WithLabelValues(backend).Add(float64(rows))
}

// RecordStoreOp records a store operation's duration and error state.
func RecordStoreOp(backend, operation string, seconds float64, err error) {
	DefaultMetrics.StoreOpDuration.WithLabelValues(backend, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.StoreOpErrors.WithLabelValues(backend, operation).Inc()
	}
}

// RecordSyncRun records a completed sync run.
func RecordSyncRun(direction, outcome string, seconds float64) {
	DefaultMetrics.SyncRuns.WithLabelValues(direction, outcome).Inc()
	DefaultMetrics.SyncDuration.WithLabelValues(direction).Observe(seconds)
}

// RecordSyncCopied adds copied rows for a direction.
func RecordSyncCopied(direction string, rows int) {
	DefaultMetrics.SyncRowsCopied.WithLabelValues(direction).Add(float64(rows))
}

// RecordSyncTrimmed adds trimmed rows.
func RecordSyncTrimmed(rows int64) {
	DefaultMetrics.SyncRowsTrimmed.Add(float64(rows))
}

// RecordSyncSkipped increments the skipped-datasets counter.
func RecordSyncSkipped() {
	DefaultMetrics.SyncSkipped.Inc()
}

// RecordCacheHit increments the read cache hit counter.
func RecordCacheHit() {
	DefaultMetrics.ReadCacheHits.Inc()
}

// RecordCacheMiss increments the read cache miss counter.
func RecordCacheMiss() {
	DefaultMetrics.ReadCacheMisses.Inc()
}
