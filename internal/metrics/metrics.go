// Package metrics holds the prometheus collectors for reconciliation and sync
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ResourceEmissions counts values emitted by reconciliation streams
	ResourceEmissions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrinest_resource_emissions_total",
			Help: "Total number of resource values emitted by reconciliation streams",
		},
		[]string{"resource", "state"},
	)

	// FetchFailures counts failed remote fetches by error kind
	FetchFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrinest_fetch_failures_total",
			Help: "Total number of failed remote fetches",
		},
		[]string{"resource", "kind"},
	)

	// SyncRuns counts finished sync runs by outcome
	SyncRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "nutrinest_sync_runs_total",
			Help: "Total number of sync runs by outcome",
		},
		[]string{"outcome"},
	)

	// SyncAttempts counts push attempts, including retries
	SyncAttempts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nutrinest_sync_attempts_total",
			Help: "Total number of push attempts",
		},
	)

	// RecordsPushed counts records acknowledged by the server
	RecordsPushed = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "nutrinest_records_pushed_total",
			Help: "Total number of records acknowledged after a push",
		},
	)

	// SyncRunDuration tracks how long sync runs take, including backoff waits
	SyncRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "nutrinest_sync_run_duration_seconds",
			Help:    "Sync run duration in seconds",
			Buckets: []float64{0.1, 0.5, 1, 5, 30, 60, 120, 300, 600},
		},
	)

	// PendingRecords tracks the number of records waiting to be pushed
	PendingRecords = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "nutrinest_pending_records",
			Help: "Number of local records waiting to be pushed",
		},
	)
)
