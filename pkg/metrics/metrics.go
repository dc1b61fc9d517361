package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Store metrics
	StoresTotal = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "burrow_stores_total",
			Help: "Total number of open logical stores",
		},
	)

	MemoriesTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_memories_total",
			Help: "Live memories per store",
		},
		[]string{"store"},
	)

	RelationshipsTotal = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "burrow_relationships_total",
			Help: "Live relationships per store",
		},
		[]string{"store"},
	)

	// WAL metrics
	WALAppendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_wal_appends_total",
			Help: "WAL records appended per store and record kind",
		},
		[]string{"store", "kind"},
	)

	WALAppendErrors = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_wal_append_errors_total",
			Help: "WAL appends aborted by write or sync failure",
		},
		[]string{"store"},
	)

	SegmentsSealed = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_segments_sealed_total",
			Help: "WAL tails sealed into immutable segments",
		},
		[]string{"store"},
	)

	// Query metrics
	SearchDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "burrow_search_duration_seconds",
			Help:    "Search execution time by mode",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"mode"},
	)

	ForksTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_forks_created_total",
			Help: "Forks created including point-in-time recoveries",
		},
	)

	SnapshotsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "burrow_snapshots_created_total",
			Help: "Snapshots captured",
		},
	)

	IntegrityChecks = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "burrow_integrity_checks_total",
			Help: "Integrity verifications by outcome",
		},
		[]string{"outcome"},
	)
)

// Register registers all metrics with the default registry
func Register() {
	prometheus.MustRegister(
		StoresTotal,
		MemoriesTotal,
		RelationshipsTotal,
		WALAppendsTotal,
		WALAppendErrors,
		SegmentsSealed,
		SearchDuration,
		ForksTotal,
		SnapshotsTotal,
		IntegrityChecks,
	)
}

// Handler returns the HTTP handler for the /metrics endpoint
func Handler() http.Handler {
	return promhttp.Handler()
}
