package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Prometheus metrics for the sync worker and rating engine

var (
	// API Call metrics
	APICallsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassandra_api_calls_total",
			Help: "Total number of TBA API calls",
		},
		[]string{"endpoint", "status"},
	)

	APICallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cassandra_api_call_duration_seconds",
			Help:    "Duration of API calls in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	// Sync decisions per event
	EventFetchDecisions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassandra_event_fetch_decisions_total",
			Help: "Per-event sync outcomes (skipped, not_modified, updated, empty, failed)",
		},
		[]string{"outcome"},
	)

	MalformedMatchesDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "cassandra_malformed_matches_dropped_total",
			Help: "Fetched matches dropped for missing structural fields",
		},
	)

	// Storage metrics
	StoreOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassandra_store_operations_total",
			Help: "Total number of year store operations",
		},
		[]string{"backend", "operation", "status"},
	)

	StoreOperationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "cassandra_store_operation_duration_seconds",
			Help:    "Duration of year store operations in seconds",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"backend", "operation"},
	)

	// Sync metrics
	SyncOperationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassandra_sync_operations_total",
			Help: "Total number of year sync passes",
		},
		[]string{"status"},
	)

	SyncDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cassandra_sync_duration_seconds",
			Help:    "Duration of year sync passes in seconds",
			Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
		},
	)

	MatchesCached = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cassandra_matches_cached",
			Help: "Number of cached matches per year",
		},
		[]string{"year"},
	)

	LastSuccessfulSync = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cassandra_last_successful_sync_timestamp",
			Help: "Timestamp of last successful sync operation",
		},
	)

	// Rating engine metrics
	RatingUpdatesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassandra_rating_updates_total",
			Help: "Rating updates by result (applied, duplicate, rejected)",
		},
		[]string{"result"},
	)

	TeamsRated = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cassandra_teams_rated",
			Help: "Number of teams with a skill belief",
		},
	)

	BrierScore = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "cassandra_brier_score",
			Help: "Brier score of the last evaluation run per year",
		},
		[]string{"year"},
	)

	// Error metrics
	ErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cassandra_errors_total",
			Help: "Total number of errors",
		},
		[]string{"component", "error_type"},
	)

	// System metrics
	SystemUptime = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "cassandra_system_uptime_seconds",
			Help: "System uptime in seconds",
		},
	)
)

// RecordAPICall records an API call metric
func RecordAPICall(endpoint, status string, duration float64) {
	APICallsTotal.WithLabelValues(endpoint, status).Inc()
	APICallDuration.WithLabelValues(endpoint).Observe(duration)
}

// RecordFetchDecision records what a sync pass did with one event
func RecordFetchDecision(outcome string) {
	EventFetchDecisions.WithLabelValues(outcome).Inc()
}

// RecordStoreOperation records a year store load or save
func RecordStoreOperation(backend, operation, status string, duration float64) {
	StoreOperationsTotal.WithLabelValues(backend, operation, status).Inc()
	StoreOperationDuration.WithLabelValues(backend, operation).Observe(duration)
}

// RecordSync records a sync operation
func RecordSync(status string, duration float64) {
	SyncOperationsTotal.WithLabelValues(status).Inc()
	SyncDuration.Observe(duration)

	if status == "success" {
		LastSuccessfulSync.SetToCurrentTime()
	}
}

// RecordRatingUpdate records the result of one engine update
func RecordRatingUpdate(result string, teams int) {
	RatingUpdatesTotal.WithLabelValues(result).Inc()
	TeamsRated.Set(float64(teams))
}

// RecordError records an error
func RecordError(component, errorType string) {
	ErrorsTotal.WithLabelValues(component, errorType).Inc()
}
