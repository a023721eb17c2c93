// Package observability provides Prometheus metrics for monitoring.
package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	// Backend sync metrics
	SyncRunsTotal      *prometheus.CounterVec
	SyncDuration       prometheus.Histogram
	RecordsSynced      prometheus.Gauge
	MalformedRecords   prometheus.Counter
	LastSuccessfulSync prometheus.Gauge

	// Eligibility metrics
	EligibilityEvaluations prometheus.Counter
	PendingUsers           prometheus.Gauge
	UntriggeredUsers       prometheus.Gauge
	PotentialCommission    prometheus.Gauge
	SnapshotsPersisted     prometheus.Counter

	// Vault metrics
	VaultCallsTotal   *prometheus.CounterVec
	VaultCallLatency  *prometheus.HistogramVec
	VaultRejections   *prometheus.CounterVec
	PayoutsExecuted   *prometheus.CounterVec
	PayoutAmountTotal *prometheus.CounterVec
	VaultBalance      prometheus.Gauge

	// Stream metrics
	StreamEventsReceived *prometheus.CounterVec
	StreamReconnects     prometheus.Counter

	// Database metrics
	DBQueryDuration *prometheus.HistogramVec
	DBQueryErrors   *prometheus.CounterVec

	// Health metrics
	UptimeSeconds prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all metrics registered.
func NewMetrics(namespace string) *Metrics {
	if namespace == "" {
		namespace = "affiliate_vault"
	}

	return &Metrics{
		// Backend sync metrics
		SyncRunsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "sync_runs_total",
			Help:      "Total number of backend sync runs by status",
		}, []string{"status"}),
		SyncDuration: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "sync_duration_seconds",
			Help:      "Backend sync duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}),
		RecordsSynced: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "records_synced",
			Help:      "Number of user records in the last synced snapshot",
		}),
		MalformedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "malformed_records_total",
			Help:      "Total number of records with coerced malformed numerics",
		}),
		LastSuccessfulSync: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "backend",
			Name:      "last_successful_sync_timestamp",
			Help:      "Unix timestamp of last successful backend sync",
		}),

		// Eligibility metrics
		EligibilityEvaluations: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "evaluations_total",
			Help:      "Total number of eligibility engine evaluations",
		}),
		PendingUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "pending_users",
			Help:      "Number of users short of thresholds in the last evaluation",
		}),
		UntriggeredUsers: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "untriggered_users",
			Help:      "Number of untriggered deposit users in the last evaluation",
		}),
		PotentialCommission: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "potential_commission",
			Help:      "Potential commission from valid triggers in the last evaluation",
		}),
		SnapshotsPersisted: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "eligibility",
			Name:      "snapshots_persisted_total",
			Help:      "Total number of eligibility snapshots persisted",
		}),

		// Vault metrics
		VaultCallsTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "calls_total",
			Help:      "Total number of vault gateway calls by method and status",
		}, []string{"method", "status"}),
		VaultCallLatency: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "call_latency_seconds",
			Help:      "Vault gateway call latency in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method"}),
		VaultRejections: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "rejections_total",
			Help:      "Total number of vault rejections by error kind",
		}, []string{"kind"}),
		PayoutsExecuted: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "payouts_executed_total",
			Help:      "Total number of executed transactions by kind",
		}, []string{"kind"}),
		PayoutAmountTotal: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "payout_amount_total",
			Help:      "Total executed amount by kind",
		}, []string{"kind"}),
		VaultBalance: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "vault",
			Name:      "balance",
			Help:      "Last observed vault balance",
		}),

		// Stream metrics
		StreamEventsReceived: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "events_received_total",
			Help:      "Total number of vault stream events by type",
		}, []string{"type"}),
		StreamReconnects: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "stream",
			Name:      "reconnects_total",
			Help:      "Total number of vault stream reconnects",
		}),

		// Database metrics
		DBQueryDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"database", "operation"}),
		DBQueryErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "database",
			Name:      "query_errors_total",
			Help:      "Total number of database query errors",
		}, []string{"database", "operation"}),

		// Health metrics
		UptimeSeconds: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "health",
			Name:      "uptime_seconds_total",
			Help:      "Total uptime in seconds",
		}),
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// DefaultMetrics is the default metrics instance.
var DefaultMetrics = NewMetrics("")

// RecordSyncRun records a backend sync run.
func RecordSyncRun(status string, durationSeconds float64) {
	DefaultMetrics.SyncRunsTotal.WithLabelValues(status).Inc()
	DefaultMetrics.SyncDuration.Observe(durationSeconds)
}

// RecordEvaluation updates the eligibility gauges after an engine run.
func RecordEvaluation(pending, untriggered int, potentialCommission float64) {
	DefaultMetrics.EligibilityEvaluations.Inc()
	DefaultMetrics.PendingUsers.Set(float64(pending))
	DefaultMetrics.UntriggeredUsers.Set(float64(untriggered))
	DefaultMetrics.PotentialCommission.Set(potentialCommission)
}

// RecordVaultCall records a vault gateway call.
func RecordVaultCall(method, status string, seconds float64) {
	DefaultMetrics.VaultCallsTotal.WithLabelValues(method, status).Inc()
	DefaultMetrics.VaultCallLatency.WithLabelValues(method).Observe(seconds)
}

// RecordVaultRejection records a typed vault rejection.
func RecordVaultRejection(kind string) {
	DefaultMetrics.VaultRejections.WithLabelValues(kind).Inc()
}

// RecordExecution records an executed transaction.
func RecordExecution(kind string, amount, newBalance float64) {
	DefaultMetrics.PayoutsExecuted.WithLabelValues(kind).Inc()
	DefaultMetrics.PayoutAmountTotal.WithLabelValues(kind).Add(amount)
	DefaultMetrics.VaultBalance.Set(newBalance)
}

// RecordStreamEvent records a received vault stream event.
func RecordStreamEvent(eventType string) {
	DefaultMetrics.StreamEventsReceived.WithLabelValues(eventType).Inc()
}

// RecordDBQuery records database query metrics.
func RecordDBQuery(database, operation string, seconds float64, err error) {
	DefaultMetrics.DBQueryDuration.WithLabelValues(database, operation).Observe(seconds)
	if err != nil {
		DefaultMetrics.DBQueryErrors.WithLabelValues(database, operation).Inc()
	}
}
