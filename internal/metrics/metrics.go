package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_http_requests_total",
			Help: "Total HTTP requests by method, route and status.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_http_request_duration_seconds",
			Help:    "HTTP request latency.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	ReadinessWaitSeconds = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "ledger_readiness_wait_seconds",
			Help:    "Time spent waiting for a storage handle.",
			Buckets: []float64{0.001, 0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 15},
		},
	)

	ReadinessOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_readiness_outcomes_total",
			Help: "Readiness gate results: fast, waited, failed, timeout, canceled.",
		},
		[]string{"outcome"},
	)

	ReconcileOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_reconcile_operations_total",
			Help: "Reconciliation operations by name and result.",
		},
		[]string{"operation", "result"},
	)

	DriftRepairs = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ledger_payment_drift_repairs_total",
			Help: "Orders whose received total was repaired from the payment ledger.",
		},
	)

	CacheRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_asset_cache_requests_total",
			Help: "Asset cache lookups by result (hit, miss, bypass).",
		},
		[]string{"result"},
	)

	StorageStatus = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "ledger_storage_status",
			Help: "Storage provider status: 0 not ready, 1 ready, 2 failed.",
		},
	)
)
