package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Fallbacks counts remote operations that were re-executed against the local store.
	Fallbacks = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagramhub_fallbacks_total",
			Help: "Total number of operations served by the local store after a remote failure",
		},
		[]string{"operation"},
	)

	// OperationLatency measures store calls by operation, path (remote|local) and result (ok|error).
	OperationLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diagramhub_operation_latency_seconds",
			Help:    "Persistence operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation", "path", "result"},
	)

	// ConflictRetries counts diagram updates retried after a write conflict, by outcome.
	ConflictRetries = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagramhub_conflict_retries_total",
			Help: "Total number of conflict retries on diagram updates",
		},
		[]string{"result"},
	)

	// Batches counts ExecuteBatch invocations by path (remote|local).
	Batches = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagramhub_batches_total",
			Help: "Total number of batched writes",
		},
		[]string{"path"},
	)

	// RemoteConnected is 1 while the last connection probe succeeded.
	RemoteConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "diagramhub_remote_connected",
			Help: "Whether the last remote probe succeeded",
		},
	)

	// MaintenanceRuns counts background job executions by job and result.
	MaintenanceRuns = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "diagramhub_maintenance_runs_total",
			Help: "Total number of maintenance job runs",
		},
		[]string{"job", "result"},
	)

	// APILatency measures status endpoint latencies.
	APILatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "diagramhub_api_latency_seconds",
			Help:    "API endpoint latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
