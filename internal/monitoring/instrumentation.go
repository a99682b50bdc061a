package monitoring

import (
	"strings"
	"time"

	"github.com/charlesng35/diagramhub/pkg/metrics"
)

// Maintenance run results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// RecordMaintenanceRun captures a background job execution in the Prometheus
// counter and, when a module is installed, in the runtime summary.
func RecordMaintenanceRun(job, result, message string, affected int64, duration time.Duration) {
	job = normalizeLabel(job)
	result = normalizeLabel(result)
	metrics.MaintenanceRuns.WithLabelValues(job, result).Inc()

	module := CurrentModule()
	if module == nil {
		return
	}
	module.stats.maintenanceEntry(job).record(result, strings.TrimSpace(message), affected, duration)
}

func normalizeLabel(value string) string {
	value = strings.TrimSpace(strings.ToLower(value))
	if value == "" {
		return "unknown"
	}
	return value
}
