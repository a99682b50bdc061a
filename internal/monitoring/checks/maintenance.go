package checks

import (
	"context"
	"strings"
	"time"

	"github.com/charlesng35/diagramhub/internal/monitoring"
)

const defaultMaintenanceMaxAge = 6 * time.Hour

// Maintenance verifies that background jobs run successfully within the
// expected interval. A job degrades the report on its first failures and
// takes it down once more than failureTolerance runs in a row have failed.
// When maxAge is zero the default window (6h) is used.
func Maintenance(maxAge time.Duration, failureTolerance int) monitoring.Check {
	if failureTolerance < 0 {
		failureTolerance = 0
	}
	if maxAge <= 0 {
		maxAge = defaultMaintenanceMaxAge
	}

	return monitoring.NewCheck("maintenance", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		summary := monitoring.Snapshot()
		now := time.Now()
		tolerance := uint64(failureTolerance)

		if len(summary.Maintenance.Jobs) == 0 {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusUp,
				Details:  "no maintenance jobs registered",
				Duration: time.Since(start),
			}
		}

		status := monitoring.StatusUp
		var failures []string

		for _, job := range summary.Maintenance.Jobs {
			if job.TotalRuns == 0 {
				failures = append(failures, job.Job+": pending first run")
				continue
			}

			switch {
			case job.ConsecutiveFailures > tolerance:
				status = monitoring.WorstStatus(status, monitoring.StatusDown)
				failures = append(failures, job.Job+": consecutive failures")
			case job.ConsecutiveFailures > 0:
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				failures = append(failures, job.Job+": last run failed: "+job.LastError)
			}

			if maxAge > 0 && !job.LastRunAt.IsZero() && now.Sub(job.LastRunAt) > maxAge {
				status = monitoring.WorstStatus(status, monitoring.StatusDegraded)
				failures = append(failures, job.Job+": stale run "+job.LastRunAt.UTC().Format(time.RFC3339))
			}
		}

		details := strings.Join(failures, "; ")

		return monitoring.ProbeResult{
			Status:   status,
			Details:  details,
			Duration: time.Since(start),
		}
	})
}
