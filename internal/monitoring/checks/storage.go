package checks

import (
	"context"
	"time"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/monitoring"
)

const defaultLocalTimeout = 2 * time.Second

// Pinger is satisfied by the local store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Remote probes the remote backend through the connection manager. A failed
// probe only degrades the service, since every operation falls back to the
// local store.
func Remote(conn *connection.Manager) monitoring.Check {
	return monitoring.NewCheck("remote", func(ctx context.Context) monitoring.ProbeResult {
		if conn == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "connection manager not configured"}
		}
		if conn.ResolveMode() == connection.ModeLocal {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Details: "local mode"}
		}

		probe := conn.TestConnection(ctx)
		if probe.Connected {
			return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: probe.Latency}
		}
		details := string(probe.State)
		if probe.Error != "" {
			details += ": " + probe.Error
		}
		return monitoring.ProbeResult{
			Status:   monitoring.StatusDegraded,
			Details:  details,
			Duration: probe.Latency,
		}
	})
}

// Local verifies the local store answers. Without it there is nothing left
// to fall back to.
func Local(store Pinger, timeout time.Duration) monitoring.Check {
	if timeout <= 0 {
		timeout = defaultLocalTimeout
	}
	return monitoring.NewCheck("local", func(ctx context.Context) monitoring.ProbeResult {
		start := time.Now()
		if store == nil {
			return monitoring.ProbeResult{Status: monitoring.StatusDown, Details: "local store not configured"}
		}

		probeCtx, cancel := context.WithTimeout(ctx, timeout)
		defer cancel()

		if err := store.Ping(probeCtx); err != nil {
			return monitoring.ProbeResult{
				Status:   monitoring.StatusDown,
				Details:  err.Error(),
				Duration: time.Since(start),
			}
		}
		return monitoring.ProbeResult{Status: monitoring.StatusUp, Duration: time.Since(start)}
	})
}
