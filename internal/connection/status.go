package connection

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/charlesng35/diagramhub/internal/database"
	"github.com/charlesng35/diagramhub/pkg/metrics"
)

// ProbeState classifies the outcome of a connection probe.
type ProbeState string

const (
	ProbeConnected     ProbeState = "connected"
	ProbeSchemaMissing ProbeState = "schema_missing"
	ProbeUnreachable   ProbeState = "unreachable"
	ProbeNotConfigured ProbeState = "not_configured"
	ProbeFailed        ProbeState = "error"
)

// Probe is the result of TestConnection.
type Probe struct {
	Connected bool          `json:"connected"`
	State     ProbeState    `json:"state"`
	Error     string        `json:"error,omitempty"`
	Latency   time.Duration `json:"latency"`
	CheckedAt time.Time     `json:"checked_at"`
}

// Fallback describes the most recent remote failure served locally.
type Fallback struct {
	Operation string    `json:"operation"`
	Error     string    `json:"error"`
	At        time.Time `json:"at"`
}

// Status is the operability snapshot exposed to monitoring.
type Status struct {
	Mode         Mode      `json:"mode"`
	Remote       bool      `json:"remote_configured"`
	LastProbe    *Probe    `json:"last_probe,omitempty"`
	Fallbacks    int64     `json:"fallbacks"`
	LastFallback *Fallback `json:"last_fallback,omitempty"`
}

// TestConnection runs a minimal query against the probe table. It never
// fails: problems are reported through the returned Probe.
func (m *Manager) TestConnection(ctx context.Context) Probe {
	ctx = ensureContext(ctx)
	probe := Probe{CheckedAt: m.now()}

	if m.remote == nil {
		probe.State = ProbeNotConfigured
		probe.Error = "no remote backend configured"
		m.storeProbe(probe)
		return probe
	}

	callCtx, cancel := context.WithTimeout(ctx, m.cfg.CallTimeout)
	defer cancel()

	start := time.Now()
	var ids []string
	err := m.remote.WithContext(callCtx).Table(m.cfg.ProbeTable).Limit(1).Pluck("id", &ids).Error
	probe.Latency = time.Since(start)

	switch {
	case err == nil:
		probe.Connected = true
		probe.State = ProbeConnected
	case database.IsMissingTable(err):
		probe.State = ProbeSchemaMissing
		probe.Error = err.Error()
	case database.IsUnreachable(err):
		probe.State = ProbeUnreachable
		probe.Error = err.Error()
	default:
		probe.State = ProbeFailed
		probe.Error = err.Error()
	}

	m.storeProbe(probe)
	return probe
}

// Status returns the current mode, last probe and fallback counters.
func (m *Manager) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()

	status := Status{
		Mode:      m.ResolveMode(),
		Remote:    m.remote != nil,
		Fallbacks: m.fallbacks.Load(),
	}
	if m.lastProbe != nil {
		probe := *m.lastProbe
		status.LastProbe = &probe
	}
	if m.lastFallback != nil {
		fallback := *m.lastFallback
		status.LastFallback = &fallback
	}
	return status
}

func (m *Manager) storeProbe(probe Probe) {
	m.mu.Lock()
	m.lastProbe = &probe
	m.mu.Unlock()

	if probe.Connected {
		metrics.RemoteConnected.Set(1)
		m.log.Info("remote backend reachable", zap.Duration("latency", probe.Latency))
		return
	}
	metrics.RemoteConnected.Set(0)
	m.log.Warn("remote backend unavailable",
		zap.String("state", string(probe.State)),
		zap.String("error", probe.Error),
	)
}
