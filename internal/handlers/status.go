package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/diagramhub/internal/connection"
	"github.com/charlesng35/diagramhub/internal/manager"
	"github.com/charlesng35/diagramhub/internal/monitoring"
	appErrors "github.com/charlesng35/diagramhub/pkg/errors"
	"github.com/charlesng35/diagramhub/pkg/logger"
	"github.com/charlesng35/diagramhub/pkg/response"
)

// StatusHandler exposes the connection status of the persistence layer.
type StatusHandler struct {
	db              *manager.DatabaseManager
	module          *monitoring.Module
	metricsEnabled  bool
	metricsEndpoint string
}

// StatusOption customises the StatusHandler.
type StatusOption func(*StatusHandler)

// WithMetricsEndpoint advertises the Prometheus endpoint in status payloads.
func WithMetricsEndpoint(enabled bool, endpoint string) StatusOption {
	return func(h *StatusHandler) {
		h.metricsEnabled = enabled
		if endpoint = strings.TrimSpace(endpoint); endpoint != "" {
			h.metricsEndpoint = endpoint
		}
	}
}

// NewStatusHandler constructs a status handler. Returns nil without a manager.
func NewStatusHandler(db *manager.DatabaseManager, module *monitoring.Module, opts ...StatusOption) *StatusHandler {
	if db == nil {
		return nil
	}
	h := &StatusHandler{db: db, module: module, metricsEndpoint: "/metrics"}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

type modeRequest struct {
	Mode string `json:"mode" validate:"required,oneof=local database"`
}

// Status returns the current mode, last probe and fallback counters together
// with maintenance job statistics.
func (h *StatusHandler) Status(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"connection":  h.db.Status(),
		"maintenance": h.module.Summary().Maintenance,
		"prometheus": gin.H{
			"enabled":  h.metricsEnabled,
			"endpoint": h.metricsEndpoint,
		},
	})
}

// Probe runs a connection test against the remote backend. The probe outcome
// is reported in the payload; the request itself always succeeds.
func (h *StatusHandler) Probe(c *gin.Context) {
	probe := h.db.TestConnection(requestContext(c))
	response.Success(c, http.StatusOK, probe)
}

// SetMode switches between database and local mode and persists the choice.
func (h *StatusHandler) SetMode(c *gin.Context) {
	var req modeRequest
	if !bindAndValidate(c, &req) {
		return
	}

	ctx := requestContext(c)
	conn := h.db.Connection()
	payload := gin.H{}
	switch connection.Mode(req.Mode) {
	case connection.ModeLocal:
		if err := conn.EnableLocalMode(ctx); err != nil {
			logger.WithModule("status").Warn("enable local mode failed", zap.Error(err))
			response.Error(c, appErrors.Wrap(err, "failed to persist mode preference"))
			return
		}
	default:
		probe, err := conn.EnableDatabaseMode(ctx)
		if err != nil {
			logger.WithModule("status").Warn("enable database mode failed", zap.Error(err))
			response.Error(c, appErrors.Wrap(err, "failed to persist mode preference"))
			return
		}
		payload["probe"] = probe
	}

	payload["mode"] = conn.ResolveMode()
	response.Success(c, http.StatusOK, payload)
}
