package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/diagramhub/internal/monitoring"
)

// HealthHandler serves liveness and readiness reports.
type HealthHandler struct {
	health *monitoring.HealthManager
	now    func() time.Time
}

// NewHealthHandler returns nil when no health manager is available.
func NewHealthHandler(health *monitoring.HealthManager) *HealthHandler {
	if health == nil {
		return nil
	}
	return &HealthHandler{health: health, now: time.Now}
}

// Live reports whether the process is able to serve requests.
func (h *HealthHandler) Live(c *gin.Context) {
	h.write(c, h.health.EvaluateLiveness(requestContext(c)))
}

// Ready reports whether both stores can serve calls.
func (h *HealthHandler) Ready(c *gin.Context) {
	h.write(c, h.health.EvaluateReadiness(requestContext(c)))
}

func (h *HealthHandler) write(c *gin.Context, report monitoring.HealthReport) {
	status := http.StatusOK
	if !report.Success {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"success":    report.Success,
		"status":     report.Status,
		"checks":     report.Checks,
		"checked_at": h.now().UTC(),
	})
}

// HealthDisabled answers health routes when health checks are switched off.
func HealthDisabled(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{
		"success": false,
		"status":  "disabled",
	})
}
