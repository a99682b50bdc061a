package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/diagramhub/internal/app"
	"github.com/charlesng35/diagramhub/internal/handlers"
	"github.com/charlesng35/diagramhub/internal/monitoring"
)

func registerHealthRoutes(r *gin.Engine, cfg *app.Config, mon *monitoring.Module) {
	handler := handlers.NewHealthHandler(mon.Health())
	if !cfg.Monitoring.Health.Enabled || handler == nil {
		r.GET("/health/live", handlers.HealthDisabled)
		r.GET("/health/ready", handlers.HealthDisabled)
		return
	}

	r.GET("/health/live", handler.Live)
	r.GET("/health/ready", handler.Ready)
}
