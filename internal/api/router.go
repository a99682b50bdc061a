package api

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/diagramhub/internal/app"
	"github.com/charlesng35/diagramhub/internal/handlers"
	"github.com/charlesng35/diagramhub/internal/manager"
	"github.com/charlesng35/diagramhub/internal/middleware"
	"github.com/charlesng35/diagramhub/internal/monitoring"
)

// NewRouter builds the Gin engine, wires middleware and registers the
// operability routes of the persistence layer.
func NewRouter(cfg *app.Config, db *manager.DatabaseManager, mon *monitoring.Module) (*gin.Engine, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config must be provided")
	}
	if db == nil {
		return nil, fmt.Errorf("database manager must be provided")
	}

	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.NoRoute(middleware.NotFoundHandler)

	registerHealthRoutes(r, cfg, mon)

	endpoint := metricsEndpoint(cfg)
	if cfg.Monitoring.Prometheus.Enabled && mon != nil {
		r.GET(endpoint, gin.WrapH(mon.Handler()))
	}

	status := handlers.NewStatusHandler(db, mon,
		handlers.WithMetricsEndpoint(cfg.Monitoring.Prometheus.Enabled, endpoint),
	)
	registerStatusRoutes(r.Group("/api"), status)

	return r, nil
}

func metricsEndpoint(cfg *app.Config) string {
	endpoint := strings.TrimSpace(cfg.Monitoring.Prometheus.Endpoint)
	if endpoint == "" {
		return "/metrics"
	}
	if !strings.HasPrefix(endpoint, "/") {
		endpoint = "/" + endpoint
	}
	return endpoint
}
