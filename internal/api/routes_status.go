package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/diagramhub/internal/handlers"
)

func registerStatusRoutes(api *gin.RouterGroup, handler *handlers.StatusHandler) {
	if api == nil || handler == nil {
		return
	}

	group := api.Group("/status")
	group.GET("", handler.Status)
	group.POST("/probe", handler.Probe)
	group.PUT("/mode", handler.SetMode)
}
