package routes

import (
	"github.com/Hari1275/sdp-sub000/internal/api/handlers"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

type MonitoringRoutes struct {
	handler *handlers.MonitoringHandler
}

func NewMonitoringRoutes(handler *handlers.MonitoringHandler) *MonitoringRoutes {
	return &MonitoringRoutes{handler: handler}
}

func (r *MonitoringRoutes) RegisterRoutes(api *gin.RouterGroup) {
	monitoring := api.Group("/monitoring")
	monitoring.GET("/live", gzip.Gzip(gzip.DefaultCompression), r.handler.Live)
	monitoring.GET("/live/ws", r.handler.LiveStream)
}
