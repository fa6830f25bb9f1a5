package routes

import (
	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/internal/api/handlers"
	"github.com/Hari1275/sdp-sub000/internal/api/middleware"
	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type TrackingRoutes struct {
	handler *handlers.TrackingHandler
	cache   *middleware.CacheMiddleware
	logger  *zap.Logger
}

func NewTrackingRoutes(handler *handlers.TrackingHandler, cache *middleware.CacheMiddleware, logger *zap.Logger) *TrackingRoutes {
	return &TrackingRoutes{handler: handler, cache: cache, logger: logger}
}

// RegisterRoutes registers session lifecycle and ingestion routes
func (r *TrackingRoutes) RegisterRoutes(api *gin.RouterGroup) {
	tracking := api.Group("/tracking")

	tracking.POST("/check-in",
		middleware.ValidateRequest(&dto.CheckInRequest{}, r.logger),
		r.cache.CacheInvalidate(summaryCacheGroup),
		r.handler.CheckIn)
	tracking.POST("/check-out",
		middleware.ValidateRequest(&dto.CheckOutRequest{}, r.logger),
		r.cache.CacheInvalidate(summaryCacheGroup),
		r.handler.CheckOut)
	// Batches are decoded by the handler so oversized bodies map to 413.
	tracking.POST("/coordinates", r.cache.CacheInvalidate(summaryCacheGroup), r.handler.IngestCoordinates)
	tracking.GET("/status", r.handler.GetStatus)
	tracking.GET("/sessions/:id/route", gzip.Gzip(gzip.DefaultCompression), r.handler.GetRoute)

	tracking.POST("/recalculate",
		middleware.RequireRole(access.RoleAdmin),
		middleware.ValidateRequest(&dto.RecalculateRequest{}, r.logger),
		r.cache.CacheInvalidate(summaryCacheGroup),
		r.handler.Recalculate)
}
