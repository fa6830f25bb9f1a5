package routes

import (
	"time"

	"github.com/Hari1275/sdp-sub000/internal/api/handlers"
	"github.com/Hari1275/sdp-sub000/internal/api/middleware"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

const (
	summaryCacheGroup = "summaries"
	summaryCacheTTL   = 30 * time.Second
)

type SummaryRoutes struct {
	handler *handlers.SummaryHandler
	cache   *middleware.CacheMiddleware
}

func NewSummaryRoutes(handler *handlers.SummaryHandler, cache *middleware.CacheMiddleware) *SummaryRoutes {
	return &SummaryRoutes{handler: handler, cache: cache}
}

func (r *SummaryRoutes) RegisterRoutes(api *gin.RouterGroup) {
	api.GET("/summaries",
		gzip.Gzip(gzip.DefaultCompression),
		r.cache.CacheResponse(summaryCacheGroup, summaryCacheTTL),
		r.handler.List)
}
