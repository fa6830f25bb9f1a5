package routes

import (
	"time"

	"github.com/Hari1275/sdp-sub000/internal/api/handlers"
	"github.com/Hari1275/sdp-sub000/internal/api/middleware"
	"github.com/Hari1275/sdp-sub000/internal/domain/errorlog"
	"github.com/Hari1275/sdp-sub000/internal/domain/monitoring"
	"github.com/Hari1275/sdp-sub000/internal/domain/summary"
	"github.com/Hari1275/sdp-sub000/internal/domain/tracking"
	"github.com/Hari1275/sdp-sub000/pkg/breaker"
	"github.com/Hari1275/sdp-sub000/pkg/security/auth"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Dependencies is everything the API routes need. Cache, RateLimiter,
// Breaker and LiveFeed are optional.
type Dependencies struct {
	Tracking   tracking.Service
	Monitoring monitoring.Service
	Summaries  summary.Service
	ErrorLog   errorlog.Service
	Scopes     handlers.ScopeResolver
	LiveFeed   handlers.LiveSubscriber

	Tokens      middleware.TokenValidator
	Callers     middleware.CallerResolver
	RateLimiter auth.RateLimiter
	Breaker     *breaker.CircuitBreaker
	Cache       middleware.ResponseCache

	Health   HealthChecks
	Location *time.Location
	Logger   *zap.Logger
}

// Register mounts the health endpoints and the authenticated /api tree.
func Register(router *gin.Engine, deps Dependencies) {
	SetupHealthRoutes(router, deps.Health)

	api := router.Group("/api")
	if deps.Breaker != nil {
		api.Use(middleware.CircuitBreakerMiddleware(deps.Breaker))
	}
	api.Use(middleware.NewAuthMiddleware(deps.Tokens, deps.Callers, deps.Logger))
	if deps.RateLimiter != nil {
		api.Use(middleware.RateLimitMiddleware(deps.RateLimiter, deps.Logger))
	}

	cache := middleware.NewCacheMiddleware(deps.Cache, deps.Logger)

	NewTrackingRoutes(handlers.NewTrackingHandler(deps.Tracking, deps.Logger), cache, deps.Logger).RegisterRoutes(api)
	NewMonitoringRoutes(handlers.NewMonitoringHandler(deps.Monitoring, deps.LiveFeed, deps.Scopes, deps.Logger)).RegisterRoutes(api)
	NewSummaryRoutes(handlers.NewSummaryHandler(deps.Summaries, deps.Scopes, deps.Location, deps.Logger), cache).RegisterRoutes(api)
	NewErrorLogRoutes(handlers.NewErrorLogHandler(deps.ErrorLog, deps.Logger), deps.Logger).RegisterRoutes(api)
}
