package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HealthResponse represents the health check response structure
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Checks    map[string]string `json:"checks,omitempty"`
}

// CacheStatus is the part of the Redis client the cache health route reads.
type CacheStatus interface {
	IsHealthy() bool
	GetMetrics() map[string]interface{}
}

// HealthChecks lists readiness probes by name. Nil means "not configured".
type HealthChecks struct {
	Database func(ctx context.Context) error
	Cache    CacheStatus
}

// SetupHealthRoutes registers health, readiness, cache and metrics endpoints.
func SetupHealthRoutes(router *gin.Engine, checks HealthChecks) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC(),
		})
	})

	// Readiness fails on the database only; without Redis the service runs
	// degraded with haversine distances and no live feed.
	router.GET("/health/ready", func(c *gin.Context) {
		resp := HealthResponse{Status: "ready", Timestamp: time.Now().UTC(), Checks: map[string]string{}}
		status := http.StatusOK

		if checks.Database != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			err := checks.Database(ctx)
			cancel()
			if err != nil {
				resp.Checks["database"] = err.Error()
				resp.Status = "unavailable"
				status = http.StatusServiceUnavailable
			} else {
				resp.Checks["database"] = "ok"
			}
		}

		switch {
		case checks.Cache == nil:
			resp.Checks["cache"] = "disabled"
		case checks.Cache.IsHealthy():
			resp.Checks["cache"] = "ok"
		default:
			resp.Checks["cache"] = "degraded"
		}

		c.JSON(status, resp)
	})

	router.GET("/health/cache", func(c *gin.Context) {
		if checks.Cache == nil {
			c.JSON(http.StatusOK, gin.H{"status": "disabled"})
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"status":  map[bool]string{true: "healthy", false: "unhealthy"}[checks.Cache.IsHealthy()],
			"metrics": checks.Cache.GetMetrics(),
		})
	})

	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
}
