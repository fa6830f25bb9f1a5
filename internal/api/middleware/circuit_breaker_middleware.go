package middleware

import (
	"net/http"

	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/pkg/breaker"
	"github.com/gin-gonic/gin"
)

// CircuitBreakerMiddleware sheds load with 503 while cb is open. Responses
// of 500 and above count as failures; 4xx are the caller's fault and count
// as successes. A handler that panics counts as a failure.
func CircuitBreakerMiddleware(cb *breaker.CircuitBreaker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := cb.Allow(); err != nil {
			c.Header("Retry-After", "30")
			AbortWithError(c, http.StatusServiceUnavailable, dto.CodeUnavailable, "service temporarily unavailable")
			return
		}

		completed := false
		defer func() {
			cb.Record(completed && c.Writer.Status() < http.StatusInternalServerError)
		}()

		c.Next()
		completed = true
	}
}
