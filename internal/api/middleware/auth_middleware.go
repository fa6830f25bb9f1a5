package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/Hari1275/sdp-sub000/internal/api/dto"
	"github.com/Hari1275/sdp-sub000/internal/domain/access"
	"github.com/Hari1275/sdp-sub000/internal/domain/user"
	"github.com/Hari1275/sdp-sub000/pkg/security/auth"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	bearerSchema = "Bearer "

	callerKey = "caller"
	userIDKey = "user_id"
)

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// CallerResolver turns token claims into the caller used for scoping.
type CallerResolver interface {
	ResolveCaller(ctx context.Context, identity user.Identity) (access.Caller, error)
}

// AbortWithError writes the standard error body and stops the chain.
func AbortWithError(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, dto.ErrorResponse{Error: message, Code: code})
}

// NewAuthMiddleware authenticates the bearer token and stores the resolved
// caller in the context. Websocket clients cannot set headers, so a token
// query parameter is accepted on upgrade requests.
func NewAuthMiddleware(tokens TokenValidator, callers CallerResolver, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearerToken(c)
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, dto.CodeAuthenticationRequired, "authorization header is required")
			return
		}

		claims, err := tokens.ValidateToken(tokenString)
		if err != nil {
			log.Debug("Token validation failed", zap.Error(err))
			AbortWithError(c, http.StatusUnauthorized, dto.CodeAuthenticationRequired, "invalid token")
			return
		}

		caller, err := callers.ResolveCaller(c.Request.Context(), user.Identity{
			UserID:    claims.UserID,
			Role:      claims.Role,
			Region:    claims.Region,
			ReportsTo: claims.ReportsTo,
		})
		if err != nil {
			if errors.Is(err, user.ErrUserInactive) || errors.Is(err, user.ErrUserNotFound) {
				AbortWithError(c, http.StatusUnauthorized, dto.CodeAuthenticationRequired, err.Error())
				return
			}
			log.Error("Failed to resolve caller", zap.Error(err), zap.String("user_id", claims.UserID.String()))
			AbortWithError(c, http.StatusInternalServerError, dto.CodeInternal, "internal server error")
			return
		}

		c.Set(callerKey, caller)
		c.Set(userIDKey, caller.ID)
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, bearerSchema) {
		token := strings.TrimSpace(header[len(bearerSchema):])
		return token, token != ""
	}
	if header == "" && strings.EqualFold(c.GetHeader("Upgrade"), "websocket") {
		token := c.Query("token")
		return token, token != ""
	}
	return "", false
}

// GetCaller returns the authenticated caller.
func GetCaller(c *gin.Context) (access.Caller, bool) {
	v, exists := c.Get(callerKey)
	if !exists {
		return access.Caller{}, false
	}
	caller, ok := v.(access.Caller)
	return caller, ok
}

// GetUserID retrieves the authenticated user's ID from the context
func GetUserID(c *gin.Context) (uuid.UUID, bool) {
	v, exists := c.Get(userIDKey)
	if !exists {
		return uuid.Nil, false
	}
	id, ok := v.(uuid.UUID)
	return id, ok
}

// RequireRole lets the request through only when the caller holds one of
// roles.
func RequireRole(roles ...access.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := GetCaller(c)
		if !ok {
			AbortWithError(c, http.StatusUnauthorized, dto.CodeAuthenticationRequired, "user not authenticated")
			return
		}
		for _, role := range roles {
			if caller.Role == role {
				c.Next()
				return
			}
		}
		AbortWithError(c, http.StatusForbidden, dto.CodeForbidden, "insufficient permissions")
	}
}

// RateLimitMiddleware limits requests per authenticated user, or per client
// IP before authentication. Limiter failures let the request through.
func RateLimitMiddleware(limiter auth.RateLimiter, log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "ip:" + c.ClientIP()
		if id, ok := GetUserID(c); ok {
			key = "user:" + id.String()
		}
		key = fmt.Sprintf("%s:%s", key, c.FullPath())

		allowed, remaining, resetTime, err := limiter.Allow(c.Request.Context(), key)
		if err != nil {
			log.Warn("Rate limiter unavailable", zap.Error(err))
			c.Next()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(remaining))
		c.Header("X-RateLimit-Reset", resetTime.UTC().Format(time.RFC3339))
		if !allowed {
			c.Header("Retry-After", strconv.Itoa(int(time.Until(resetTime).Seconds())+1))
			AbortWithError(c, http.StatusTooManyRequests, dto.CodeRateLimited, "rate limit exceeded")
			return
		}
		c.Next()
	}
}
