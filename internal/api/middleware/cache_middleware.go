package middleware

import (
	"bytes"
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ResponseCache is the subset of the Redis client the middleware uses.
type ResponseCache interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	ClearByPattern(ctx context.Context, pattern string) error
}

// CacheMiddleware caches successful GET responses per caller. A nil cache
// disables it.
type CacheMiddleware struct {
	cache ResponseCache
	log   *zap.Logger
}

func NewCacheMiddleware(cache ResponseCache, log *zap.Logger) *CacheMiddleware {
	return &CacheMiddleware{cache: cache, log: log}
}

type responseBuffer struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (r *responseBuffer) Write(b []byte) (int, error) {
	r.body.Write(b)
	return r.ResponseWriter.Write(b)
}

func (r *responseBuffer) WriteString(s string) (int, error) {
	r.body.WriteString(s)
	return r.ResponseWriter.WriteString(s)
}

// CacheResponse serves GET requests under group from the cache. Keys include
// the caller and the raw query so scoped results never leak across users.
func (m *CacheMiddleware) CacheResponse(group string, ttl time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m.cache == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}

		key := m.cacheKey(group, c)
		if cached, err := m.cache.Get(c.Request.Context(), key); err == nil {
			c.Header("X-Cache", "HIT")
			c.Data(http.StatusOK, "application/json; charset=utf-8", []byte(cached))
			c.Abort()
			return
		}

		writer := c.Writer
		buff := &responseBuffer{ResponseWriter: writer, body: &bytes.Buffer{}}
		c.Writer = buff
		c.Header("X-Cache", "MISS")

		c.Next()

		c.Writer = writer
		if buff.Status() == http.StatusOK && buff.body.Len() > 0 {
			if err := m.cache.Set(c.Request.Context(), key, buff.body.String(), ttl); err != nil {
				m.log.Warn("Failed to cache response", zap.Error(err), zap.String("key", key))
			}
		}
	}
}

// CacheInvalidate clears every entry of groups after a successful write.
func (m *CacheMiddleware) CacheInvalidate(groups ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if m.cache == nil || c.Writer.Status() < 200 || c.Writer.Status() >= 300 {
			return
		}
		for _, group := range groups {
			if err := m.cache.ClearByPattern(c.Request.Context(), "http:"+group+":*"); err != nil {
				m.log.Warn("Failed to invalidate cache", zap.Error(err), zap.String("group", group))
			}
		}
	}
}

func (m *CacheMiddleware) cacheKey(group string, c *gin.Context) string {
	parts := []string{"http", group}
	if id, ok := GetUserID(c); ok {
		parts = append(parts, id.String())
	} else {
		parts = append(parts, "anonymous")
	}
	parts = append(parts, c.Request.URL.Path)
	if q := c.Request.URL.RawQuery; q != "" {
		parts = append(parts, q)
	}
	return strings.Join(parts, ":")
}
