package middleware

import (
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	RequestIDHeader    = "X-Request-ID"
	TraceIDHeader      = "X-Trace-ID"
	SpanIDHeader       = "X-Span-ID"
	ParentSpanIDHeader = "X-Parent-Span-ID"

	traceContextKey = "trace_context"
)

// TraceContext holds tracing information
type TraceContext struct {
	RequestID    string
	TraceID      string
	SpanID       string
	ParentSpanID string
	StartTime    time.Time
}

// TraceRequest propagates or creates trace headers and logs one line per
// request. Health probes and metrics scrapes are not logged.
func TraceRequest(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		traceCtx := &TraceContext{
			RequestID:    headerOrNew(c, RequestIDHeader),
			TraceID:      headerOrNew(c, TraceIDHeader),
			SpanID:       uuid.NewString(),
			ParentSpanID: c.GetHeader(SpanIDHeader),
			StartTime:    time.Now(),
		}
		c.Set(traceContextKey, traceCtx)

		c.Header(RequestIDHeader, traceCtx.RequestID)
		c.Header(TraceIDHeader, traceCtx.TraceID)
		c.Header(SpanIDHeader, traceCtx.SpanID)
		if traceCtx.ParentSpanID != "" {
			c.Header(ParentSpanIDHeader, traceCtx.ParentSpanID)
		}

		c.Next()

		path := c.Request.URL.Path
		if path == "/metrics" || strings.HasPrefix(path, "/health") {
			return
		}

		fields := []zap.Field{
			zap.String("request_id", traceCtx.RequestID),
			zap.String("trace_id", traceCtx.TraceID),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(traceCtx.StartTime)),
			zap.String("client_ip", c.ClientIP()),
		}
		if id, ok := GetUserID(c); ok {
			fields = append(fields, zap.String("user_id", id.String()))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Error("Request completed", fields...)
		case status >= 400:
			log.Warn("Request completed", fields...)
		default:
			log.Info("Request completed", fields...)
		}
	}
}

// GetTraceContext retrieves the trace context from the gin context
func GetTraceContext(c *gin.Context) *TraceContext {
	if v, exists := c.Get(traceContextKey); exists {
		if traceCtx, ok := v.(*TraceContext); ok {
			return traceCtx
		}
	}
	return nil
}

func headerOrNew(c *gin.Context, header string) string {
	if v := c.GetHeader(header); v != "" {
		return v
	}
	return uuid.NewString()
}
