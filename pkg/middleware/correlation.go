package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/wms-platform/coldroom-service/pkg/logging"
)

// Context keys
const (
	ContextKeyRequestID     = "requestId"
	ContextKeyCorrelationID = "correlationId"
	ContextKeyTraceID       = "traceId"
)

// HTTP header names
const (
	HeaderRequestID     = "X-Request-ID"
	HeaderCorrelationID = "X-Correlation-ID"
)

// probePaths are not request-logged
var probePaths = []string{"/health", "/ready", "/metrics"}

// propagate reads header, falls back to fallback(), stores the value under key
// and echoes it back to the caller.
func propagate(c *gin.Context, header, key string, fallback func() string, attach func(context.Context, string) context.Context) {
	id := c.GetHeader(header)
	if id == "" {
		id = fallback()
	}
	c.Set(key, id)
	c.Header(header, id)
	c.Request = c.Request.WithContext(attach(c.Request.Context(), id))
}

// RequestID generates or propagates the per-request ID
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		propagate(c, HeaderRequestID, ContextKeyRequestID, uuid.NewString, logging.ContextWithRequestID)
		c.Next()
	}
}

// CorrelationID propagates the correlation ID. Without one the request ID is
// reused, so outbox events of a call can be matched to its request log line.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		fallback := func() string {
			if id := GetRequestID(c); id != "" {
				return id
			}
			return uuid.NewString()
		}
		propagate(c, HeaderCorrelationID, ContextKeyCorrelationID, fallback, logging.ContextWithCorrelationID)
		c.Next()
	}
}

// Logger logs one line per action call, skipping probes. 5xx is logged at
// error, 4xx at warn.
func Logger(logger *slog.Logger) gin.HandlerFunc {
	skip := make(map[string]bool, len(probePaths))
	for _, path := range probePaths {
		skip[path] = true
	}

	return func(c *gin.Context) {
		if skip[c.Request.URL.Path] {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()
		status := c.Writer.Status()

		attrs := []any{
			"status", status,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"action", c.Query("action"),
			"latencyMs", time.Since(start).Milliseconds(),
			"clientIP", c.ClientIP(),
			"requestId", GetRequestID(c),
			"correlationId", GetCorrelationID(c),
		}
		if room := c.Query("coldRoomId"); room != "" {
			attrs = append(attrs, "coldRoomId", room)
		}
		if traceID, ok := c.Get(ContextKeyTraceID); ok {
			attrs = append(attrs, "traceId", traceID)
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "errors", c.Errors.String())
		}

		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}
		logger.Log(c.Request.Context(), level, "HTTP request", attrs...)
	}
}

// Recovery turns a panic into a 500 envelope
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				logger.Error("Panic recovered",
					"error", err,
					"path", c.Request.URL.Path,
					"action", c.Query("action"),
					"requestId", GetRequestID(c),
					"correlationId", GetCorrelationID(c),
				)

				c.AbortWithStatusJSON(http.StatusInternalServerError, Envelope{
					Success:   false,
					Error:     "An unexpected error occurred",
					Code:      "INTERNAL_ERROR",
					RequestID: GetRequestID(c),
				})
			}
		}()
		c.Next()
	}
}

func contextString(c *gin.Context, key string) string {
	if val, exists := c.Get(key); exists {
		if id, ok := val.(string); ok {
			return id
		}
	}
	return ""
}

// GetRequestID extracts request ID from context
func GetRequestID(c *gin.Context) string { return contextString(c, ContextKeyRequestID) }

// GetCorrelationID extracts correlation ID from context
func GetCorrelationID(c *gin.Context) string { return contextString(c, ContextKeyCorrelationID) }
