// Package logger provides the request logging middleware. It seeds every
// request context with the process logger enriched with request fields, so
// downstream packages pick it up through logger.FromContext.
package logger

import (
	"time"

	"github.com/cardmart/cardmart/pkg/logger"
	"github.com/gin-gonic/gin"
	"github.com/segmentio/ksuid"
)

// Middleware attaches a request-scoped logger and emits one completion
// line per request.
func Middleware(base logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := c.GetHeader("X-Request-ID")
		if requestID == "" {
			requestID = ksuid.New().String()
		}
		c.Header("X-Request-ID", requestID)
		log := base.With("request_id", requestID)
		ctx := logger.ContextWithLogger(c.Request.Context(), log)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
		status := c.Writer.Status()
		fields := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		switch {
		case status >= 500:
			log.Error("request completed", fields...)
		case status >= 400:
			log.Warn("request completed", fields...)
		default:
			log.Info("request completed", fields...)
		}
	}
}
