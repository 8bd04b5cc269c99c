// README: Request logging middleware.
package middleware

import (
	"log/slog"
	"time"

	"github.com/gin-gonic/gin"

	"driverbuddy/internal/logger"
)

func Logging(l *slog.Logger) gin.HandlerFunc {
	l = logger.Or(l).With("component", "http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		attrs := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
			"client_ip", c.ClientIP(),
		}
		if len(c.Errors) > 0 {
			attrs = append(attrs, "error", c.Errors.String())
		}
		switch {
		case c.Writer.Status() >= 500:
			l.ErrorContext(c.Request.Context(), "request failed", attrs...)
		case c.Request.URL.Path == "/health" || c.Request.URL.Path == "/metrics":
			l.DebugContext(c.Request.Context(), "request", attrs...)
		default:
			l.InfoContext(c.Request.Context(), "request", attrs...)
		}
	}
}
