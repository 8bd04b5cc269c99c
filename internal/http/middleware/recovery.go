// README: Recovery middleware; a panicking handler yields a 500 instead of a dropped connection.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"driverbuddy/internal/logger"
)

func Recovery(l *slog.Logger) gin.HandlerFunc {
	l = logger.Or(l).With("component", "http")
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				l.ErrorContext(c.Request.Context(), "handler panic",
					"method", c.Request.Method,
					"path", c.Request.URL.Path,
					"panic", fmt.Sprint(r),
				)
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
			}
		}()
		c.Next()
	}
}
