package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"glimpse/internal/shared/logger"
)

// Logger logs one line per request, leveled by response status.
func Logger(log logger.Interface) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		args := []any{
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"latency", time.Since(start),
			"client_ip", c.ClientIP(),
		}
		if userID, exists := c.Get("user_id"); exists {
			args = append(args, "user_id", userID)
		}
		if len(c.Errors) > 0 {
			args = append(args, "errors", c.Errors.String())
		}

		switch status := c.Writer.Status(); {
		case status >= 500:
			log.Errorw("http request", args...)
		case status >= 400:
			log.Warnw("http request", args...)
		default:
			log.Debugw("http request", args...)
		}
	}
}
