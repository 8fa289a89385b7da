package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"glimpse/internal/shared/logger"
	"glimpse/internal/shared/utils"
)

// Recovery turns panics into 500 responses with a stack trace in the log.
func Recovery(log logger.Interface) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		log.Errorw("panic recovered",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", recovered,
			"stack", string(debug.Stack()),
		)
		utils.ErrorResponse(c, http.StatusInternalServerError, "internal server error")
	})
}
