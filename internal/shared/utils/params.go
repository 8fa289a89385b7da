package utils

import (
	"github.com/gin-gonic/gin"

	"glimpse/internal/shared/errors"
)

// CurrentUserID reads the authenticated user id placed in the context by the
// auth middleware.
func CurrentUserID(c *gin.Context) (uint, error) {
	v, exists := c.Get("user_id")
	if !exists {
		return 0, errors.NewUnauthorizedError("user not authenticated")
	}
	id, ok := v.(uint)
	if !ok {
		return 0, errors.NewInternalError("invalid user id in context")
	}
	return id, nil
}
