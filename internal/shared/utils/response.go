package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"glimpse/internal/shared/errors"
)

// APIResponse is the standard response envelope for all HTTP endpoints.
type APIResponse struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorInfo `json:"error,omitempty"`
	Message string     `json:"message,omitempty"`
}

// ErrorInfo carries the error payload inside an APIResponse.
type ErrorInfo struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// SuccessResponse sends a successful response with the given status code.
func SuccessResponse(c *gin.Context, statusCode int, message string, data any) {
	c.JSON(statusCode, APIResponse{Success: true, Data: data, Message: message})
}

// OKResponse sends a 200 response with data.
func OKResponse(c *gin.Context, data any) {
	c.JSON(http.StatusOK, APIResponse{Success: true, Data: data})
}

// CreatedResponse sends a 201 response with data.
func CreatedResponse(c *gin.Context, data any, message ...string) {
	resp := APIResponse{Success: true, Data: data}
	if len(message) > 0 {
		resp.Message = message[0]
	}
	c.JSON(http.StatusCreated, resp)
}

// ErrorResponse sends a plain error response with the given status code.
func ErrorResponse(c *gin.Context, statusCode int, message string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error:   &ErrorInfo{Type: "error", Message: message},
	})
}

// ErrorResponseWithError maps an error to the response envelope, unwrapping
// AppError types to their status code and hiding internal details otherwise.
func ErrorResponseWithError(c *gin.Context, err error) {
	if appErr := errors.GetAppError(err); appErr != nil {
		c.JSON(appErr.Code, APIResponse{
			Success: false,
			Error: &ErrorInfo{
				Type:    string(appErr.Type),
				Message: appErr.Message,
				Details: appErr.Details,
			},
		})
		return
	}
	c.JSON(http.StatusInternalServerError, APIResponse{
		Success: false,
		Error:   &ErrorInfo{Type: string(errors.ErrorTypeInternal), Message: "internal server error"},
	})
}
