package utils

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorResponse is the envelope every HTTP error goes out in.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// ErrorHandler catches panics in handlers and turns them into a 500
// with the standard envelope.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if err := recover(); err != nil {
				GetLogger().Error("unhandled panic in handler", zap.Any("error", err))
				JSONError(c, http.StatusInternalServerError,
					"internal server error", "an unexpected error occurred, please try again later")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// JSONError sends the standard error envelope. details carries optional
// context for the caller, "" omits it. Logging stays with the handler,
// which knows what the failure means.
func JSONError(c *gin.Context, status int, message, details string) {
	c.JSON(status, ErrorResponse{Error: message, Details: details})
}
