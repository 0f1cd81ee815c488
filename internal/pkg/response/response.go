// Package response provides the uniform JSON envelopes for error and success
// replies.
package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	infraerrors "github.com/neilnvaidya/owlby-api/internal/pkg/errors"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Success writes data as-is with HTTP 200.
func Success(c *gin.Context, data any) {
	c.JSON(http.StatusOK, data)
}

// Error writes a coded error envelope with the given status.
func Error(c *gin.Context, status int, code, message string) {
	c.JSON(status, errorBody{Code: code, Message: message})
}

// ErrorFrom maps an error onto the envelope, using the embedded status and
// code when the error carries them.
func ErrorFrom(c *gin.Context, err error) {
	Error(c, infraerrors.HTTPStatus(err), infraerrors.Code(err), infraerrors.Message(err))
}

// BadRequest writes a 400 with code INVALID_REQUEST.
func BadRequest(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, "INVALID_REQUEST", message)
}

// Unauthorized writes a 401 with code UNAUTHORIZED.
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, "UNAUTHORIZED", message)
}

// TooManyRequests writes a 429 with code RATE_LIMITED.
func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, "RATE_LIMITED", message)
}
