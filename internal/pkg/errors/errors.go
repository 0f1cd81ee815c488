// Package errors provides typed API errors carrying a stable machine code
// and an HTTP status, so handlers never have to inspect error strings.
package errors

import (
	"errors"
	"net/http"
)

// Error is an API-facing error with a stable code.
type Error struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// New creates an Error with an explicit HTTP status.
func New(status int, code, message string) *Error {
	return &Error{Status: status, Code: code, Message: message}
}

func BadRequest(code, message string) *Error {
	return New(http.StatusBadRequest, code, message)
}

func Unauthorized(code, message string) *Error {
	return New(http.StatusUnauthorized, code, message)
}

func Forbidden(code, message string) *Error {
	return New(http.StatusForbidden, code, message)
}

func NotFound(code, message string) *Error {
	return New(http.StatusNotFound, code, message)
}

func Conflict(code, message string) *Error {
	return New(http.StatusConflict, code, message)
}

func TooManyRequests(code, message string) *Error {
	return New(http.StatusTooManyRequests, code, message)
}

func Internal(code, message string) *Error {
	return New(http.StatusInternalServerError, code, message)
}

func ServiceUnavailable(code, message string) *Error {
	return New(http.StatusServiceUnavailable, code, message)
}

func GatewayTimeout(code, message string) *Error {
	return New(http.StatusGatewayTimeout, code, message)
}

// Code extracts the machine code from err, or "INTERNAL_ERROR" for untyped errors.
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return "INTERNAL_ERROR"
}

// Message extracts the user-safe message from err.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Message
	}
	return "internal error"
}

// HTTPStatus extracts the HTTP status from err, defaulting to 500.
func HTTPStatus(err error) int {
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return http.StatusInternalServerError
}

// IsCode reports whether err carries the given machine code.
func IsCode(err error, code string) bool {
	return Code(err) == code
}
