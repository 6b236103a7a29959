// Package apierr defines the error type the services return when the outcome
// of an operation maps to a specific HTTP status. The HTTP layer renders the
// payload of such errors verbatim; any other error is reported as a 500.
package apierr

import (
	"fmt"
	"net/http"

	"github.com/pkg/errors"
)

// Error carries an HTTP status and the payload to send back to the client.
type Error struct {
	Status  int
	Payload interface{}
}

func (e *Error) Error() string {
	switch p := e.Payload.(type) {
	case nil:
		return fmt.Sprintf("%d %s", e.Status, http.StatusText(e.Status))
	case string:
		return fmt.Sprintf("%d %s", e.Status, p)
	default:
		return fmt.Sprintf("%d %v", e.Status, p)
	}
}

// New returns an Error with the given status and payload.
func New(status int, payload interface{}) *Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return &Error{Status: status, Payload: payload}
}

func BadRequest(format string, args ...interface{}) *Error {
	return New(http.StatusBadRequest, fmt.Sprintf(format, args...))
}

func NotFound(format string, args ...interface{}) *Error {
	return New(http.StatusNotFound, fmt.Sprintf(format, args...))
}

func Forbidden(format string, args ...interface{}) *Error {
	return New(http.StatusForbidden, fmt.Sprintf(format, args...))
}

func UnsupportedMediaType(format string, args ...interface{}) *Error {
	return New(http.StatusUnsupportedMediaType, fmt.Sprintf(format, args...))
}

func RequestTimeout(message string) *Error {
	return New(http.StatusRequestTimeout, message)
}

func Conflict(format string, args ...interface{}) *Error {
	return New(http.StatusConflict, fmt.Sprintf(format, args...))
}

func Internal(format string, args ...interface{}) *Error {
	return New(http.StatusInternalServerError, fmt.Sprintf(format, args...))
}

// StatusOf returns the status of the first *Error in the chain of err, or 500.
func StatusOf(err error) int {
	var apiErr *Error
	if errors.As(err, &apiErr) {
		return apiErr.Status
	}
	return http.StatusInternalServerError
}

// Is reports whether err carries the given status.
func Is(err error, status int) bool {
	var apiErr *Error
	return errors.As(err, &apiErr) && apiErr.Status == status
}
