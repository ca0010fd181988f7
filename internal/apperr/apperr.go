// Package apperr defines the operational error carried from handlers to the
// central error formatter.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
)

// Error is a predictable failure with a user-facing message.
type Error struct {
	StatusCode  int
	Status      string // "fail" for 4xx, "error" otherwise
	Message     string
	Operational bool
	cause       error
}

func New(message string, statusCode int) *Error {
	status := "error"
	if statusCode >= 400 && statusCode < 500 {
		status = "fail"
	}
	return &Error{
		StatusCode:  statusCode,
		Status:      status,
		Message:     message,
		Operational: true,
	}
}

// Wrap keeps cause reachable through errors.Is/As while presenting message.
func Wrap(cause error, message string, statusCode int) *Error {
	e := New(message, statusCode)
	e.cause = cause
	return e
}

func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.cause }

func NotFound(message string) *Error     { return New(message, http.StatusNotFound) }
func BadRequest(message string) *Error   { return New(message, http.StatusBadRequest) }
func Unauthorized(message string) *Error { return New(message, http.StatusUnauthorized) }
func Forbidden(message string) *Error    { return New(message, http.StatusForbidden) }

// As extracts an *Error from err's chain.
func As(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
