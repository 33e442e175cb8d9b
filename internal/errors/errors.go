// Package errors provides the error taxonomy shared by every layer of the
// engine. All backend failures are normalized into a small closed set of
// statuses so that callers branch on status instead of inspecting messages.
package errors

import (
	"errors"
	"fmt"
)

// Status categorizes an error for handling and retry decisions.
type Status string

const (
	StatusOK           Status = "OK"
	StatusUnauthorized Status = "UNAUTHORIZED"
	StatusForbidden    Status = "FORBIDDEN"
	StatusNotFound     Status = "NOT_FOUND"
	StatusValidation   Status = "VALIDATION"
	StatusTimeout      Status = "TIMEOUT"
	StatusServerError  Status = "SERVER_ERROR"
)

// Error is the single error type used across the engine. It carries the
// status taxonomy, a stable code for programmatic handling, and optional
// metadata that round-trips to callers inside Result envelopes.
type Error struct {
	Status  Status
	Code    string
	Message string
	Op      string
	Meta    map[string]any
	Cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("[%s:%s] %s: %s", e.Status, e.Code, e.Op, e.Message)
	}
	return fmt.Sprintf("[%s:%s] %s", e.Status, e.Code, e.Message)
}

// Unwrap allows errors.Is and errors.As to reach the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// WithOp records the operation that produced the error.
func (e *Error) WithOp(op string) *Error {
	e.Op = op
	return e
}

// WithCause attaches the underlying cause.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithMeta attaches a metadata entry, allocating the map on first use.
func (e *Error) WithMeta(key string, value any) *Error {
	if e.Meta == nil {
		e.Meta = make(map[string]any)
	}
	e.Meta[key] = value
	return e
}

// Constructors, one per taxonomy class.

func Unauthorized(code, message string) *Error {
	return &Error{Status: StatusUnauthorized, Code: code, Message: message}
}

func Forbidden(code, message string) *Error {
	return &Error{Status: StatusForbidden, Code: code, Message: message}
}

func NotFound(code, message string) *Error {
	return &Error{Status: StatusNotFound, Code: code, Message: message}
}

func Validation(code, message string) *Error {
	return &Error{Status: StatusValidation, Code: code, Message: message}
}

func Timeout(code, message string) *Error {
	return &Error{Status: StatusTimeout, Code: code, Message: message}
}

func Server(code, message string) *Error {
	return &Error{Status: StatusServerError, Code: code, Message: message}
}

// Wrap wraps an error with operation context while preserving its status.
// Non-taxonomy errors become server errors.
func Wrap(err error, op, message string) *Error {
	if err == nil {
		return nil
	}
	var existing *Error
	if errors.As(err, &existing) {
		return &Error{
			Status:  existing.Status,
			Code:    existing.Code,
			Message: message,
			Op:      op,
			Meta:    existing.Meta,
			Cause:   err,
		}
	}
	return &Error{
		Status:  StatusServerError,
		Code:    "WRAPPED",
		Message: message,
		Op:      op,
		Cause:   err,
	}
}

// StatusOf extracts the status from any error. Unrecognized errors are
// treated conservatively as server errors; nil maps to StatusOK.
func StatusOf(err error) Status {
	if err == nil {
		return StatusOK
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Status
	}
	return StatusServerError
}

// Predicates consulted by callers instead of exception-style handling.

func IsUnauthorized(err error) bool { return StatusOf(err) == StatusUnauthorized }
func IsForbidden(err error) bool    { return StatusOf(err) == StatusForbidden }
func IsNotFound(err error) bool     { return StatusOf(err) == StatusNotFound }
func IsValidation(err error) bool   { return StatusOf(err) == StatusValidation }
func IsTimeout(err error) bool      { return StatusOf(err) == StatusTimeout }
func IsServer(err error) bool       { return StatusOf(err) == StatusServerError }

// IsRetryable reports whether the operation behind the error may be retried.
// Definitive statuses (not-found, validation, forbidden, unauthorized) are
// never retryable here; unauthorized has its own refresh-then-retry path in
// the query executor.
func IsRetryable(err error) bool {
	switch StatusOf(err) {
	case StatusTimeout, StatusServerError:
		return true
	default:
		return false
	}
}
