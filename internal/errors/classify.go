package errors

import (
	"context"
	"errors"
	"net"
)

// BackendError is the normalized failure reported by a row-store adapter.
// Adapters parse whatever their client library returns into this shape so
// classification happens on a closed set of codes, never on message text.
type BackendError struct {
	Code    string // PostgREST or PostgreSQL error code
	Message string
	Details string
}

func (e *BackendError) Error() string {
	if e.Details != "" {
		return e.Code + ": " + e.Message + " (" + e.Details + ")"
	}
	return e.Code + ": " + e.Message
}

// Backend signal codes this engine recognizes. Everything else is treated
// conservatively as a server error.
const (
	codeRLSDenied       = "42501"    // insufficient_privilege, RLS denial
	codeNoRows          = "PGRST116" // PostgREST: zero rows where one expected
	codeJWTExpired      = "PGRST301" // PostgREST: stale or invalid JWT
	codeJWTInvalid      = "PGRST302"
	codeUniqueViolation = "23505"
	codeFKViolation     = "23503"
	codeNotNull         = "23502"
	codeCheckViolation  = "23514"
	codeInvalidText     = "22P02"
)

// classifyCode maps a backend-reported code to the taxonomy.
func classifyCode(code string) Status {
	switch code {
	case codeRLSDenied:
		return StatusForbidden
	case codeNoRows:
		return StatusNotFound
	case codeJWTExpired, codeJWTInvalid, "401":
		return StatusUnauthorized
	case codeUniqueViolation, codeFKViolation, codeNotNull, codeCheckViolation, codeInvalidText:
		return StatusValidation
	default:
		return StatusServerError
	}
}

// Classify normalizes an arbitrary error from a backend call into the
// taxonomy. Taxonomy errors pass through unchanged; backend errors are
// matched by code; context deadlines become timeouts; network failures and
// everything unrecognized become server errors.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}

	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Timeout("DEADLINE_EXCEEDED", "operation deadline exceeded").WithCause(err)
	}
	if errors.Is(err, context.Canceled) {
		return Timeout("CANCELED", "operation canceled").WithCause(err)
	}

	var backendErr *BackendError
	if errors.As(err, &backendErr) {
		e := &Error{
			Status:  classifyCode(backendErr.Code),
			Code:    backendErr.Code,
			Message: backendErr.Message,
			Cause:   err,
		}
		if backendErr.Details != "" {
			e.WithMeta("details", backendErr.Details)
		}
		return e
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return Timeout("NETWORK_TIMEOUT", "network timeout").WithCause(err)
		}
		return Server("NETWORK", "network failure").WithCause(err)
	}

	return Server("UNKNOWN", err.Error()).WithCause(err)
}
