// Package result defines the uniform success/error envelope returned by
// every engine operation. Callers branch on the status instead of handling
// thrown errors; a Result is immutable once constructed.
package result

import (
	"fmt"
	"time"

	apperrors "tickerdesk-backend/internal/errors"
)

// Result carries either a payload or an error, never both, plus the status
// that tells the caller which branch is populated.
type Result[T any] struct {
	Data   T
	Err    *apperrors.Error
	Status apperrors.Status
	Meta   map[string]any
}

// Ok constructs a success result.
func Ok[T any](data T) Result[T] {
	return Result[T]{Data: data, Status: apperrors.StatusOK}
}

// OkMeta constructs a success result with metadata.
func OkMeta[T any](data T, meta map[string]any) Result[T] {
	return Result[T]{Data: data, Status: apperrors.StatusOK, Meta: meta}
}

// Fail constructs an error result from a taxonomy error. The error's
// metadata is surfaced on the envelope so callers need not unwrap.
func Fail[T any](err *apperrors.Error) Result[T] {
	if err == nil {
		var zero T
		return Ok(zero)
	}
	return Result[T]{Err: err, Status: err.Status, Meta: err.Meta}
}

// NotFound constructs the definitive missing-resource result.
func NotFound[T any](resource, id string) Result[T] {
	err := apperrors.NotFound("RESOURCE_NOT_FOUND", fmt.Sprintf("%s not found", resource))
	if id != "" {
		err.WithMeta("id", id)
	}
	return Fail[T](err)
}

// Timeout constructs the result for an operation that exceeded its budget.
// The outcome metadata records that the call may still have completed on
// the server side; callers must not treat a timeout as proof of non-effect.
func Timeout[T any](op string, after time.Duration) Result[T] {
	err := apperrors.Timeout("OPERATION_TIMEOUT",
		fmt.Sprintf("%s timed out after %s", op, after)).
		WithOp(op).
		WithMeta("timeout_ms", after.Milliseconds()).
		WithMeta("outcome", "unknown")
	return Fail[T](err)
}

// IsSuccess reports whether the payload branch is populated.
func (r Result[T]) IsSuccess() bool {
	return r.Status == apperrors.StatusOK
}

// IsError reports whether the error branch is populated.
func (r Result[T]) IsError() bool {
	return r.Status != apperrors.StatusOK
}

// ErrorMessage returns the human-readable error message, or "" on success.
func (r Result[T]) ErrorMessage() string {
	if r.Err == nil {
		return ""
	}
	return r.Err.Message
}
