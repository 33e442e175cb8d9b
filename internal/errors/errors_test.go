package errors

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassify_BackendCodes(t *testing.T) {
	tests := []struct {
		name string
		code string
		want Status
	}{
		{"rls denial maps to forbidden", "42501", StatusForbidden},
		{"missing row maps to not found", "PGRST116", StatusNotFound},
		{"stale jwt maps to unauthorized", "PGRST301", StatusUnauthorized},
		{"invalid jwt maps to unauthorized", "PGRST302", StatusUnauthorized},
		{"unique violation maps to validation", "23505", StatusValidation},
		{"foreign key violation maps to validation", "23503", StatusValidation},
		{"invalid text maps to validation", "22P02", StatusValidation},
		{"unrecognized code maps to server error", "XX000", StatusServerError},
		{"empty code maps to server error", "", StatusServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Classify(&BackendError{Code: tt.code, Message: "boom"})
			require.NotNil(t, err)
			assert.Equal(t, tt.want, err.Status)
			assert.Equal(t, tt.code, err.Code)
		})
	}
}

func TestClassify_ContextErrors(t *testing.T) {
	assert.Equal(t, StatusTimeout, Classify(context.DeadlineExceeded).Status)
	assert.Equal(t, StatusTimeout, Classify(context.Canceled).Status)
}

func TestClassify_PassesThroughTaxonomyErrors(t *testing.T) {
	orig := Forbidden("42501", "row access denied")
	got := Classify(fmt.Errorf("query failed: %w", orig))
	assert.Same(t, orig, got)
}

func TestClassify_UnknownError(t *testing.T) {
	err := Classify(errors.New("something odd"))
	assert.Equal(t, StatusServerError, err.Status)
	assert.Equal(t, "UNKNOWN", err.Code)
}

func TestWrap_PreservesStatus(t *testing.T) {
	inner := NotFound("PGRST116", "watchlist missing").WithMeta("id", "w1")
	wrapped := Wrap(inner, "GetWatchlist", "lookup failed")

	assert.Equal(t, StatusNotFound, wrapped.Status)
	assert.Equal(t, "GetWatchlist", wrapped.Op)
	assert.Equal(t, "w1", wrapped.Meta["id"])
	assert.True(t, errors.Is(wrapped, inner))
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(nil, "op", "msg"))
}

func TestIsRetryable(t *testing.T) {
	assert.True(t, IsRetryable(Server("X", "x")))
	assert.True(t, IsRetryable(Timeout("X", "x")))
	assert.False(t, IsRetryable(Validation("X", "x")))
	assert.False(t, IsRetryable(NotFound("X", "x")))
	assert.False(t, IsRetryable(Forbidden("X", "x")))
	assert.False(t, IsRetryable(Unauthorized("X", "x")))
	assert.False(t, IsRetryable(nil))
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, StatusOK, StatusOf(nil))
	assert.Equal(t, StatusServerError, StatusOf(errors.New("raw")))
	assert.Equal(t, StatusValidation, StatusOf(Validation("DUP", "duplicate")))
}
