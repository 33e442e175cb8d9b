package executor

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/observability"
)

type fakeRefresher struct {
	calls int32
	ok    bool
}

func (f *fakeRefresher) RefreshToken(ctx context.Context) bool {
	atomic.AddInt32(&f.calls, 1)
	return f.ok
}

func fastPolicy() Policy {
	return Policy{MaxRetries: 2, RetryDelay: time.Millisecond, Timeout: time.Second}
}

func TestExecute_Success(t *testing.T) {
	e := New(nil, nil, nil)

	res := Execute(context.Background(), e, "op", fastPolicy(),
		func(context.Context) (string, error) { return "hello", nil })

	require.True(t, res.IsSuccess())
	assert.Equal(t, "hello", res.Data)
}

func TestExecute_UnauthorizedTriggersExactlyOneRefreshThenSucceeds(t *testing.T) {
	refresher := &fakeRefresher{ok: true}
	e := New(refresher, nil, nil)

	calls := 0
	res := Execute(context.Background(), e, "op", fastPolicy(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &apperrors.BackendError{Code: "PGRST301", Message: "JWT expired"}
		}
		return "fresh", nil
	})

	require.True(t, res.IsSuccess())
	assert.Equal(t, "fresh", res.Data)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refresher.calls))
}

func TestExecute_UnauthorizedAfterFailedRefreshSurfacesUnauthorized(t *testing.T) {
	refresher := &fakeRefresher{ok: false}
	e := New(refresher, nil, nil)

	calls := 0
	res := Execute(context.Background(), e, "op", fastPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, &apperrors.BackendError{Code: "PGRST301", Message: "JWT expired"}
	})

	assert.Equal(t, apperrors.StatusUnauthorized, res.Status)
	assert.Equal(t, 1, calls)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refresher.calls))
}

func TestExecute_UnauthorizedRefreshedOnlyOnce(t *testing.T) {
	refresher := &fakeRefresher{ok: true}
	e := New(refresher, nil, nil)

	calls := 0
	res := Execute(context.Background(), e, "op", fastPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, &apperrors.BackendError{Code: "PGRST301", Message: "JWT expired"}
	})

	assert.Equal(t, apperrors.StatusUnauthorized, res.Status)
	assert.Equal(t, 2, calls)
	assert.Equal(t, int32(1), atomic.LoadInt32(&refresher.calls))
}

func TestExecute_DefinitiveStatusesAreNotRetried(t *testing.T) {
	tests := []struct {
		name string
		code string
		want apperrors.Status
	}{
		{"not found", "PGRST116", apperrors.StatusNotFound},
		{"validation", "23505", apperrors.StatusValidation},
		{"forbidden", "42501", apperrors.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := New(nil, nil, nil)
			calls := 0
			res := Execute(context.Background(), e, "op", fastPolicy(), func(context.Context) (int, error) {
				calls++
				return 0, &apperrors.BackendError{Code: tt.code, Message: "definitive"}
			})

			assert.Equal(t, tt.want, res.Status)
			assert.Equal(t, 1, calls, "definitive errors must not be retried")
		})
	}
}

func TestExecute_ServerErrorsRetriedUpToBudget(t *testing.T) {
	e := New(nil, nil, nil)

	calls := 0
	res := Execute(context.Background(), e, "op", fastPolicy(), func(context.Context) (int, error) {
		calls++
		return 0, &apperrors.BackendError{Code: "XX000", Message: "backend exploded"}
	})

	assert.Equal(t, apperrors.StatusServerError, res.Status)
	assert.Equal(t, 3, calls) // first attempt + MaxRetries
	assert.Equal(t, 3, res.Meta["attempts"])
}

func TestExecute_TransientFailureThenSuccess(t *testing.T) {
	e := New(nil, nil, nil)

	calls := 0
	res := Execute(context.Background(), e, "op", fastPolicy(), func(context.Context) (string, error) {
		calls++
		if calls == 1 {
			return "", &apperrors.BackendError{Code: "XX000", Message: "hiccup"}
		}
		return "ok", nil
	})

	require.True(t, res.IsSuccess())
	assert.Equal(t, 2, calls)
}

func TestExecute_TimeoutBoundIsRespected(t *testing.T) {
	e := New(nil, nil, nil)
	p := Policy{MaxRetries: 3, RetryDelay: time.Millisecond, Timeout: 50 * time.Millisecond}

	started := time.Now()
	res := Execute(context.Background(), e, "op", p, func(ctx context.Context) (int, error) {
		<-ctx.Done() // never resolves on its own
		return 0, ctx.Err()
	})
	elapsed := time.Since(started)

	assert.Equal(t, apperrors.StatusTimeout, res.Status)
	assert.Less(t, elapsed, 500*time.Millisecond,
		"timeout result must arrive promptly after the deadline, not after retries")
	assert.Equal(t, "unknown", res.Meta["outcome"])
}

func TestExecute_RecordsPerformance(t *testing.T) {
	perf := observability.NewPerformanceTracker()
	e := New(nil, perf, nil)

	Execute(context.Background(), e, "ListWatchlists", fastPolicy(),
		func(context.Context) (int, error) { return 1, nil })
	Execute(context.Background(), e, "ListWatchlists", fastPolicy(),
		func(context.Context) (int, error) {
			return 0, &apperrors.BackendError{Code: "XX000", Message: "boom"}
		})

	stats := perf.Snapshot()["ListWatchlists"]
	assert.Equal(t, int64(2), stats.Calls)
	assert.Equal(t, int64(1), stats.Errors)
}
