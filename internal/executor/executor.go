// Package executor wraps every backend call with the engine's resilience
// policy: a hard per-call timeout, classification of failures, a single
// refresh-and-retry on unauthorized, and bounded retries for transient
// classes. Callers always receive a Result; the executor never throws past
// its boundary.
package executor

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/observability"
	"tickerdesk-backend/internal/result"
)

// Policy bounds one execution.
type Policy struct {
	MaxRetries int           // retries after the first attempt, transient classes only
	RetryDelay time.Duration // fixed delay between transient retries
	Timeout    time.Duration // per-attempt deadline
}

// DefaultPolicy returns the defaults used by the entity services.
func DefaultPolicy() Policy {
	return Policy{
		MaxRetries: 2,
		RetryDelay: 250 * time.Millisecond,
		Timeout:    10 * time.Second,
	}
}

// TokenRefresher is the slice of the session manager the executor needs.
type TokenRefresher interface {
	RefreshToken(ctx context.Context) bool
}

// Executor executes backend calls under a resilience policy. Constructed
// once at application start and shared by all services.
type Executor struct {
	sessions TokenRefresher
	perf     *observability.PerformanceTracker
	logger   *zap.Logger
	tracer   trace.Tracer
}

// New creates an Executor. perf may be nil when metrics are disabled.
func New(sessions TokenRefresher, perf *observability.PerformanceTracker, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Executor{
		sessions: sessions,
		perf:     perf,
		logger:   logger.Named("executor"),
		tracer:   otel.Tracer("tickerdesk/executor"),
	}
}

type outcome[T any] struct {
	value T
	err   error
}

// Execute runs call under the policy and funnels every branch through the
// Result constructors.
//
// A timed-out call may still complete on the server; its Result says so in
// metadata, and the abandoned goroutine is left to finish against the
// original call's own context.
func Execute[T any](ctx context.Context, e *Executor, op string, p Policy, call func(context.Context) (T, error)) result.Result[T] {
	ctx, span := e.tracer.Start(ctx, op)
	defer span.End()

	started := time.Now()
	res := e.run(ctx, op, p, wrap(call))
	if e.perf != nil {
		e.perf.Record(op, time.Since(started), res.IsError())
	}
	span.SetAttributes(
		attribute.String("result.status", string(res.Status)),
	)

	typed, ok := res.Data.(T)
	if res.IsSuccess() && ok {
		return result.OkMeta(typed, res.Meta)
	}
	if res.IsSuccess() {
		// call returned an untyped nil; hand back the zero value
		var zero T
		return result.OkMeta(zero, res.Meta)
	}
	return result.Fail[T](res.Err)
}

func wrap[T any](call func(context.Context) (T, error)) func(context.Context) (any, error) {
	return func(ctx context.Context) (any, error) {
		return call(ctx)
	}
}

// run is the untyped core so the retry loop is written once.
func (e *Executor) run(ctx context.Context, op string, p Policy, call func(context.Context) (any, error)) result.Result[any] {
	refreshed := false

	for attempt := 0; ; attempt++ {
		value, err := e.attempt(ctx, p.Timeout, call)
		if err == nil {
			return result.Ok(value)
		}
		if isAttemptTimeout(err) {
			return result.Timeout[any](op, p.Timeout)
		}

		classified := apperrors.Classify(err)
		switch classified.Status {
		case apperrors.StatusUnauthorized:
			// A stale token is recoverable exactly once: refresh, retry.
			if !refreshed && e.sessions != nil {
				refreshed = true
				if e.sessions.RefreshToken(ctx) {
					e.logger.Info("token refreshed, retrying operation",
						zap.String("operation", op))
					continue
				}
			}
			return result.Fail[any](classified.WithOp(op))

		case apperrors.StatusNotFound, apperrors.StatusValidation, apperrors.StatusForbidden:
			// Definitive: never retried.
			return result.Fail[any](classified.WithOp(op))

		default: // server error or a timeout bubbled up from inside the call
			if attempt >= p.MaxRetries {
				return result.Fail[any](classified.WithOp(op).
					WithMeta("attempts", attempt+1))
			}
			e.logger.Warn("backend call failed, retrying",
				zap.String("operation", op),
				zap.Int("attempt", attempt+1),
				zap.Int("max_retries", p.MaxRetries),
				zap.Error(err),
			)
			select {
			case <-ctx.Done():
				return result.Fail[any](apperrors.Classify(ctx.Err()).WithOp(op))
			case <-time.After(p.RetryDelay):
			}
		}
	}
}

// attemptTimeout marks a deadline raised by this executor's own race, as
// opposed to a timeout bubbled up from inside the call.
type attemptTimeout struct{}

func (attemptTimeout) Error() string { return "attempt timed out" }

func isAttemptTimeout(err error) bool {
	_, ok := err.(attemptTimeout)
	return ok
}

// attempt races the call against the per-attempt deadline.
func (e *Executor) attempt(ctx context.Context, timeout time.Duration, call func(context.Context) (any, error)) (any, error) {
	if timeout <= 0 {
		return call(ctx)
	}

	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan outcome[any], 1)
	go func() {
		v, err := call(attemptCtx)
		ch <- outcome[any]{value: v, err: err}
	}()

	select {
	case <-attemptCtx.Done():
		return nil, attemptTimeout{}
	case o := <-ch:
		return o.value, o.err
	}
}
