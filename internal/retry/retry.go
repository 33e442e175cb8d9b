// Package retry provides the one retry policy and combinator shared by the
// query executor, the session manager, and the realtime reconnect loop.
package retry

import (
	"context"
	"math"
	"math/rand"
	"time"

	"go.uber.org/zap"

	apperrors "tickerdesk-backend/internal/errors"
)

// Policy configures retry behavior: bounded attempts, exponential backoff
// with jitter, and a ceiling on the delay.
type Policy struct {
	MaxAttempts   int
	BaseDelay     time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
	JitterFactor  float64
}

// DefaultPolicy returns the defaults used by backend calls.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts:   3,
		BaseDelay:     100 * time.Millisecond,
		MaxDelay:      5 * time.Second,
		BackoffFactor: 2.0,
		JitterFactor:  0.1,
	}
}

// Delay computes the backoff delay for a zero-based attempt number.
func (p Policy) Delay(attempt int) time.Duration {
	backoff := float64(p.BaseDelay) * math.Pow(p.BackoffFactor, float64(attempt))
	jitter := backoff * p.JitterFactor * (rand.Float64() - 0.5) * 2
	delay := time.Duration(backoff + jitter)
	if delay > p.MaxDelay {
		delay = p.MaxDelay
	}
	if delay < 0 {
		delay = 0
	}
	return delay
}

// Do executes fn up to MaxAttempts times, sleeping the policy delay between
// attempts. Non-retryable errors stop immediately; context cancellation is
// honored during waits. Each retry is logged with its attempt count.
func Do(ctx context.Context, p Policy, logger *zap.Logger, op string, fn func(context.Context) error) error {
	if logger == nil {
		logger = zap.NewNop()
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !apperrors.IsRetryable(err) {
			return err
		}
		if attempt == p.MaxAttempts-1 {
			break
		}

		delay := p.Delay(attempt)
		logger.Warn("operation failed, retrying",
			zap.String("operation", op),
			zap.Int("attempt", attempt+1),
			zap.Int("max_attempts", p.MaxAttempts),
			zap.Duration("delay", delay),
			zap.Error(err),
		)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return apperrors.Wrap(lastErr, op, "retries exhausted").
		WithMeta("attempts", p.MaxAttempts)
}
