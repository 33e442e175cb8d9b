// Package adapter selects between the real backend and the local fallback
// data source. The caller sees a single store.RowStore; source selection,
// failure bookkeeping, and degradation are handled here.
package adapter

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/observability"
	"tickerdesk-backend/internal/session"
	"tickerdesk-backend/internal/store"
)

// Source identifies which data source served an operation.
type Source string

const (
	SourceReal     Source = "real"
	SourceFallback Source = "fallback"
)

// Preference is the operator override for source selection.
type Preference string

const (
	PreferAuto     Preference = "auto"
	PreferReal     Preference = "real"
	PreferFallback Preference = "fallback"
)

// SessionProber reports session state without side effects. The session
// manager satisfies this.
type SessionProber interface {
	GetSessionInfo() session.Info
}

// Options tune source selection.
type Options struct {
	// FailureCooldown keeps traffic on the fallback source for this long
	// after a real-backend failure.
	FailureCooldown time.Duration
	// BreakerSettings guard the real source; zero-value fields get the
	// gobreaker defaults.
	BreakerName string
}

// DefaultOptions match the production selection policy.
func DefaultOptions() Options {
	return Options{
		FailureCooldown: 30 * time.Second,
		BreakerName:     "real-backend",
	}
}

// Status is a point-in-time report of the adapter, exposed for operators.
type Status struct {
	ActiveSource    Source     `json:"active_source"`
	Preference      Preference `json:"preference"`
	BreakerState    string     `json:"breaker_state"`
	LastFailureAt   *time.Time `json:"last_failure_at,omitempty"`
	LastFailure     string     `json:"last_failure,omitempty"`
	RealServed      int64      `json:"real_served"`
	FallbackServed  int64      `json:"fallback_served"`
	InCooldown      bool       `json:"in_cooldown"`
	CooldownSeconds float64    `json:"cooldown_seconds"`
}

// Adapter routes row operations to the real backend or the fallback
// source. It implements store.RowStore.
type Adapter struct {
	real     store.RowStore
	fallback store.RowStore
	sessions SessionProber
	opts     Options
	logger   *zap.Logger
	metrics  *observability.Metrics
	perf     *observability.PerformanceTracker
	breaker  *gobreaker.CircuitBreaker
	now      func() time.Time

	mu             sync.Mutex
	preference     Preference
	lastFailureAt  time.Time
	lastFailure    string
	realServed     int64
	fallbackServed int64
}

// New builds an adapter over the two sources. sessions, metrics, and perf
// may be nil.
func New(real, fallback store.RowStore, sessions SessionProber, opts Options,
	logger *zap.Logger, metrics *observability.Metrics, perf *observability.PerformanceTracker) *Adapter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.FailureCooldown <= 0 {
		opts.FailureCooldown = DefaultOptions().FailureCooldown
	}
	if opts.BreakerName == "" {
		opts.BreakerName = DefaultOptions().BreakerName
	}
	a := &Adapter{
		real:       real,
		fallback:   fallback,
		sessions:   sessions,
		opts:       opts,
		logger:     logger.Named("adapter"),
		metrics:    metrics,
		perf:       perf,
		now:        time.Now,
		preference: PreferAuto,
	}
	a.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name: opts.BreakerName,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		Timeout: opts.FailureCooldown,
		OnStateChange: func(name string, from, to gobreaker.State) {
			a.logger.Warn("breaker state changed",
				zap.String("breaker", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
		},
		// Permission and validation outcomes are the backend working as
		// intended; only availability failures count against the breaker.
		IsSuccessful: func(err error) bool {
			return err == nil || isDefinitive(err)
		},
	})
	return a
}

// SetPreference overrides automatic source selection. PreferAuto restores
// it.
func (a *Adapter) SetPreference(p Preference) {
	a.mu.Lock()
	a.preference = p
	a.mu.Unlock()
	a.logger.Info("source preference set", zap.String("preference", string(p)))
}

// Status reports the adapter's current selection state and counters.
func (a *Adapter) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	st := Status{
		ActiveSource:    a.determineLocked(),
		Preference:      a.preference,
		BreakerState:    a.breaker.State().String(),
		LastFailure:     a.lastFailure,
		RealServed:      a.realServed,
		FallbackServed:  a.fallbackServed,
		InCooldown:      a.inCooldownLocked(),
		CooldownSeconds: a.opts.FailureCooldown.Seconds(),
	}
	if !a.lastFailureAt.IsZero() {
		t := a.lastFailureAt
		st.LastFailureAt = &t
	}
	return st
}

// DetermineSource reports which source the next operation would use.
func (a *Adapter) DetermineSource() Source {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.determineLocked()
}

func (a *Adapter) inCooldownLocked() bool {
	return !a.lastFailureAt.IsZero() && a.now().Sub(a.lastFailureAt) < a.opts.FailureCooldown
}

// determineLocked applies the selection order: explicit preference, then
// recent-failure cooldown, then breaker state, then session probe.
func (a *Adapter) determineLocked() Source {
	switch a.preference {
	case PreferReal:
		return SourceReal
	case PreferFallback:
		return SourceFallback
	}
	if a.inCooldownLocked() {
		return SourceFallback
	}
	if a.breaker.State() == gobreaker.StateOpen {
		return SourceFallback
	}
	if a.sessions != nil {
		switch a.sessions.GetSessionInfo().State {
		case session.StateValid, session.StateExpiringSoon, session.StateRefreshing:
			return SourceReal
		default:
			return SourceFallback
		}
	}
	return SourceReal
}

func (a *Adapter) recordFailure(op string, err error) {
	a.mu.Lock()
	a.lastFailureAt = a.now()
	a.lastFailure = err.Error()
	a.mu.Unlock()
	a.logger.Warn("real source failed, serving fallback",
		zap.String("operation", op), zap.Error(err))
}

func (a *Adapter) noteServed(op string, src Source, start time.Time, failed bool) {
	a.mu.Lock()
	if src == SourceReal {
		a.realServed++
	} else {
		a.fallbackServed++
	}
	a.mu.Unlock()
	if a.perf != nil {
		a.perf.Record(op, time.Since(start), failed)
	}
	if src == SourceFallback && a.metrics != nil {
		a.metrics.FallbackTotal.WithLabelValues(op).Inc()
	}
}

// isDefinitive reports whether err is a client-level outcome that must
// reach the caller unchanged. Serving fallback data for these would mask
// auth and permission failures instead of degrading availability.
func isDefinitive(err error) bool {
	switch apperrors.StatusOf(apperrors.Classify(err)) {
	case apperrors.StatusUnauthorized, apperrors.StatusForbidden,
		apperrors.StatusNotFound, apperrors.StatusValidation:
		return true
	}
	return false
}

// do runs one row operation: try the real source when selected, fall back
// transparently on availability failure so the caller always gets usable
// data. Definitive client errors propagate.
func (a *Adapter) do(ctx context.Context, op string,
	realCall, fallbackCall func(store.RowStore) (any, error)) (any, error) {
	start := a.now()
	if a.DetermineSource() == SourceReal {
		out, err := a.breaker.Execute(func() (any, error) {
			return realCall(a.real)
		})
		if err == nil {
			a.noteServed(op, SourceReal, start, false)
			return out, nil
		}
		if isDefinitive(err) {
			a.noteServed(op, SourceReal, start, true)
			return nil, err
		}
		a.recordFailure(op, err)
	}
	out, err := fallbackCall(a.fallback)
	a.noteServed(op, SourceFallback, start, err != nil)
	return out, err
}

func (a *Adapter) Select(ctx context.Context, table string, filters ...store.Filter) ([]store.Row, error) {
	call := func(s store.RowStore) (any, error) { return s.Select(ctx, table, filters...) }
	out, err := a.do(ctx, "select."+table, call, call)
	if err != nil {
		return nil, err
	}
	return out.([]store.Row), nil
}

func (a *Adapter) Insert(ctx context.Context, table string, row store.Row) (store.Row, error) {
	call := func(s store.RowStore) (any, error) { return s.Insert(ctx, table, row) }
	out, err := a.do(ctx, "insert."+table, call, call)
	if err != nil {
		return nil, err
	}
	return out.(store.Row), nil
}

func (a *Adapter) Update(ctx context.Context, table string, changes store.Row, filters ...store.Filter) ([]store.Row, error) {
	call := func(s store.RowStore) (any, error) { return s.Update(ctx, table, changes, filters...) }
	out, err := a.do(ctx, "update."+table, call, call)
	if err != nil {
		return nil, err
	}
	return out.([]store.Row), nil
}

func (a *Adapter) Delete(ctx context.Context, table string, filters ...store.Filter) error {
	call := func(s store.RowStore) (any, error) { return nil, s.Delete(ctx, table, filters...) }
	_, err := a.do(ctx, "delete."+table, call, call)
	return err
}
