// Package session tracks the authoritative session for this process and
// keeps its token fresh: proactive renewal before expiry, a single
// in-flight refresh shared by all concurrent callers, and cross-process
// coordination so only one cooperating process hits the network per
// refresh window.
package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/retry"
	"tickerdesk-backend/internal/store"
)

// State is the session lifecycle state.
type State string

const (
	StateUnknown      State = "UNKNOWN"
	StateValid        State = "VALID"
	StateExpiringSoon State = "EXPIRING_SOON"
	StateRefreshing   State = "REFRESHING"
	StateInvalid      State = "INVALID"
)

// Info is the non-blocking session snapshot returned to callers. Reading
// it never triggers a refresh.
type Info struct {
	State       State
	UserID      string
	Email       string
	ExpiresAt   int64
	ExpiresIn   time.Duration
	IsValid     bool
	LastRefresh time.Time
}

// Options configures the manager.
type Options struct {
	// CheckInterval is how often the background loop inspects expiry.
	CheckInterval time.Duration
	// RefreshThreshold is how close to expiry a proactive refresh starts.
	RefreshThreshold time.Duration
	// LockTTL bounds how long a crashed process can hold the refresh lock.
	LockTTL time.Duration
	// CoordDir enables cross-process coordination when non-empty.
	CoordDir string
	// RetryPolicy governs refresh network attempts.
	RetryPolicy retry.Policy
}

// DefaultOptions returns production defaults.
func DefaultOptions() Options {
	return Options{
		CheckInterval:    120 * time.Second,
		RefreshThreshold: 300 * time.Second,
		LockTTL:          10 * time.Second,
		RetryPolicy: retry.Policy{
			MaxAttempts:   3,
			BaseDelay:     500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			BackoffFactor: 2.0,
			JitterFactor:  0.1,
		},
	}
}

type inflight struct {
	done chan struct{}
	ok   bool
}

// Manager owns the one authoritative session of this process. Constructed
// once at application start and closed at shutdown.
type Manager struct {
	api    store.SessionAPI
	opts   Options
	logger *zap.Logger
	coord  *coordinator
	now    func() time.Time

	mu       sync.Mutex
	current  *store.Session
	invalid  bool
	refresh  *inflight
	stopOnce sync.Once
	stopCh   chan struct{}
}

// NewManager creates a Manager. The coordination directory is created when
// configured; pass an empty CoordDir for single-process operation.
func NewManager(api store.SessionAPI, opts Options, logger *zap.Logger) (*Manager, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("session")

	m := &Manager{
		api:    api,
		opts:   opts,
		logger: logger,
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	if opts.CoordDir != "" {
		coord, err := newCoordinator(opts.CoordDir, opts.LockTTL, logger)
		if err != nil {
			return nil, err
		}
		m.coord = coord
	}
	return m, nil
}

// Start launches the proactive refresh loop and, when coordination is
// enabled, the cross-process refresh-request watcher.
func (m *Manager) Start() {
	go m.checkLoop()
	if m.coord != nil {
		go m.coord.watchRequests(func() {
			m.logger.Info("refresh requested by another process")
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			m.RefreshToken(ctx)
		})
	}
}

// Close stops background work. Idempotent.
func (m *Manager) Close() {
	m.stopOnce.Do(func() {
		close(m.stopCh)
		if m.coord != nil {
			m.coord.close()
		}
	})
}

// SignIn authenticates against the backend and installs the session.
func (m *Manager) SignIn(ctx context.Context, email, password string) error {
	if m.api == nil {
		return apperrors.Unauthorized("NO_BACKEND", "no authentication backend configured")
	}
	s, err := m.api.SignIn(ctx, email, password)
	if err != nil {
		return apperrors.Wrap(err, "session.SignIn", "sign in failed")
	}
	m.adopt(s)
	return nil
}

// SignOut revokes the session with the backend and destroys local state.
// Local state is cleared even when revocation fails.
func (m *Manager) SignOut(ctx context.Context) error {
	m.mu.Lock()
	current := m.current
	m.current = nil
	m.invalid = false
	m.mu.Unlock()

	if current == nil || m.api == nil {
		return nil
	}
	if err := m.api.SignOut(ctx, current.AccessToken); err != nil {
		return apperrors.Wrap(err, "session.SignOut", "sign out failed")
	}
	return nil
}

// SetSession installs an externally obtained session (for example one
// carried on an incoming request). Expiry never moves backwards.
func (m *Manager) SetSession(s *store.Session) {
	m.adopt(s)
}

// AccessToken returns the current token, or "" when unauthenticated.
// Implements the row store's token source.
func (m *Manager) AccessToken() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.current == nil {
		return ""
	}
	return m.current.AccessToken
}

// GetSessionInfo reports the session state without side effects.
func (m *Manager) GetSessionInfo() Info {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.refresh != nil {
		info := m.infoLocked()
		info.State = StateRefreshing
		return info
	}
	return m.infoLocked()
}

func (m *Manager) infoLocked() Info {
	if m.current == nil {
		state := StateUnknown
		if m.invalid {
			state = StateInvalid
		}
		return Info{State: state}
	}

	expiresIn := time.Unix(m.current.ExpiresAt, 0).Sub(m.now())
	info := Info{
		UserID:      m.current.UserID,
		Email:       m.current.Email,
		ExpiresAt:   m.current.ExpiresAt,
		ExpiresIn:   expiresIn,
		IsValid:     expiresIn > 0,
		LastRefresh: time.Unix(m.current.LastRefresh, 0),
	}
	switch {
	case m.invalid:
		info.State = StateInvalid
		info.IsValid = false
	case expiresIn <= 0:
		info.State = StateInvalid
	case expiresIn < m.opts.RefreshThreshold:
		info.State = StateExpiringSoon
	default:
		info.State = StateValid
	}
	return info
}

// RefreshToken renews the session token. Concurrent callers within this
// process share one refresh: all of them block on the same in-flight
// operation and receive its outcome. Returns false when the session cannot
// be refreshed; it never panics past its boundary.
func (m *Manager) RefreshToken(ctx context.Context) bool {
	m.mu.Lock()
	if fl := m.refresh; fl != nil {
		m.mu.Unlock()
		select {
		case <-fl.done:
			return fl.ok
		case <-ctx.Done():
			return false
		}
	}
	fl := &inflight{done: make(chan struct{})}
	m.refresh = fl
	m.mu.Unlock()

	fl.ok = m.doRefresh(ctx)
	m.mu.Lock()
	m.refresh = nil
	m.mu.Unlock()
	close(fl.done)
	return fl.ok
}

// RequestRefreshAcrossProcesses asks every cooperating process to refresh,
// then refreshes locally. Only the lock winner performs the network call.
func (m *Manager) RequestRefreshAcrossProcesses(ctx context.Context) bool {
	if m.coord != nil {
		if err := m.coord.requestRefresh(); err != nil {
			m.logger.Warn("failed to broadcast refresh request", zap.Error(err))
		}
	}
	return m.RefreshToken(ctx)
}

func (m *Manager) doRefresh(ctx context.Context) bool {
	m.mu.Lock()
	current := m.current
	m.mu.Unlock()
	if current == nil || m.api == nil {
		return false
	}

	if m.coord != nil && !m.coord.lock.TryAcquire() {
		// Another process holds the lock and is refreshing. Observe its
		// completion broadcast and adopt the result locally instead of
		// issuing a second network call. If the holder crashes, the lock
		// TTL frees it and we take over.
		waitStart := m.now()
		if s, ok := m.coord.waitForCompletion(ctx, waitStart, m.opts.LockTTL); ok {
			m.adopt(s)
			return true
		}
		if !m.coord.lock.TryAcquire() {
			m.logger.Warn("refresh lock still held after wait, giving up this attempt")
			return false
		}
	}
	if m.coord != nil {
		defer m.coord.lock.Release()
	}

	var refreshed *store.Session
	err := retry.Do(ctx, m.opts.RetryPolicy, m.logger, "session.refresh", func(ctx context.Context) error {
		s, err := m.api.Refresh(ctx, current.RefreshToken)
		if err != nil {
			return err
		}
		refreshed = s
		return nil
	})
	if err != nil {
		m.logger.Error("session refresh failed, session is now invalid", zap.Error(err))
		m.mu.Lock()
		m.invalid = true
		m.mu.Unlock()
		return false
	}

	m.adopt(refreshed)
	if m.coord != nil {
		if err := m.coord.broadcastComplete(refreshed); err != nil {
			m.logger.Warn("failed to broadcast refresh completion", zap.Error(err))
		}
		if err := m.coord.writeBackup(refreshed); err != nil {
			m.logger.Warn("failed to write session backup", zap.Error(err))
		}
	}
	m.logger.Info("session refreshed",
		zap.String("user_id", refreshed.UserID),
		zap.Int64("expires_at", refreshed.ExpiresAt),
	)
	return true
}

// adopt installs a session snapshot, enforcing monotonically non-decreasing
// expiry so a stale cross-process broadcast can never roll the session back.
func (m *Manager) adopt(s *store.Session) {
	if s == nil {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil && s.ExpiresAt < m.current.ExpiresAt {
		m.logger.Debug("ignoring session snapshot with earlier expiry",
			zap.Int64("current", m.current.ExpiresAt),
			zap.Int64("offered", s.ExpiresAt),
		)
		return
	}
	copied := *s
	m.current = &copied
	m.invalid = false
}

func (m *Manager) checkLoop() {
	ticker := time.NewTicker(m.opts.CheckInterval)
	defer ticker.Stop()

	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			info := m.GetSessionInfo()
			if info.State != StateExpiringSoon {
				continue
			}
			m.logger.Info("session expiring soon, refreshing proactively",
				zap.Duration("expires_in", info.ExpiresIn),
			)
			ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			m.RefreshToken(ctx)
			cancel()
		}
	}
}
