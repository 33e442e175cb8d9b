// Package realtime manages change-feed subscriptions with bounded
// reconnection. Each subscription is scoped to one table and entity and
// walks Connecting -> Subscribed -> Reconnecting -> ... -> GivenUp.
package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"tickerdesk-backend/internal/observability"
	"tickerdesk-backend/internal/store"
)

// State is the lifecycle phase of a subscription.
type State string

const (
	StateConnecting   State = "connecting"
	StateSubscribed   State = "subscribed"
	StateReconnecting State = "reconnecting"
	StateGivenUp      State = "given_up"
	StateClosed       State = "closed"
)

// Options tune the reconnect policy.
type Options struct {
	// BaseDelay seeds the exponential backoff between reconnect attempts.
	BaseDelay time.Duration
	// MaxAttempts is the number of consecutive channel errors tolerated
	// before the subscription gives up.
	MaxAttempts int
}

// DefaultOptions match the reconnect policy used in production.
func DefaultOptions() Options {
	return Options{
		BaseDelay:   time.Second,
		MaxAttempts: 3,
	}
}

// Manager opens and supervises change-feed subscriptions. At most one
// subscription is active per (table, entity) pair; re-subscribing
// supersedes the previous handle.
type Manager struct {
	feed    store.ChangeFeed
	opts    Options
	logger  *zap.Logger
	metrics *observability.Metrics

	mu   sync.Mutex
	subs map[subKey]*Subscription
}

type subKey struct {
	table    string
	entityID string
}

// NewManager builds a subscription manager over the given change feed.
// metrics may be nil.
func NewManager(feed store.ChangeFeed, opts Options, logger *zap.Logger, metrics *observability.Metrics) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().BaseDelay
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	return &Manager{
		feed:    feed,
		opts:    opts,
		logger:  logger.Named("realtime"),
		metrics: metrics,
		subs:    make(map[subKey]*Subscription),
	}
}

// Subscribe opens a change-feed subscription for rows of table matching
// filter and delivers every event to onChange. The returned handle's
// Unsubscribe is idempotent. An existing subscription for the same
// (table, filter value) pair is torn down first.
func (m *Manager) Subscribe(ctx context.Context, table string, filter store.Filter, onChange func(store.ChangeEvent)) *Subscription {
	key := subKey{table: table, entityID: filter.Value}

	sub := &Subscription{
		manager:  m,
		key:      key,
		filter:   filter,
		onChange: onChange,
		state:    StateConnecting,
		logger:   m.logger.With(zap.String("table", table), zap.String("entity_id", filter.Value)),
	}
	sub.ctx, sub.cancel = context.WithCancel(ctx)

	m.mu.Lock()
	prev := m.subs[key]
	m.subs[key] = sub
	m.mu.Unlock()

	if prev != nil {
		prev.Unsubscribe()
	}

	go sub.connect()
	return sub
}

// Close tears down every active subscription.
func (m *Manager) Close() {
	m.mu.Lock()
	subs := make([]*Subscription, 0, len(m.subs))
	for _, s := range m.subs {
		subs = append(subs, s)
	}
	m.mu.Unlock()
	for _, s := range subs {
		s.Unsubscribe()
	}
}

func (m *Manager) forget(key subKey, sub *Subscription) {
	m.mu.Lock()
	if m.subs[key] == sub {
		delete(m.subs, key)
	}
	m.mu.Unlock()
}

// Subscription is one supervised change-feed handle.
type Subscription struct {
	manager  *Manager
	key      subKey
	filter   store.Filter
	onChange func(store.ChangeEvent)
	logger   *zap.Logger

	ctx    context.Context
	cancel context.CancelFunc
	once   sync.Once

	mu      sync.Mutex
	state   State
	attempt int
	channel store.Channel
	timer   *time.Timer
}

// State reports the current lifecycle phase.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Unsubscribe cancels any pending reconnect, closes the underlying
// channel, and removes the subscription from its manager. Safe to call
// more than once and after the subscription has given up.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.state = StateClosed
		if s.timer != nil {
			s.timer.Stop()
			s.timer = nil
		}
		ch := s.channel
		s.channel = nil
		s.mu.Unlock()
		if ch != nil {
			ch.Close()
		}
		s.manager.forget(s.key, s)
	})
}

func (s *Subscription) connect() {
	if s.ctx.Err() != nil {
		return
	}
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateGivenUp {
		s.mu.Unlock()
		return
	}
	s.state = StateConnecting
	s.mu.Unlock()

	ch, err := s.manager.feed.Open(s.ctx, s.key.table, s.filter, s.handleEvent, s.handleStatus)
	if err != nil {
		s.logger.Warn("channel open failed", zap.Error(err))
		s.handleError()
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		ch.Close()
		return
	}
	s.channel = ch
	s.mu.Unlock()
}

func (s *Subscription) handleEvent(ev store.ChangeEvent) {
	if s.ctx.Err() != nil {
		return
	}
	s.onChange(ev)
}

func (s *Subscription) handleStatus(status store.ChannelStatus) {
	switch status {
	case store.ChannelSubscribed:
		s.mu.Lock()
		if s.state == StateConnecting || s.state == StateReconnecting {
			s.state = StateSubscribed
			s.attempt = 0
		}
		s.mu.Unlock()
		s.logger.Debug("channel subscribed")
	case store.ChannelError:
		s.handleError()
	case store.ChannelClosed:
		// Expected during Unsubscribe; nothing to do.
	}
}

// handleError counts a consecutive failure and either schedules a
// backed-off reconnect or gives up once the attempt budget is spent.
func (s *Subscription) handleError() {
	s.mu.Lock()
	if s.state == StateClosed || s.state == StateGivenUp {
		s.mu.Unlock()
		return
	}
	if s.channel != nil {
		go s.channel.Close()
		s.channel = nil
	}
	s.attempt++
	if s.attempt >= s.manager.opts.MaxAttempts {
		s.state = StateGivenUp
		s.mu.Unlock()
		s.logger.Warn("giving up after repeated channel errors",
			zap.Int("attempts", s.manager.opts.MaxAttempts))
		s.manager.forget(s.key, s)
		return
	}
	s.state = StateReconnecting
	delay := s.manager.opts.BaseDelay * (1 << (s.attempt - 1))
	s.timer = time.AfterFunc(delay, s.connect)
	s.mu.Unlock()

	if s.manager.metrics != nil {
		s.manager.metrics.RealtimeReconnect.Inc()
	}
	s.logger.Info("channel error, reconnecting",
		zap.Int("attempt", s.attempt),
		zap.Duration("delay", delay))
}

// Key describes the subscription scope, useful in logs.
func (s *Subscription) Key() string {
	return fmt.Sprintf("%s:%s", s.key.table, s.key.entityID)
}
