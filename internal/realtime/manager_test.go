package realtime

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tickerdesk-backend/internal/store"
)

type fakeChannel struct {
	closed atomic.Int32
}

func (c *fakeChannel) Close() error {
	c.closed.Add(1)
	return nil
}

// fakeFeed hands out channels and lets the test drive status callbacks.
type fakeFeed struct {
	mu       sync.Mutex
	opens    int
	openErr  error
	onEvent  func(store.ChangeEvent)
	onStatus func(store.ChannelStatus)
	channels []*fakeChannel
}

func (f *fakeFeed) Open(_ context.Context, _ string, _ store.Filter,
	onEvent func(store.ChangeEvent), onStatus func(store.ChannelStatus)) (store.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opens++
	if f.openErr != nil {
		return nil, f.openErr
	}
	f.onEvent = onEvent
	f.onStatus = onStatus
	ch := &fakeChannel{}
	f.channels = append(f.channels, ch)
	return ch, nil
}

func (f *fakeFeed) openCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opens
}

func (f *fakeFeed) emitStatus(s store.ChannelStatus) {
	f.mu.Lock()
	cb := f.onStatus
	f.mu.Unlock()
	cb(s)
}

func (f *fakeFeed) emitEvent(ev store.ChangeEvent) {
	f.mu.Lock()
	cb := f.onEvent
	f.mu.Unlock()
	cb(ev)
}

func testOptions() Options {
	return Options{BaseDelay: time.Millisecond, MaxAttempts: 3}
}

func waitForState(t *testing.T, sub *Subscription, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if sub.State() == want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("subscription never reached %s, stuck at %s", want, sub.State())
}

func waitForOpens(t *testing.T, feed *fakeFeed, want int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if feed.openCount() >= want {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatalf("feed opened %d times, want %d", feed.openCount(), want)
}

func TestSubscribe_DeliversEvents(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, testOptions(), zap.NewNop(), nil)
	defer m.Close()

	var got atomic.Int32
	sub := m.Subscribe(context.Background(), "watchlists", store.Filter{Column: "id", Value: "wl-1"},
		func(store.ChangeEvent) { got.Add(1) })

	waitForOpens(t, feed, 1)
	feed.emitStatus(store.ChannelSubscribed)
	waitForState(t, sub, StateSubscribed)

	feed.emitEvent(store.ChangeEvent{Type: store.EventUpdate, Table: "watchlists"})
	assert.Equal(t, int32(1), got.Load())
}

func TestSubscribe_GivesUpAfterConsecutiveErrors(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, testOptions(), zap.NewNop(), nil)
	defer m.Close()

	sub := m.Subscribe(context.Background(), "notes", store.Filter{Column: "id", Value: "n-1"},
		func(store.ChangeEvent) {})

	waitForOpens(t, feed, 1)
	feed.emitStatus(store.ChannelError)
	waitForOpens(t, feed, 2)
	feed.emitStatus(store.ChannelError)
	waitForOpens(t, feed, 3)
	feed.emitStatus(store.ChannelError)

	waitForState(t, sub, StateGivenUp)

	// No further reconnect may be scheduled after giving up.
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 3, feed.openCount())
}

func TestSubscribe_SuccessResetsAttemptCounter(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, testOptions(), zap.NewNop(), nil)
	defer m.Close()

	sub := m.Subscribe(context.Background(), "notes", store.Filter{Column: "id", Value: "n-2"},
		func(store.ChangeEvent) {})

	waitForOpens(t, feed, 1)
	feed.emitStatus(store.ChannelError)
	waitForOpens(t, feed, 2)
	feed.emitStatus(store.ChannelError)
	waitForOpens(t, feed, 3)
	feed.emitStatus(store.ChannelSubscribed)
	waitForState(t, sub, StateSubscribed)

	// A fresh error after recovery starts the budget over instead of
	// tipping straight into given-up.
	feed.emitStatus(store.ChannelError)
	waitForOpens(t, feed, 4)
	assert.NotEqual(t, StateGivenUp, sub.State())
}

func TestUnsubscribe_Idempotent(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, testOptions(), zap.NewNop(), nil)

	sub := m.Subscribe(context.Background(), "watchlists", store.Filter{Column: "id", Value: "wl-2"},
		func(store.ChangeEvent) {})
	waitForOpens(t, feed, 1)
	feed.emitStatus(store.ChannelSubscribed)
	waitForState(t, sub, StateSubscribed)

	sub.Unsubscribe()
	sub.Unsubscribe()
	assert.Equal(t, StateClosed, sub.State())

	require.Len(t, feed.channels, 1)
	deadline := time.Now().Add(time.Second)
	for feed.channels[0].closed.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	assert.Equal(t, int32(1), feed.channels[0].closed.Load())
}

func TestSubscribe_SupersedesPreviousHandle(t *testing.T) {
	feed := &fakeFeed{}
	m := NewManager(feed, testOptions(), zap.NewNop(), nil)
	defer m.Close()

	first := m.Subscribe(context.Background(), "watchlists", store.Filter{Column: "id", Value: "wl-3"},
		func(store.ChangeEvent) {})
	waitForOpens(t, feed, 1)
	feed.emitStatus(store.ChannelSubscribed)
	waitForState(t, first, StateSubscribed)

	second := m.Subscribe(context.Background(), "watchlists", store.Filter{Column: "id", Value: "wl-3"},
		func(store.ChangeEvent) {})
	waitForState(t, first, StateClosed)
	waitForOpens(t, feed, 2)
	feed.emitStatus(store.ChannelSubscribed)
	waitForState(t, second, StateSubscribed)
}

func TestSubscribe_OpenFailureCountsAsError(t *testing.T) {
	feed := &fakeFeed{openErr: errors.New("dial refused")}
	m := NewManager(feed, testOptions(), zap.NewNop(), nil)
	defer m.Close()

	sub := m.Subscribe(context.Background(), "notes", store.Filter{Column: "id", Value: "n-3"},
		func(store.ChangeEvent) {})

	waitForState(t, sub, StateGivenUp)
	assert.Equal(t, 3, feed.openCount())
}
