package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "tickerdesk-backend/internal/errors"
	"tickerdesk-backend/internal/retry"
	"tickerdesk-backend/internal/store"
)

// fakeSessionAPI is a controllable backend for session primitives.
type fakeSessionAPI struct {
	mu           sync.Mutex
	refreshCalls int32
	refreshDelay time.Duration
	refreshErr   error
	expiresIn    time.Duration
	signOuts     int
}

func (f *fakeSessionAPI) SignIn(ctx context.Context, email, password string) (*store.Session, error) {
	return &store.Session{
		UserID:       "u1",
		Email:        email,
		AccessToken:  "tok-0",
		RefreshToken: "ref-0",
		ExpiresAt:    time.Now().Add(time.Hour).Unix(),
		LastRefresh:  time.Now().Unix(),
	}, nil
}

func (f *fakeSessionAPI) Refresh(ctx context.Context, refreshToken string) (*store.Session, error) {
	n := atomic.AddInt32(&f.refreshCalls, 1)
	if f.refreshDelay > 0 {
		select {
		case <-time.After(f.refreshDelay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	f.mu.Lock()
	err := f.refreshErr
	expiresIn := f.expiresIn
	f.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if expiresIn == 0 {
		expiresIn = time.Hour
	}
	now := time.Now()
	return &store.Session{
		UserID:       "u1",
		Email:        "u1@example.com",
		AccessToken:  "tok-" + string(rune('0'+n)),
		RefreshToken: "ref-next",
		ExpiresAt:    now.Add(expiresIn).Unix(),
		LastRefresh:  now.Unix(),
	}, nil
}

func (f *fakeSessionAPI) SignOut(ctx context.Context, accessToken string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.signOuts++
	return nil
}

func testOptions() Options {
	opts := DefaultOptions()
	opts.RetryPolicy = retry.Policy{
		MaxAttempts:   3,
		BaseDelay:     time.Millisecond,
		MaxDelay:      5 * time.Millisecond,
		BackoffFactor: 2.0,
	}
	return opts
}

func newTestManager(t *testing.T, api store.SessionAPI, opts Options) *Manager {
	t.Helper()
	m, err := NewManager(api, opts, nil)
	require.NoError(t, err)
	t.Cleanup(m.Close)
	return m
}

func seedSession(m *Manager, expiresIn time.Duration) {
	m.SetSession(&store.Session{
		UserID:       "u1",
		Email:        "u1@example.com",
		AccessToken:  "tok-seed",
		RefreshToken: "ref-seed",
		ExpiresAt:    time.Now().Add(expiresIn).Unix(),
		LastRefresh:  time.Now().Unix(),
	})
}

func TestRefreshToken_ConcurrentCallersShareOneNetworkCall(t *testing.T) {
	api := &fakeSessionAPI{refreshDelay: 50 * time.Millisecond}
	m := newTestManager(t, api, testOptions())
	seedSession(m, time.Hour)

	const callers = 16
	results := make(chan bool, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- m.RefreshToken(context.Background())
		}()
	}
	wg.Wait()
	close(results)

	assert.Equal(t, int32(1), atomic.LoadInt32(&api.refreshCalls))
	for ok := range results {
		assert.True(t, ok)
	}
}

func TestRefreshToken_RetriesTransientFailures(t *testing.T) {
	api := &fakeSessionAPI{}
	api.refreshErr = apperrors.Server("NETWORK", "backend down")
	m := newTestManager(t, api, testOptions())
	seedSession(m, time.Hour)

	go func() {
		time.Sleep(3 * time.Millisecond)
		api.mu.Lock()
		api.refreshErr = nil
		api.mu.Unlock()
	}()

	assert.True(t, m.RefreshToken(context.Background()))
	assert.GreaterOrEqual(t, atomic.LoadInt32(&api.refreshCalls), int32(2))
}

func TestRefreshToken_RejectedRefreshInvalidatesSession(t *testing.T) {
	api := &fakeSessionAPI{refreshErr: apperrors.Unauthorized("REFRESH_REJECTED", "gone")}
	m := newTestManager(t, api, testOptions())
	seedSession(m, time.Hour)

	assert.False(t, m.RefreshToken(context.Background()))
	// Unauthorized is not retryable: exactly one attempt.
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.refreshCalls))
	assert.Equal(t, StateInvalid, m.GetSessionInfo().State)
}

func TestRefreshToken_NoSessionReturnsFalse(t *testing.T) {
	m := newTestManager(t, &fakeSessionAPI{}, testOptions())
	assert.False(t, m.RefreshToken(context.Background()))
}

func TestAdopt_ExpiryIsMonotonic(t *testing.T) {
	m := newTestManager(t, &fakeSessionAPI{}, testOptions())
	seedSession(m, 2*time.Hour)
	before := m.GetSessionInfo().ExpiresAt

	m.SetSession(&store.Session{
		UserID:      "u1",
		AccessToken: "stale",
		ExpiresAt:   time.Now().Add(time.Minute).Unix(),
	})

	assert.Equal(t, before, m.GetSessionInfo().ExpiresAt)
	assert.Equal(t, "tok-seed", m.AccessToken())
}

func TestGetSessionInfo_States(t *testing.T) {
	m := newTestManager(t, &fakeSessionAPI{}, testOptions())

	assert.Equal(t, StateUnknown, m.GetSessionInfo().State)

	seedSession(m, time.Hour)
	assert.Equal(t, StateValid, m.GetSessionInfo().State)

	info := m.GetSessionInfo()
	assert.True(t, info.IsValid)
	assert.InDelta(t, time.Hour.Seconds(), info.ExpiresIn.Seconds(), 2)
}

func TestGetSessionInfo_ExpiringSoon(t *testing.T) {
	m := newTestManager(t, &fakeSessionAPI{}, testOptions())
	seedSession(m, time.Minute) // under the 300s threshold
	assert.Equal(t, StateExpiringSoon, m.GetSessionInfo().State)
	assert.True(t, m.GetSessionInfo().IsValid)
}

func TestSignInAndOut(t *testing.T) {
	api := &fakeSessionAPI{}
	m := newTestManager(t, api, testOptions())

	require.NoError(t, m.SignIn(context.Background(), "u1@example.com", "pw"))
	assert.Equal(t, StateValid, m.GetSessionInfo().State)
	assert.NotEmpty(t, m.AccessToken())

	require.NoError(t, m.SignOut(context.Background()))
	assert.Equal(t, StateUnknown, m.GetSessionInfo().State)
	assert.Empty(t, m.AccessToken())
	assert.Equal(t, 1, api.signOuts)
}

func TestCrossProcess_WaiterAdoptsBroadcastInsteadOfRefreshing(t *testing.T) {
	dir := t.TempDir()

	waiterAPI := &fakeSessionAPI{}
	waiterOpts := testOptions()
	waiterOpts.CoordDir = dir
	waiterOpts.LockTTL = time.Second
	waiter := newTestManager(t, waiterAPI, waiterOpts)
	seedSession(waiter, time.Minute)

	// Play the part of another process: hold the refresh lock, then publish
	// the completion broadcast the way its manager would.
	otherLock := NewFileLock(dir+"/"+lockFile, time.Second)
	require.True(t, otherLock.TryAcquire())
	defer otherLock.Release()

	refreshed := &store.Session{
		UserID:       "u1",
		Email:        "u1@example.com",
		AccessToken:  "tok-other-process",
		RefreshToken: "ref-other-process",
		ExpiresAt:    time.Now().Add(2 * time.Hour).Unix(),
		LastRefresh:  time.Now().Unix(),
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		_ = waiter.coord.broadcastComplete(refreshed)
	}()

	ok := waiter.RefreshToken(context.Background())

	assert.True(t, ok)
	// The waiter observed the broadcast; it never issued a network refresh.
	assert.Equal(t, int32(0), atomic.LoadInt32(&waiterAPI.refreshCalls))
	assert.Equal(t, "tok-other-process", waiter.AccessToken())
}

func TestCrossProcess_LockWinnerRefreshesAndBroadcasts(t *testing.T) {
	dir := t.TempDir()

	api := &fakeSessionAPI{}
	opts := testOptions()
	opts.CoordDir = dir
	m := newTestManager(t, api, opts)
	seedSession(m, time.Minute)

	require.True(t, m.RefreshToken(context.Background()))
	assert.Equal(t, int32(1), atomic.LoadInt32(&api.refreshCalls))

	// The completion broadcast must now be observable by other processes.
	s, ok := m.coord.readCompletion(time.Now().Add(-time.Minute))
	require.True(t, ok)
	assert.Equal(t, "u1", s.UserID)

	// And the lock must have been released.
	probe := NewFileLock(dir+"/"+lockFile, time.Second)
	assert.True(t, probe.TryAcquire())
	probe.Release()
}

func TestFileLock_TTLReclaim(t *testing.T) {
	dir := t.TempDir()

	stale := NewFileLock(dir+"/refresh.lock", 50*time.Millisecond)
	require.True(t, stale.TryAcquire())

	other := NewFileLock(dir+"/refresh.lock", 50*time.Millisecond)
	assert.False(t, other.TryAcquire(), "live lock must be respected")

	time.Sleep(60 * time.Millisecond)
	assert.True(t, other.TryAcquire(), "expired lock must be reclaimable")
	other.Release()
}

func TestFileLock_ReleaseIsIdempotent(t *testing.T) {
	l := NewFileLock(t.TempDir()+"/refresh.lock", time.Second)
	require.True(t, l.TryAcquire())
	l.Release()
	l.Release()
	assert.True(t, l.TryAcquire())
}
