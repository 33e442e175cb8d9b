package session

import (
	"os"
	"strconv"
	"time"
)

// FileLock is the advisory refresh lock shared by cooperating processes.
// A lock is held only while now - holder timestamp < TTL; an expired lock
// is implicitly free and reclaimed by the next acquirer, which covers
// holders that crashed without releasing.
type FileLock struct {
	path string
	ttl  time.Duration
	now  func() time.Time
}

// NewFileLock creates a lock backed by the given path.
func NewFileLock(path string, ttl time.Duration) *FileLock {
	return &FileLock{path: path, ttl: ttl, now: time.Now}
}

// TryAcquire attempts to take the lock without blocking. It returns true
// when this process now holds the lock.
func (l *FileLock) TryAcquire() bool {
	if l.create() {
		return true
	}

	ts, ok := l.holderTimestamp()
	if ok && l.now().Sub(ts) < l.ttl {
		return false // genuinely held
	}

	// Expired or unreadable: reclaim and race for it once.
	os.Remove(l.path)
	return l.create()
}

// Release frees the lock. Safe to call when not held.
func (l *FileLock) Release() {
	os.Remove(l.path)
}

// Held reports whether a live (non-expired) lock exists at the path.
func (l *FileLock) Held() bool {
	ts, ok := l.holderTimestamp()
	return ok && l.now().Sub(ts) < l.ttl
}

func (l *FileLock) create() bool {
	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return false
	}
	defer f.Close()

	_, err = f.WriteString(strconv.FormatInt(l.now().UnixNano(), 10))
	return err == nil
}

func (l *FileLock) holderTimestamp() (time.Time, bool) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return time.Time{}, false
	}
	ns, err := strconv.ParseInt(string(data), 10, 64)
	if err != nil {
		return time.Time{}, false
	}
	return time.Unix(0, ns), true
}
