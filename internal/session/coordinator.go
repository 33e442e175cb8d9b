package session

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"go.uber.org/zap"

	"tickerdesk-backend/internal/store"
)

// Coordination files inside the coordination directory.
const (
	lockFile     = "refresh.lock"
	completeFile = "refresh_complete.json"
	requestFile  = "refresh_request"
	backupFile   = "session_backup.json"
)

// coordinator implements cross-process refresh coordination on a shared
// local directory: a TTL lock elects the one process that performs the
// network refresh, a completion broadcast file carries the refreshed
// session to the others, and a request file lets any process ask the
// others to refresh. File events are observed with fsnotify, with polling
// as a fallback for filesystems that drop events.
type coordinator struct {
	dir    string
	lock   *FileLock
	logger *zap.Logger

	watcher *fsnotify.Watcher
	stopCh  chan struct{}
}

type completion struct {
	Session     store.Session `json:"session"`
	CompletedAt int64         `json:"completed_at_ns"`
}

func newCoordinator(dir string, lockTTL time.Duration, logger *zap.Logger) (*coordinator, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create coordination dir: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create coordination watcher: %w", err)
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, fmt.Errorf("watch coordination dir: %w", err)
	}

	return &coordinator{
		dir:     dir,
		lock:    NewFileLock(filepath.Join(dir, lockFile), lockTTL),
		logger:  logger,
		watcher: watcher,
		stopCh:  make(chan struct{}),
	}, nil
}

// watchRequests invokes onRequest whenever another process writes the
// refresh-request file. Runs until close.
func (c *coordinator) watchRequests(onRequest func()) {
	for {
		select {
		case <-c.stopCh:
			return
		case event, ok := <-c.watcher.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != requestFile {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) != 0 {
				onRequest()
			}
		case err, ok := <-c.watcher.Errors:
			if !ok {
				return
			}
			c.logger.Error("coordination watcher error", zap.Error(err))
		}
	}
}

// requestRefresh signals every cooperating process to refresh.
func (c *coordinator) requestRefresh() error {
	path := filepath.Join(c.dir, requestFile)
	data := []byte(fmt.Sprintf("%d", time.Now().UnixNano()))
	return os.WriteFile(path, data, 0o644)
}

// broadcastComplete publishes the refreshed session for the processes that
// did not hold the lock. Written atomically via rename.
func (c *coordinator) broadcastComplete(s *store.Session) error {
	payload, err := json.Marshal(completion{Session: *s, CompletedAt: time.Now().UnixNano()})
	if err != nil {
		return err
	}

	path := filepath.Join(c.dir, completeFile)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// waitForCompletion blocks until a completion newer than since appears, the
// deadline passes, or ctx is done. Polling backs up the fsnotify events so
// a missed event cannot wedge a waiter.
func (c *coordinator) waitForCompletion(ctx context.Context, since time.Time, deadline time.Duration) (*store.Session, bool) {
	timeout := time.NewTimer(deadline)
	defer timeout.Stop()
	poll := time.NewTicker(100 * time.Millisecond)
	defer poll.Stop()

	for {
		if s, ok := c.readCompletion(since); ok {
			return s, true
		}
		select {
		case <-ctx.Done():
			return nil, false
		case <-timeout.C:
			return nil, false
		case <-poll.C:
		}
	}
}

func (c *coordinator) readCompletion(since time.Time) (*store.Session, bool) {
	data, err := os.ReadFile(filepath.Join(c.dir, completeFile))
	if err != nil {
		return nil, false
	}
	var comp completion
	if err := json.Unmarshal(data, &comp); err != nil {
		return nil, false
	}
	if comp.CompletedAt <= since.UnixNano() {
		return nil, false
	}
	return &comp.Session, true
}

// writeBackup persists the diagnostic session snapshot. Advisory only;
// failures are logged by the caller and never fail a refresh.
func (c *coordinator) writeBackup(s *store.Session) error {
	payload, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(c.dir, backupFile), payload, 0o600)
}

func (c *coordinator) close() {
	close(c.stopCh)
	c.watcher.Close()
}
