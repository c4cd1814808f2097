package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/hashicorp/go-hclog"
	"golang.org/x/sync/semaphore"

	mediaerrors "github.com/mantonx/tonearm/internal/modules/mediamodule/errors"
)

// DefaultLockTimeout bounds how long a writer waits for a busy file.
const DefaultLockTimeout = 10 * time.Second

const flockRetryDelay = 25 * time.Millisecond

type lockEntry struct {
	sem  *semaphore.Weighted
	refs int
}

// LockTable hands out exclusive per-path write locks. Entries are reference
// counted and dropped once no writer holds or waits on them. When a lock
// directory is configured each lock is also taken as a lock file there, so
// separate processes sharing a library serialise too.
type LockTable struct {
	mu      sync.Mutex
	entries map[string]*lockEntry
	timeout time.Duration
	lockDir string
	logger  hclog.Logger
}

// NewLockTable creates a lock table. An empty lockDir disables lock files.
func NewLockTable(timeout time.Duration, lockDir string, logger hclog.Logger) *LockTable {
	if timeout <= 0 {
		timeout = DefaultLockTimeout
	}
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &LockTable{
		entries: make(map[string]*lockEntry),
		timeout: timeout,
		lockDir: lockDir,
		logger:  logger,
	}
}

// SetTimeout changes the acquire timeout for subsequent calls.
func (t *LockTable) SetTimeout(d time.Duration) {
	if d <= 0 {
		return
	}
	t.mu.Lock()
	t.timeout = d
	t.mu.Unlock()
}

// Acquire blocks until path is free, the timeout elapses or ctx is done.
// The returned release func is safe to call more than once.
func (t *LockTable) Acquire(ctx context.Context, path string) (func(), error) {
	const op = "acquire_lock"
	key := filepath.Clean(path)

	entry, timeout := t.ref(key)
	actx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := entry.sem.Acquire(actx, 1); err != nil {
		t.unref(key)
		return nil, t.acquireError(ctx, op, path, timeout)
	}

	var fl *flock.Flock
	if t.lockDir != "" {
		fl = flock.New(filepath.Join(t.lockDir, lockFileName(key)))
		locked, err := fl.TryLockContext(actx, flockRetryDelay)
		if err != nil || !locked {
			entry.sem.Release(1)
			t.unref(key)
			if err != nil && ctx.Err() == nil && !errors.Is(err, context.DeadlineExceeded) {
				return nil, mediaerrors.StorageError(op, errors.Join(mediaerrors.ErrIO, err)).WithPath(path)
			}
			return nil, t.acquireError(ctx, op, path, timeout)
		}
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			if fl != nil {
				if err := fl.Unlock(); err != nil {
					t.logger.Warn("failed to release lock file", "path", path, "error", err)
				}
			}
			entry.sem.Release(1)
			t.unref(key)
		})
	}, nil
}

func (t *LockTable) acquireError(ctx context.Context, op, path string, timeout time.Duration) error {
	if err := ctx.Err(); err != nil {
		return mediaerrors.StorageError(op, mediaerrors.FromContext(err)).WithPath(path)
	}
	return mediaerrors.ConflictError(op, mediaerrors.ErrConcurrentWrite).
		WithPath(path).
		WithDetail("timeout", timeout.String())
}

// Len returns the number of paths currently held or awaited.
func (t *LockTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.entries)
}

// EnsureLockDir creates the lock directory if one is configured.
func (t *LockTable) EnsureLockDir() error {
	if t.lockDir == "" {
		return nil
	}
	return os.MkdirAll(t.lockDir, 0o755)
}

func (t *LockTable) ref(key string) (*lockEntry, time.Duration) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		e = &lockEntry{sem: semaphore.NewWeighted(1)}
		t.entries[key] = e
	}
	e.refs++
	return e, t.timeout
}

func (t *LockTable) unref(key string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.entries[key]
	if !ok {
		return
	}
	e.refs--
	if e.refs <= 0 {
		delete(t.entries, key)
	}
}

func lockFileName(path string) string {
	abs, err := filepath.Abs(path)
	if err != nil {
		abs = path
	}
	sum := sha256.Sum256([]byte(abs))
	return hex.EncodeToString(sum[:16]) + ".lock"
}
