package commitlock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	pkgerrors "github.com/Adithya-Monish-Kumar-K/segindex/pkg/errors"
	"github.com/gofrs/flock"
)

const fileRetryDelay = 10 * time.Millisecond

// FileLock is a cross-process commit lock backed by an OS advisory lock on
// a file. It also serializes goroutines of the same process, which the OS
// lock alone does not do for a shared handle.
type FileLock struct {
	mu      sync.Mutex
	path    string
	flock   *flock.Flock
	timeout time.Duration
}

// NewFileLock creates a lock on path. A zero timeout waits forever.
func NewFileLock(path string, timeout time.Duration) (*FileLock, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &FileLock{
		path:    path,
		flock:   flock.New(path),
		timeout: timeout,
	}, nil
}

func (l *FileLock) Lock() error {
	l.mu.Lock()
	if l.timeout <= 0 {
		if err := l.flock.Lock(); err != nil {
			l.mu.Unlock()
			return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
		}
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), l.timeout)
	defer cancel()
	ok, err := l.flock.TryLockContext(ctx, fileRetryDelay)
	if err != nil || !ok {
		l.mu.Unlock()
		if err == nil || ctx.Err() != nil {
			return pkgerrors.New(pkgerrors.ErrLockTimeout, "locking", l.path)
		}
		return fmt.Errorf("failed to acquire lock %s: %w", l.path, err)
	}
	return nil
}

func (l *FileLock) Unlock() error {
	defer l.mu.Unlock()
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", l.path, err)
	}
	return nil
}

// Path returns the path to the lock file.
func (l *FileLock) Path() string {
	return l.path
}
