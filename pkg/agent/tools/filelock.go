package tools

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

// ErrLockTimeout is returned when the lock file stays held past lockTimeout.
var ErrLockTimeout = errors.New("timed out waiting for file lock")

const lockTimeout = 5 * time.Second

// LockDir holds the lock files, next to the files they guard.
const LockDir = ".sagebot-locks"

// Appender serializes appends per destination path: an in-process mutex per
// path, plus a lock file under <dir>/.sagebot-locks for writers in other processes.
type Appender struct {
	mu    sync.Mutex
	paths map[string]*sync.Mutex
}

// NewAppender returns an empty Appender. Tools writing the same files must share one.
func NewAppender() *Appender {
	return &Appender{paths: map[string]*sync.Mutex{}}
}

func (a *Appender) lockFor(path string) *sync.Mutex {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.paths == nil {
		a.paths = map[string]*sync.Mutex{}
	}
	m, ok := a.paths[path]
	if !ok {
		m = &sync.Mutex{}
		a.paths[path] = m
	}
	return m
}

// Append writes data at the end of path, creating it and its directory if needed.
func (a *Appender) Append(ctx context.Context, path string, data []byte) error {
	path = filepath.Clean(path)
	m := a.lockFor(path)
	m.Lock()
	defer m.Unlock()

	lockPath := lockFile(path)
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return err
	}

	fl := flock.New(lockPath)
	lctx, cancel := context.WithTimeout(ctx, lockTimeout)
	defer cancel()
	locked, err := fl.TryLockContext(lctx, 50*time.Millisecond)
	if err != nil || !locked {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%s: %w", path, ErrLockTimeout)
	}
	defer func() { _ = fl.Unlock() }()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// lockFile is <dir>/.sagebot-locks/<name>.lock for path <dir>/<name>.
func lockFile(path string) string {
	return filepath.Join(filepath.Dir(path), LockDir, filepath.Base(path)+".lock")
}
