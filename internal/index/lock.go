package index

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// lockFileName lives inside the project's index directory, next to the
// descriptor and checkpoint it protects.
const lockFileName = ".index.lock"

// indexLock serializes indexing runs on one project directory across
// processes. The Runner's mutex covers concurrent calls within a single
// process; this flock-backed lock covers a second CLI invocation (or any
// other consumer of the library) pointed at the same index directory, so
// two runs can never interleave writes to the chunk table, vector store,
// descriptor, or checkpoint. An flock is released by the OS when its holder
// dies, so a crashed run never leaves the project permanently locked.
type indexLock struct {
	path  string
	flock *flock.Flock
	held  bool
}

// newIndexLock builds the lock for a project's index directory. Nothing is
// acquired until acquire or tryAcquire is called.
func newIndexLock(dataDir string) *indexLock {
	path := filepath.Join(dataDir, lockFileName)
	return &indexLock{path: path, flock: flock.New(path)}
}

// acquire takes the exclusive lock, blocking until any other holder
// releases it. The index directory is created if it does not exist yet
// (first run on a fresh project).
func (l *indexLock) acquire() error {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return fmt.Errorf("create index directory for lock: %w", err)
	}
	if err := l.flock.Lock(); err != nil {
		return fmt.Errorf("acquire indexing lock: %w", err)
	}
	l.held = true
	return nil
}

// tryAcquire takes the lock without blocking, reporting whether it was
// acquired.
func (l *indexLock) tryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create index directory for lock: %w", err)
	}
	acquired, err := l.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("acquire indexing lock: %w", err)
	}
	if acquired {
		l.held = true
	}
	return acquired, nil
}

// release drops the lock. Releasing a lock that was never acquired is a
// no-op, so callers can defer it unconditionally.
func (l *indexLock) release() error {
	if !l.held {
		return nil
	}
	l.held = false
	if err := l.flock.Unlock(); err != nil {
		return fmt.Errorf("release indexing lock: %w", err)
	}
	return nil
}

// lockPath returns the lock file's location, for tests and diagnostics.
func (l *indexLock) lockPath() string { return l.path }

// isHeld reports whether this instance currently holds the lock.
func (l *indexLock) isHeld() bool { return l.held }
