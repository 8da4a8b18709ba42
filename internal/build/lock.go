package build

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	rerrors "github.com/Aman-CERP/repoindex/internal/errors"
	"github.com/gofrs/flock"
)

// lockRetryDelay is how often a waiting build polls the file lock.
const lockRetryDelay = 100 * time.Millisecond

// LockPath returns the file lock guarding writes to indexDir. It sits
// beside the directory so that recreating a corrupt index keeps it.
func LockPath(indexDir string) string {
	return filepath.Clean(indexDir) + ".writer.lock"
}

// WriterLocks serializes index writers per directory: a keyed mutex for
// builds of this process and a file lock for other processes.
type WriterLocks struct {
	mu    sync.Mutex
	slots map[string]*slot
}

type slot struct {
	token chan struct{}
	refs  int
}

// NewWriterLocks creates an empty lock table.
func NewWriterLocks() *WriterLocks {
	return &WriterLocks{slots: make(map[string]*slot)}
}

// Acquire blocks until the caller is the only writer of indexDir or ctx
// is done. The returned function releases the lock and must be called
// exactly once.
func (l *WriterLocks) Acquire(ctx context.Context, indexDir string) (func() error, error) {
	key, err := filepath.Abs(indexDir)
	if err != nil {
		return nil, rerrors.IndexOpenError(indexDir, err)
	}

	s := l.ref(key)
	select {
	case s.token <- struct{}{}:
	case <-ctx.Done():
		l.unref(key)
		return nil, ctx.Err()
	}

	unlockLocal := func() {
		<-s.token
		l.unref(key)
	}

	if err := os.MkdirAll(filepath.Dir(key), 0o755); err != nil {
		unlockLocal()
		return nil, rerrors.IndexOpenError(indexDir, err)
	}
	fl := flock.New(LockPath(key))
	locked, err := fl.TryLockContext(ctx, lockRetryDelay)
	if err != nil || !locked {
		unlockLocal()
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, rerrors.IndexOpenError(indexDir, fmt.Errorf("failed to lock %s: %w", LockPath(key), err))
	}

	var once sync.Once
	var unlockErr error
	return func() error {
		once.Do(func() {
			unlockErr = fl.Unlock()
			unlockLocal()
		})
		return unlockErr
	}, nil
}

func (l *WriterLocks) ref(key string) *slot {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		s = &slot{token: make(chan struct{}, 1)}
		l.slots[key] = s
	}
	s.refs++
	return s
}

func (l *WriterLocks) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.slots[key]
	if !ok {
		return
	}
	s.refs--
	if s.refs == 0 {
		delete(l.slots, key)
	}
}
