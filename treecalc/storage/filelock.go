package storage

import (
	"context"
	"time"

	"github.com/gofrs/flock"
)

// FileLock is a cross-process advisory lock on a sidecar file
type FileLock interface {
	// TryLockContext takes the exclusive lock, polling every retryInterval until ctx ends
	TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// TryRLockContext takes the shared lock, polling every retryInterval until ctx ends
	TryRLockContext(ctx context.Context, retryInterval time.Duration) (bool, error)

	// Unlock releases whichever lock is held
	Unlock() error
}

// FileLockFactory creates FileLock instances
type FileLockFactory interface {
	New(path string) FileLock
}

// FlockFactory hands out github.com/gofrs/flock locks
type FlockFactory struct{}

// New implements FileLockFactory.New. *flock.Flock already satisfies FileLock.
func (FlockFactory) New(path string) FileLock {
	return flock.New(path)
}
