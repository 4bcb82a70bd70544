package storage

import (
	"context"
	"sync"
	"time"
)

// MockFileLock tracks shared and exclusive holders in memory
type MockFileLock struct {
	mu        sync.Mutex
	exclusive bool
	shared    int

	lockError   error
	unlockError error

	// For asserting lock usage
	LockAttempts   int
	RLockAttempts  int
	UnlockAttempts int
}

// TryLockContext implements FileLock.TryLockContext
func (m *MockFileLock) TryLockContext(ctx context.Context, retryInterval time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.LockAttempts++
	if m.lockError != nil {
		return false, m.lockError
	}
	if m.exclusive || m.shared > 0 {
		return false, nil
	}
	m.exclusive = true
	return true, nil
}

// TryRLockContext implements FileLock.TryRLockContext
func (m *MockFileLock) TryRLockContext(ctx context.Context, retryInterval time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.RLockAttempts++
	if m.lockError != nil {
		return false, m.lockError
	}
	if m.exclusive {
		return false, nil
	}
	m.shared++
	return true, nil
}

// Unlock implements FileLock.Unlock
func (m *MockFileLock) Unlock() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.UnlockAttempts++
	if m.unlockError != nil {
		return m.unlockError
	}
	if m.exclusive {
		m.exclusive = false
	} else if m.shared > 0 {
		m.shared--
	}
	return nil
}

// IsLocked reports whether any holder remains
func (m *MockFileLock) IsLocked() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.exclusive || m.shared > 0
}

// SetLockError makes subsequent lock attempts fail
func (m *MockFileLock) SetLockError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lockError = err
}

// HoldExclusive simulates another process holding the lock
func (m *MockFileLock) HoldExclusive() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exclusive = true
}

// MockFileLockFactory returns one MockFileLock per path
type MockFileLockFactory struct {
	mu    sync.Mutex
	locks map[string]*MockFileLock

	DefaultLockError error
}

// NewMockFileLockFactory creates a new mock factory
func NewMockFileLockFactory() *MockFileLockFactory {
	return &MockFileLockFactory{locks: make(map[string]*MockFileLock)}
}

// New implements FileLockFactory.New
func (f *MockFileLockFactory) New(path string) FileLock {
	return f.GetLock(path)
}

// GetLock returns the lock for path, creating it on first use
func (f *MockFileLockFactory) GetLock(path string) *MockFileLock {
	f.mu.Lock()
	defer f.mu.Unlock()

	if lock, ok := f.locks[path]; ok {
		return lock
	}
	lock := &MockFileLock{lockError: f.DefaultLockError}
	f.locks[path] = lock
	return lock
}
