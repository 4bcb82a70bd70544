package storage

import (
	"sync"
)

// OperationType defines whether an operation is read or write.
// Read operations share the lock, write operations hold it exclusively.
type OperationType int

const (
	// ReadOperation indicates an operation that only reads data.
	// Multiple read operations can proceed concurrently.
	ReadOperation OperationType = iota

	// WriteOperation indicates an operation that modifies data.
	// No other reads or writes proceed while it runs.
	WriteOperation
)

// LockManager guards in-process state with a single RWMutex so every caller
// uses the same locking strategy.
type LockManager struct {
	mu sync.RWMutex
}

// NewLockManager creates a new lock manager instance
func NewLockManager() *LockManager {
	return &LockManager{}
}

// Execute runs fn holding the read or write lock, released on return.
//
// Example:
//
//	err := lm.Execute(ReadOperation, func() error {
//	    // Safe to read data here
//	    return nil
//	})
func (lm *LockManager) Execute(opType OperationType, fn func() error) error {
	switch opType {
	case ReadOperation:
		lm.mu.RLock()
		defer lm.mu.RUnlock()
	case WriteOperation:
		lm.mu.Lock()
		defer lm.mu.Unlock()
	}
	return fn()
}

// ExecuteWithResult is Execute for functions that produce a value
//
// Example:
//
//	item, err := ExecuteWithResult(lm, ReadOperation, func() (*types.Item, error) {
//	    return store.Get(id)
//	})
func ExecuteWithResult[T any](lm *LockManager, opType OperationType, fn func() (T, error)) (T, error) {
	var result T
	err := lm.Execute(opType, func() error {
		var err error
		result, err = fn()
		return err
	})
	return result, err
}

// Do is Execute for functions that cannot fail
func (lm *LockManager) Do(opType OperationType, fn func()) {
	_ = lm.Execute(opType, func() error {
		fn()
		return nil
	})
}
