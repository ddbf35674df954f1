package taskengine

import (
	"context"
	"errors"
	"sync"
)

// TaskLocker error variables
var (
	// ErrTaskLockAlreadyAcquired is returned when a task lock is already held
	ErrTaskLockAlreadyAcquired = errors.New("task lock already acquired")
	// ErrTaskLockerClosed is returned when attempting to use a closed task locker
	ErrTaskLockerClosed = errors.New("task locker is closed")
)

//go:generate go tool mockgen -source=task_locker.go -destination=mock_task_locker_test.go -package=taskengine

// TaskLocker provides task-level locking to prevent concurrent execution of
// the same task, possibly across processes.
type TaskLocker interface {
	// Lock attempts to acquire the lock for key without waiting.
	// Returns a function to unlock when successful, ErrTaskLockAlreadyAcquired
	// while another holder has it, or ErrTaskLockerClosed after Close.
	Lock(ctx context.Context, key TaskKey) (unlock func(), err error)
	// Close gracefully shuts down the task locker
	Close() error
}

// InMemoryTaskLocker is a process-local implementation of TaskLocker
type InMemoryTaskLocker struct {
	locks  map[TaskKey]struct{}
	mu     sync.Mutex
	closed bool
}

// NewInMemoryTaskLocker creates a new in-memory task locker
func NewInMemoryTaskLocker() *InMemoryTaskLocker {
	return &InMemoryTaskLocker{
		locks: make(map[TaskKey]struct{}),
	}
}

// Lock attempts to acquire a lock for the specified task
func (l *InMemoryTaskLocker) Lock(ctx context.Context, key TaskKey) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.closed {
		return nil, ErrTaskLockerClosed
	}
	if _, held := l.locks[key]; held {
		return nil, ErrTaskLockAlreadyAcquired
	}
	l.locks[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.locks, key)
		})
	}, nil
}

// Close releases every lock and rejects further Lock calls.
func (l *InMemoryTaskLocker) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.closed {
		l.closed = true
		clear(l.locks)
	}
	return nil
}
