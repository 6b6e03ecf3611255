// Package lock makes sure only one run works on a store at a time.
package lock

import (
	"context"
	"errors"
	"sync"
)

var (
	// ErrLocked is returned when another run holds the lock.
	ErrLocked = errors.New("another run holds the lock")
	// ErrLost is the cancellation cause of a lock context whose lock
	// could not be kept.
	ErrLost = errors.New("run lock lost")
)

// Locker hands out a run-level lock. The returned context is derived from
// ctx and is cancelled once the lock is released or lost, so work done under
// the lock must use it. The release function is safe to call more than once.
type Locker interface {
	Acquire(ctx context.Context) (locked context.Context, release func(), err error)
}

// Local is an in-process lock. Across processes the embedded store relies on
// the file lock of its state file.
type Local struct {
	mu sync.Mutex
}

func NewLocal() *Local {
	return &Local{}
}

func (l *Local) Acquire(ctx context.Context) (context.Context, func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if !l.mu.TryLock() {
		return nil, nil, ErrLocked
	}

	locked, cancel := context.WithCancel(ctx)
	return locked, sync.OnceFunc(func() {
		cancel()
		l.mu.Unlock()
	}), nil
}
