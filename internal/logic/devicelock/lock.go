// Package devicelock guards the physical capture device so that at most one
// open or close operation is in flight at a time.
package devicelock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"
)

// ErrTimeout is returned when the permit could not be obtained within the bound.
var ErrTimeout = errors.New("device lock: timed out waiting for permit")

// Lock is a single-permit lock with a bounded wait.
type Lock struct {
	sem     *semaphore.Weighted
	holders atomic.Int32
}

// New creates an unheld lock.
func New() *Lock {
	return &Lock{sem: semaphore.NewWeighted(1)}
}

// Acquire blocks until the permit is available. With timeout > 0 it gives up
// after the timeout and returns ErrTimeout; otherwise it waits until ctx ends.
func (l *Lock) Acquire(ctx context.Context, timeout time.Duration) (*Hold, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := l.sem.Acquire(ctx, 1); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %v", ErrTimeout, timeout)
		}
		return nil, err
	}
	l.holders.Add(1)
	return &Hold{lock: l}, nil
}

// TryAcquire takes the permit only if it is free right now.
func (l *Lock) TryAcquire() (*Hold, bool) {
	if !l.sem.TryAcquire(1) {
		return nil, false
	}
	l.holders.Add(1)
	return &Hold{lock: l}, true
}

// Holders reports how many holds are outstanding (0 or 1).
func (l *Lock) Holders() int {
	return int(l.holders.Load())
}

// Hold is one acquisition of the permit. Release may be called from any
// goroutine and any number of times; only the first call returns the permit.
type Hold struct {
	lock *Lock
	once sync.Once
}

// Release returns the permit. Safe to call on every exit path.
func (h *Hold) Release() {
	if h == nil {
		return
	}
	h.once.Do(func() {
		h.lock.holders.Add(-1)
		h.lock.sem.Release(1)
	})
}
