// Package lock serializes turns per booking. A turn holds the booking's lock
// from load to save; a second message for the same booking waits for it.
package lock

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
)

// ErrNotAcquired is returned when ctx ends before the lock is free.
var ErrNotAcquired = errors.New("lock: booking is busy")

// Release frees a held lock. It is safe to call more than once.
type Release func()

// Locker grants exclusive access to one booking at a time.
type Locker interface {
	Acquire(ctx context.Context, bookingID uuid.UUID) (Release, error)
}

// Local is an in-process Locker for single-instance deployments and tests.
type Local struct {
	mu    sync.Mutex
	slots map[uuid.UUID]chan struct{}
}

// NewLocal returns an empty in-process locker.
func NewLocal() *Local {
	return &Local{slots: make(map[uuid.UUID]chan struct{})}
}

func (l *Local) slot(id uuid.UUID) chan struct{} {
	l.mu.Lock()
	defer l.mu.Unlock()
	ch, ok := l.slots[id]
	if !ok {
		ch = make(chan struct{}, 1)
		l.slots[id] = ch
	}
	return ch
}

// Acquire blocks until the booking is free or ctx is done.
func (l *Local) Acquire(ctx context.Context, bookingID uuid.UUID) (Release, error) {
	ch := l.slot(bookingID)
	select {
	case ch <- struct{}{}:
	case <-ctx.Done():
		return nil, errors.Join(ErrNotAcquired, ctx.Err())
	}
	var once sync.Once
	return func() {
		once.Do(func() { <-ch })
	}, nil
}
