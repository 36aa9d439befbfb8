package orchestrator

import (
	"context"
	"sync"
)

// SlipLocker serializes state changes per slip. Acquire blocks until the
// slip's lock is held or ctx expires; the returned release must be called
// exactly once.
type SlipLocker interface {
	Acquire(ctx context.Context, slipID string) (release func(), err error)
}

// KeyedMutex is an in-process SlipLocker: one mutex per slip ID, created on
// first use and dropped when no waiter remains.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Acquire locks slipID. Lock acquisition itself is not interruptible, but a
// pre-cancelled context is honored before blocking.
func (k *KeyedMutex) Acquire(ctx context.Context, slipID string) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	k.mu.Lock()
	l, ok := k.locks[slipID]
	if !ok {
		l = &keyedLock{}
		k.locks[slipID] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()

	var once sync.Once
	release := func() {
		once.Do(func() {
			l.mu.Unlock()
			k.mu.Lock()
			l.refs--
			if l.refs == 0 {
				delete(k.locks, slipID)
			}
			k.mu.Unlock()
		})
	}
	return release, nil
}
