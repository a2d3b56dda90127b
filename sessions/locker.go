package sessions

import (
	"context"
	"sync"
)

// Locker provides mutual exclusion per principal. The returned unlock
// function must be called exactly once; extra calls are ignored.
type Locker interface {
	Lock(ctx context.Context, principalID string) (unlock func(), err error)
}

// KeyedMutex is an in-process Locker. Entries are dropped once no goroutine
// holds or waits for them.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	slot chan struct{}
	refs int
}

// NewKeyedMutex creates an empty in-process locker.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock blocks until the principal's lock is free or ctx is done.
func (k *KeyedMutex) Lock(ctx context.Context, principalID string) (func(), error) {
	k.mu.Lock()
	l, ok := k.locks[principalID]
	if !ok {
		l = &keyedLock{slot: make(chan struct{}, 1)}
		k.locks[principalID] = l
	}
	l.refs++
	k.mu.Unlock()

	select {
	case l.slot <- struct{}{}:
	case <-ctx.Done():
		k.release(principalID, l)
		return nil, ctx.Err()
	}

	var once sync.Once
	return func() {
		once.Do(func() {
			<-l.slot
			k.release(principalID, l)
		})
	}, nil
}

// Len returns the number of principals currently held or awaited.
func (k *KeyedMutex) Len() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return len(k.locks)
}

func (k *KeyedMutex) release(principalID string, l *keyedLock) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(k.locks, principalID)
	}
}
