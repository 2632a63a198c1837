//nolint:revive,nolintlint // Package name "common" is intentional for shared helpers.
package common

import (
	"context"
	"fmt"
	"sync"
)

// KeyedLocker provides one exclusive critical section per key.
// Different keys never contend; waiters give up when their context ends.
type KeyedLocker struct {
	// mu guards locks.
	mu sync.Mutex
	// locks holds a slot for every key that is held or awaited.
	locks map[string]*keyedLock
}

// keyedLock is a one-slot semaphore with a reference count of interested callers.
type keyedLock struct {
	// slot holds a token while the key is locked.
	slot chan struct{}
	// refs counts the holder and the waiters; the entry is dropped at zero.
	refs int
}

// NewKeyedLocker creates an empty locker.
func NewKeyedLocker() *KeyedLocker {
	return &KeyedLocker{
		locks: make(map[string]*keyedLock),
	}
}

// Lock blocks until key is free or ctx is done. The returned function
// releases the key and is safe to call more than once.
func (l *KeyedLocker) Lock(ctx context.Context, key string) (func(), error) {
	l.mu.Lock()

	kl, ok := l.locks[key]
	if !ok {
		kl = &keyedLock{slot: make(chan struct{}, 1)}
		l.locks[key] = kl
	}

	kl.refs++
	l.mu.Unlock()

	select {
	case kl.slot <- struct{}{}:
	case <-ctx.Done():
		l.release(key, kl)

		return nil, fmt.Errorf("lock %q: %w", key, ctx.Err())
	}

	var once sync.Once

	return func() {
		once.Do(func() {
			<-kl.slot
			l.release(key, kl)
		})
	}, nil
}

// Len returns the number of keys currently held or awaited.
func (l *KeyedLocker) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	return len(l.locks)
}

func (l *KeyedLocker) release(key string, kl *keyedLock) {
	l.mu.Lock()
	defer l.mu.Unlock()

	kl.refs--
	if kl.refs == 0 {
		delete(l.locks, key)
	}
}
