// Package lock provides keyed mutual exclusion. Services lock a profile id
// around credit read-modify-write sequences, and the progression store locks
// an item id to reject a second purchase of the same item while one is in flight.
package lock

import (
	"context"
	"sync"
	"time"
)

// entry is a mutex shared by every holder and waiter of one key.
type entry struct {
	mu   sync.Mutex
	refs int
}

// KeyedLock hands out one mutex per key and forgets keys nobody holds or
// waits for.
type KeyedLock struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// New creates an empty KeyedLock.
func New() *KeyedLock {
	return &KeyedLock{entries: make(map[string]*entry)}
}

func (l *KeyedLock) acquire(key string) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[key]
	if !ok {
		e = &entry{}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyedLock) release(key string, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until the key is free.
func (l *KeyedLock) Lock(key string) {
	l.acquire(key).mu.Lock()
}

// Unlock releases a key acquired with Lock, TryLock or LockWithTimeout.
func (l *KeyedLock) Unlock(key string) {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return
	}
	e.mu.Unlock()
	l.release(key, e)
}

// TryLock acquires the key without blocking and reports whether it did.
func (l *KeyedLock) TryLock(key string) bool {
	e := l.acquire(key)
	if e.mu.TryLock() {
		return true
	}
	l.release(key, e)
	return false
}

// LockWithTimeout waits for the key until timeout or ctx cancellation.
func (l *KeyedLock) LockWithTimeout(ctx context.Context, key string, timeout time.Duration) bool {
	e := l.acquire(key)

	done := make(chan struct{})
	go func() {
		e.mu.Lock()
		close(done)
	}()

	timeoutCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	select {
	case <-done:
		return true
	case <-timeoutCtx.Done():
		// The waiter still owns a reference; it gives the key back once it gets it.
		go func() {
			<-done
			e.mu.Unlock()
			l.release(key, e)
		}()
		return false
	}
}

// WithLock runs fn while holding key.
func (l *KeyedLock) WithLock(key string, fn func() error) error {
	l.Lock(key)
	defer l.Unlock(key)
	return fn()
}

// WithLockContext runs fn while holding key, giving up with ErrLockTimeout
// when the key cannot be acquired in time.
func (l *KeyedLock) WithLockContext(ctx context.Context, key string, timeout time.Duration, fn func() error) error {
	if !l.LockWithTimeout(ctx, key, timeout) {
		return ErrLockTimeout
	}
	defer l.Unlock(key)

	if err := ctx.Err(); err != nil {
		return err
	}
	return fn()
}

// IsLocked reports whether the key is currently held. The answer may be
// stale by the time the caller acts on it.
func (l *KeyedLock) IsLocked(key string) bool {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()
	if !ok {
		return false
	}
	if e.mu.TryLock() {
		e.mu.Unlock()
		return false
	}
	return true
}

// Len returns the number of keys currently tracked.
func (l *KeyedLock) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
