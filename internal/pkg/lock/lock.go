// Package lock provides per-key in-process locking.
// Keys are record IDs: a draw ID while it is being resolved or cancelled,
// a Telegram user ID while that user is being registered.
package lock

import (
	"context"
	"errors"
	"sync"
)

type entry struct {
	sem  chan struct{}
	refs int
}

// KeyLock hands out one mutex per int64 key. Entries are dropped once no
// goroutine holds or waits on them, so the map only grows with contention.
type KeyLock struct {
	mu      sync.Mutex
	entries map[int64]*entry
}

// NewKeyLock creates a new KeyLock instance.
func NewKeyLock() *KeyLock {
	return &KeyLock{entries: make(map[int64]*entry)}
}

func (l *KeyLock) ref(key int64) *entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	if !ok {
		e = &entry{sem: make(chan struct{}, 1)}
		l.entries[key] = e
	}
	e.refs++
	return e
}

func (l *KeyLock) unref(key int64, e *entry) {
	l.mu.Lock()
	defer l.mu.Unlock()

	e.refs--
	if e.refs == 0 {
		delete(l.entries, key)
	}
}

// Lock blocks until the key is acquired or ctx is done.
func (l *KeyLock) Lock(ctx context.Context, key int64) error {
	e := l.ref(key)

	select {
	case e.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		l.unref(key, e)
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return ErrLockTimeout
		}
		return ctx.Err()
	}
}

// TryLock acquires the key without blocking.
func (l *KeyLock) TryLock(key int64) bool {
	e := l.ref(key)

	select {
	case e.sem <- struct{}{}:
		return true
	default:
		l.unref(key, e)
		return false
	}
}

// Unlock releases a key previously acquired with Lock or TryLock.
// Unlocking a key that is not held panics, like sync.Mutex.
func (l *KeyLock) Unlock(key int64) {
	l.mu.Lock()
	e, ok := l.entries[key]
	l.mu.Unlock()

	if !ok {
		panic("lock: unlock of unlocked key")
	}
	select {
	case <-e.sem:
	default:
		panic("lock: unlock of unlocked key")
	}
	l.unref(key, e)
}

// WithLock runs fn while holding key.
func (l *KeyLock) WithLock(ctx context.Context, key int64, fn func() error) error {
	if err := l.Lock(ctx, key); err != nil {
		return err
	}
	defer l.Unlock(key)
	return fn()
}

// IsLocked is a point-in-time check and may change immediately after.
func (l *KeyLock) IsLocked(key int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[key]
	return ok && len(e.sem) == 1
}

// size is the number of live entries; used by tests.
func (l *KeyLock) size() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}
