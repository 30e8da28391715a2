// Package lock serializes trade execution per player. The default is
// an in-process keyed mutex (single instance); a Redis lock covers
// multi-instance deployments.
package lock

import (
	"context"
	"sync"
)

// Locker acquires an exclusive lock for a key and returns its release
// function.
type Locker interface {
	Acquire(ctx context.Context, key string) (release func(), err error)
}

// Keyed is a mutex per key with reference counting so idle entries do
// not accumulate.
type Keyed struct {
	mu    sync.Mutex
	locks map[string]*keyedEntry
}

type keyedEntry struct {
	mu   sync.Mutex
	refs int
}

func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[string]*keyedEntry)}
}

func (k *Keyed) Acquire(_ context.Context, key string) (func(), error) {
	k.mu.Lock()
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedEntry{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}, nil
}
