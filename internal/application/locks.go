package application

import (
	"context"
	"slices"
	"sync"
)

// KeyedMutex hands out exclusive sections per key. Lock takes every key of one
// operation at once, in sorted order, so operations touching overlapping key
// sets cannot deadlock.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: map[string]*keyedLock{}}
}

func (k *KeyedMutex) Lock(keys ...string) (unlock func()) {
	keys = slices.Clone(keys)
	slices.Sort(keys)
	keys = slices.Compact(keys)

	held := make([]*keyedLock, 0, len(keys))
	for _, key := range keys {
		l := k.acquire(key)
		l.mu.Lock()
		held = append(held, l)
	}
	return func() {
		for i := len(held) - 1; i >= 0; i-- {
			held[i].mu.Unlock()
			k.release(keys[i])
		}
	}
}

func (k *KeyedMutex) acquire(key string) *keyedLock {
	k.mu.Lock()
	defer k.mu.Unlock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	return l
}

func (k *KeyedMutex) release(key string) {
	k.mu.Lock()
	defer k.mu.Unlock()
	l := k.locks[key]
	l.refs--
	if l.refs == 0 {
		delete(k.locks, key)
	}
}

// LockScanned locks base together with the key of every id scan reports. The
// scan is repeated under the lock until the locked keys cover its result, so
// the returned ids cannot grow until unlock is called.
func (k *KeyedMutex) LockScanned(ctx context.Context, base []string, keyOf func(id string) string, scan func(ctx context.Context) ([]string, error)) (ids []string, unlock func(), err error) {
	ids, err = scan(ctx)
	if err != nil {
		return nil, nil, err
	}
	for {
		keys := slices.Clone(base)
		for _, id := range ids {
			keys = append(keys, keyOf(id))
		}
		unlock = k.Lock(keys...)
		current, err := scan(ctx)
		if err != nil {
			unlock()
			return nil, nil, err
		}
		covered := true
		for _, id := range current {
			if !slices.Contains(ids, id) {
				covered = false
				break
			}
		}
		if covered {
			return current, unlock, nil
		}
		unlock()
		ids = current
	}
}
