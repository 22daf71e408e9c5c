// Package locker provides per-entity mutual exclusion. Operations against
// the same group or original must serialize; operations against independent
// entities may run in parallel.
package locker

import "sync"

// Keyed hands out one mutex per int64 key. Mutexes are created on first use
// and retained for the process lifetime (entity counts are small and
// monotonic, so there is no eviction).
type Keyed struct {
	mu    sync.Mutex
	locks map[int64]*sync.Mutex
}

// NewKeyed creates an empty keyed lock set.
func NewKeyed() *Keyed {
	return &Keyed{locks: make(map[int64]*sync.Mutex)}
}

// Lock acquires the mutex for key and returns its unlock function.
//
//	defer locks.Lock(groupID)()
func (k *Keyed) Lock(key int64) func() {
	k.mu.Lock()
	m, ok := k.locks[key]
	if !ok {
		m = &sync.Mutex{}
		k.locks[key] = m
	}
	k.mu.Unlock()

	m.Lock()
	return m.Unlock
}
