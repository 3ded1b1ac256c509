package session

import (
	"sort"
	"sync"
)

// SyncMap is a type-safe concurrent map using generics.
// Lifecycle operations hold the manager's lock; lookups from other
// goroutines only need the map's own read lock.
type SyncMap[K comparable, V any] struct {
	m  map[K]V
	mu sync.RWMutex
}

// NewSyncMap creates a new type-safe concurrent map.
func NewSyncMap[K comparable, V any]() *SyncMap[K, V] {
	return &SyncMap[K, V]{
		m: make(map[K]V),
	}
}

// Load returns the value stored for key and whether it was present.
func (sm *SyncMap[K, V]) Load(key K) (value V, ok bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	value, ok = sm.m[key]
	return
}

// Store sets the value for a key.
func (sm *SyncMap[K, V]) Store(key K, value V) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.m[key] = value
}

// Swap moves the value at from to to in one step, replacing it with value.
// It reports false, changing nothing, if from is absent or to is taken.
func (sm *SyncMap[K, V]) Swap(from, to K, value V) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if _, ok := sm.m[from]; !ok {
		return false
	}
	if _, taken := sm.m[to]; taken && to != from {
		return false
	}
	delete(sm.m, from)
	sm.m[to] = value
	return true
}

// LoadAndDelete deletes the value for a key, returning it if it was present.
func (sm *SyncMap[K, V]) LoadAndDelete(key K) (value V, ok bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	value, ok = sm.m[key]
	delete(sm.m, key)
	return
}

// Values returns a snapshot of the values.
func (sm *SyncMap[K, V]) Values() []V {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	out := make([]V, 0, len(sm.m))
	for _, v := range sm.m {
		out = append(out, v)
	}
	return out
}

// Len returns the number of items in the map.
func (sm *SyncMap[K, V]) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()
	return len(sm.m)
}

// sortedKeys returns the string keys of sm in order.
func sortedKeys[V any](sm *SyncMap[string, V]) []string {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	keys := make([]string, 0, len(sm.m))
	for k := range sm.m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
