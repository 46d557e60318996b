// Package ordmap owns a mutex-guarded key-ordered map used as a small
// thread-safe priority structure.
//
// Ownership boundary:
// - single-critical-section map operations
// - insert-or-raise accumulator (InsertMax)
// - pop-smallest-key dispatch (RemoveMin)
//
// Several maps may share one lock domain by being constructed over the same
// mutex. Expected cardinalities are small (bounded by thread and device
// counts), so a sorted key slice under one lock beats a separate heap.
package ordmap

import (
	"cmp"
	"slices"
	"sync"
)

// Map is a key-ordered associative container. Every public operation is a
// single critical section on the mutex supplied at construction; no operation
// is observable partially applied.
type Map[K cmp.Ordered, V cmp.Ordered] struct {
	mu   *sync.Mutex
	keys []K
	vals map[K]V
}

// New builds a map guarded by mu. A nil mu gives the map its own lock.
func New[K cmp.Ordered, V cmp.Ordered](mu *sync.Mutex) *Map[K, V] {
	if mu == nil {
		mu = &sync.Mutex{}
	}
	return &Map[K, V]{
		mu:   mu,
		vals: make(map[K]V),
	}
}

func (m *Map[K, V]) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.keys)
}

// Insert stores (key, value) if key is absent and reports whether it did.
func (m *Map[K, V]) Insert(key K, value V) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; ok {
		return false
	}
	m.place(key, value)
	return true
}

// Set stores (key, value) unconditionally.
func (m *Map[K, V]) Set(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; !ok {
		m.place(key, value)
		return
	}
	m.vals[key] = value
}

func (m *Map[K, V]) Get(key K) (V, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vals[key]
	return v, ok
}

func (m *Map[K, V]) Delete(key K) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.vals[key]; !ok {
		return false
	}
	i, _ := slices.BinarySearch(m.keys, key)
	m.keys = slices.Delete(m.keys, i, i+1)
	delete(m.vals, key)
	return true
}

func (m *Map[K, V]) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.keys = m.keys[:0]
	clear(m.vals)
}

// Keys returns a snapshot of the keys in ascending order.
func (m *Map[K, V]) Keys() []K {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]K, len(m.keys))
	copy(out, m.keys)
	return out
}

// InsertMax stores (key, value) if key is absent, and otherwise replaces the
// stored value only when value compares greater. The entry under each key
// therefore holds the maximum of every value ever offered for it.
func (m *Map[K, V]) InsertMax(key K, value V) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.vals[key]
	if !ok {
		m.place(key, value)
		return
	}
	if value > cur {
		m.vals[key] = value
	}
}

// RemoveMin pops the entry with the smallest key. It reports ok=false on an
// empty map instead of failing.
func (m *Map[K, V]) RemoveMin() (key K, value V, ok bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.keys) == 0 {
		return key, value, false
	}
	key = m.keys[0]
	value = m.vals[key]
	m.keys = slices.Delete(m.keys, 0, 1)
	delete(m.vals, key)
	return key, value, true
}

// place inserts a key known to be absent. Callers hold the mutex.
func (m *Map[K, V]) place(key K, value V) {
	i, _ := slices.BinarySearch(m.keys, key)
	m.keys = slices.Insert(m.keys, i, key)
	m.vals[key] = value
}
