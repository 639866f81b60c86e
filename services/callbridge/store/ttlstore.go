// Package store provides a generic in-memory map with per-entry expiry.
package store

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e *entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// TTLStore is a map whose entries expire. A background goroutine removes
// expired entries and hands them to the eviction callback.
type TTLStore[K comparable, V any] struct {
	mu       sync.Mutex
	items    map[K]*entry[V]
	onEvict  func(key K, value V)
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewTTLStore starts a store that sweeps every cleanupInterval. onEvict may
// be nil; it is called for entries removed by expiry or Close, never for
// Delete.
func NewTTLStore[K comparable, V any](cleanupInterval time.Duration, onEvict func(key K, value V)) *TTLStore[K, V] {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Second
	}
	s := &TTLStore[K, V]{
		items:   make(map[K]*entry[V]),
		onEvict: onEvict,
		stopCh:  make(chan struct{}),
	}
	go s.cleanupLoop(cleanupInterval)
	return s
}

// Set stores value under key for ttl, replacing any previous entry.
func (s *TTLStore[K, V]) Set(key K, value V, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = &entry[V]{value: value, expiresAt: time.Now().Add(ttl)}
}

// SetIfAbsent stores value only when key has no live entry. It reports
// whether the value was stored.
func (s *TTLStore[K, V]) SetIfAbsent(key K, value V, ttl time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	if e, ok := s.items[key]; ok && !e.expired(now) {
		return false
	}
	s.items[key] = &entry[V]{value: value, expiresAt: now.Add(ttl)}
	return true
}

// Get returns the live value for key.
func (s *TTLStore[K, V]) Get(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok || e.expired(time.Now()) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Has reports whether key has a live entry.
func (s *TTLStore[K, V]) Has(key K) bool {
	_, ok := s.Get(key)
	return ok
}

// Delete removes key and returns the removed value.
func (s *TTLStore[K, V]) Delete(key K) (V, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.items[key]
	if !ok {
		var zero V
		return zero, false
	}
	delete(s.items, key)
	return e.value, true
}

// Len returns the number of live entries.
func (s *TTLStore[K, V]) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for _, e := range s.items {
		if !e.expired(now) {
			n++
		}
	}
	return n
}

// Close stops the sweeper and evicts every remaining entry.
func (s *TTLStore[K, V]) Close() {
	s.stopOnce.Do(func() {
		close(s.stopCh)
		s.mu.Lock()
		items := s.items
		s.items = make(map[K]*entry[V])
		s.mu.Unlock()
		if s.onEvict != nil {
			for k, e := range items {
				s.onEvict(k, e.value)
			}
		}
	})
}

func (s *TTLStore[K, V]) cleanupLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.sweep()
		case <-s.stopCh:
			return
		}
	}
}

// sweep removes expired entries; callbacks run outside the lock.
func (s *TTLStore[K, V]) sweep() {
	now := time.Now()
	type evicted struct {
		key   K
		value V
	}
	var out []evicted

	s.mu.Lock()
	for k, e := range s.items {
		if e.expired(now) {
			out = append(out, evicted{k, e.value})
			delete(s.items, k)
		}
	}
	s.mu.Unlock()

	if s.onEvict != nil {
		for _, e := range out {
			s.onEvict(e.key, e.value)
		}
	}
}
