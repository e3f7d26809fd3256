// Package cache provides the provider-response cache injected into the
// candidate retriever. Keys are normalized query strings; swapping the
// in-memory implementation for a shared one requires no caller changes.
package cache

import (
	"sync"
	"time"
)

// Cache stores serialized provider responses with a TTL.
type Cache interface {
	Get(key string) ([]byte, bool)
	Set(key string, value []byte, ttl time.Duration)
	Delete(key string)
}

type entry struct {
	value     []byte
	expiresAt time.Time
}

// Memory is an in-process TTL cache. Safe for concurrent use. Expired
// entries are evicted lazily on read and opportunistically on write.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]entry
	nowFunc func() time.Time
}

// NewMemory creates an empty in-memory cache.
func NewMemory() *Memory {
	return &Memory{
		entries: make(map[string]entry),
		nowFunc: time.Now,
	}
}

// WithNow fixes the clock for testing.
func (m *Memory) WithNow(now func() time.Time) *Memory {
	m.nowFunc = now
	return m
}

func (m *Memory) Get(key string) ([]byte, bool) {
	m.mu.RLock()
	e, ok := m.entries[key]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	if m.nowFunc().After(e.expiresAt) {
		m.mu.Lock()
		delete(m.entries, key)
		m.mu.Unlock()
		return nil, false
	}
	return e.value, true
}

func (m *Memory) Set(key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := m.nowFunc()
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = entry{value: value, expiresAt: now.Add(ttl)}

	// Sweep a handful of expired neighbors so the map does not grow
	// unbounded under churn.
	swept := 0
	for k, e := range m.entries {
		if swept >= 8 {
			break
		}
		if now.After(e.expiresAt) {
			delete(m.entries, k)
		}
		swept++
	}
}

func (m *Memory) Delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
}

// Len reports the number of live entries (expired ones may linger until
// swept).
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
