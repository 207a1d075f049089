package cache

import (
	"context"
	"sync"
	"time"

	"github.com/hydrosense/droughtmap/internal/metrics"
)

// Memory is the in-process tier: a bounded map with per-entry expiry. When
// full it drops expired entries first, then arbitrary ones; correctness
// never depends on what stays cached.
type Memory struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	max     int
}

type memoryEntry struct {
	value   []byte
	expires time.Time
}

const defaultMemoryMax = 1024

func NewMemory(max int) *Memory {
	if max <= 0 {
		max = defaultMemoryMax
	}
	return &Memory{
		entries: make(map[string]memoryEntry),
		max:     max,
	}
}

func (m *Memory) Get(_ context.Context, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[key]
	if !ok {
		metrics.CacheLookupsTotal.WithLabelValues("memory", "miss").Inc()
		return nil, false
	}
	if time.Now().After(e.expires) {
		delete(m.entries, key)
		metrics.CacheLookupsTotal.WithLabelValues("memory", "expired").Inc()
		return nil, false
	}
	metrics.CacheLookupsTotal.WithLabelValues("memory", "hit").Inc()
	return e.value, true
}

func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; !exists && len(m.entries) >= m.max {
		m.evictLocked()
	}
	m.entries[key] = memoryEntry{value: value, expires: time.Now().Add(ttl)}
}

func (m *Memory) evictLocked() {
	now := time.Now()
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	for k := range m.entries {
		if len(m.entries) < m.max {
			break
		}
		delete(m.entries, k)
	}
}
