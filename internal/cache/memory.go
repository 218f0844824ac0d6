package cache

import (
	"sync"
	"time"
)

// memoryEntry pairs a payload with its expiry.
type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

// memoryStore is the bounded in-process fallback tier. Eviction is
// insertion-order with re-insertion on hit, plus a lazy expiry check on read.
// The mutex is required: handlers run on OS threads, unlike the
// single-threaded runtime this design originated on.
type memoryStore struct {
	mu       sync.Mutex
	entries  map[string]memoryEntry
	order    []string
	capacity int
	now      func() time.Time
}

func newMemoryStore(capacity int) *memoryStore {
	if capacity <= 0 {
		capacity = 1000
	}
	return &memoryStore{
		entries:  make(map[string]memoryEntry),
		capacity: capacity,
		now:      time.Now,
	}
}

func (m *memoryStore) get(key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if m.now().After(entry.expiresAt) {
		delete(m.entries, key)
		m.removeFromOrder(key)
		return nil, false
	}
	// Re-insert on hit to approximate recency.
	m.removeFromOrder(key)
	m.order = append(m.order, key)
	return entry.value, true
}

func (m *memoryStore) set(key string, value []byte, ttl time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; exists {
		m.removeFromOrder(key)
	} else if len(m.entries) >= m.capacity {
		oldest := m.order[0]
		m.order = m.order[1:]
		delete(m.entries, oldest)
	}
	m.entries[key] = memoryEntry{value: value, expiresAt: m.now().Add(ttl)}
	m.order = append(m.order, key)
}

func (m *memoryStore) removeFromOrder(key string) {
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			return
		}
	}
}

func (m *memoryStore) size() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
