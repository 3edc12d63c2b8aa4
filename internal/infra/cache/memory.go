package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	key       string
	value     []byte
	expiresAt time.Time
	createdAt time.Time
}

// Memory is the in-process Backend of spec §4.1: bounded by MaxSize,
// evicting the least-recently-used 10% (minimum 1) on overflow, with
// expired entries purged lazily on Get. Access order is tracked with a
// container/list.List updated on every hit or set (the one stdlib
// container used in this module — no generic LRU library appears in
// the retrieved pack; see DESIGN.md).
type Memory struct {
	mu      sync.Mutex
	maxSize int
	entries map[string]*list.Element // value: *memoryEntry
	order   *list.List               // front = most recently used

	stats Stats
}

// NewMemory creates a memory backend bounded to maxSize entries.
func NewMemory(maxSize int) *Memory {
	if maxSize <= 0 {
		maxSize = 1
	}
	return &Memory{
		maxSize: maxSize,
		entries: make(map[string]*list.Element),
		order:   list.New(),
	}
}

// Get returns the value for key, or ok=false on miss or expiry.
func (m *Memory) Get(_ context.Context, key string) ([]byte, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	el, found := m.entries[key]
	if !found {
		m.stats.Misses++
		return nil, false, nil
	}

	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		m.removeLocked(el)
		m.stats.Misses++
		return nil, false, nil
	}

	m.order.MoveToFront(el)
	m.stats.Hits++
	return entry.value, true, nil
}

// Set stores value under key with the given ttl (zero means no expiry),
// evicting the LRU 10% (minimum 1) if the backend is at capacity.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	if el, found := m.entries[key]; found {
		entry := el.Value.(*memoryEntry)
		entry.value = value
		entry.expiresAt = expiresAt
		m.order.MoveToFront(el)
		return nil
	}

	if len(m.entries) >= m.maxSize {
		m.evictLocked()
	}

	entry := &memoryEntry{key: key, value: value, expiresAt: expiresAt, createdAt: time.Now()}
	el := m.order.PushFront(entry)
	m.entries[key] = el
	return nil
}

// evictLocked drops the least-recently-used 10% of entries (minimum 1).
// Caller holds m.mu.
func (m *Memory) evictLocked() {
	n := len(m.entries) / 10
	if n < 1 {
		n = 1
	}
	for i := 0; i < n; i++ {
		oldest := m.order.Back()
		if oldest == nil {
			return
		}
		m.removeLocked(oldest)
	}
}

// removeLocked drops one element. Caller holds m.mu.
func (m *Memory) removeLocked(el *list.Element) {
	entry := el.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.order.Remove(el)
}

// Delete removes key if present; absence is not an error.
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if el, found := m.entries[key]; found {
		m.removeLocked(el)
	}
	return nil
}

// Exists reports whether key is present and unexpired, without
// affecting LRU order or hit/miss stats (spec §4.1's `exists` is a
// plain membership check, not a counted lookup).
func (m *Memory) Exists(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	el, found := m.entries[key]
	if !found {
		return false, nil
	}
	entry := el.Value.(*memoryEntry)
	if !entry.expiresAt.IsZero() && time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return true, nil
}

// Clear removes all entries.
func (m *Memory) Clear(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*list.Element)
	m.order = list.New()
	return nil
}

// Stats returns the current hit/miss counters.
func (m *Memory) Stats() Stats {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stats
}

// Len returns the number of live entries (test/introspection helper).
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}
