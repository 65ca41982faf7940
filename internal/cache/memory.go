package cache

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/lumilearn/content-pipeline/internal/content"
	"github.com/lumilearn/content-pipeline/internal/fingerprint"
	"github.com/lumilearn/content-pipeline/internal/validation"
)

// memoryEntry is one cached result plus its expiry bookkeeping.
type memoryEntry struct {
	key        string
	result     validation.Result
	insertedAt time.Time
	expiresAt  time.Time
}

// Memory is the in-process Cache: a map guarded by a short mutex plus an
// insertion-ordered list for oldest-first eviction. Expired entries are
// dropped lazily on Get and eagerly by a background sweep.
type Memory struct {
	mu       sync.Mutex
	entries  map[string]*list.Element
	order    *list.List // front = oldest
	capacity int

	sweepStop chan struct{}
	sweepOnce sync.Once
}

// NewMemory creates an in-memory cache bounded to capacity entries. A sweep
// goroutine runs every sweepInterval; pass zero to disable it (tests).
func NewMemory(capacity int, sweepInterval time.Duration) *Memory {
	if capacity <= 0 {
		capacity = 1024
	}
	m := &Memory{
		entries:   make(map[string]*list.Element),
		order:     list.New(),
		capacity:  capacity,
		sweepStop: make(chan struct{}),
	}
	if sweepInterval > 0 {
		go m.sweepLoop(sweepInterval)
	}
	return m
}

func (m *Memory) Get(_ context.Context, fp fingerprint.Fingerprint, ct content.Type) (*validation.Result, bool, error) {
	key := Key(fp, ct)

	m.mu.Lock()
	defer m.mu.Unlock()

	elem, ok := m.entries[key]
	if !ok {
		return nil, false, nil
	}
	entry := elem.Value.(*memoryEntry)
	if time.Now().After(entry.expiresAt) {
		m.removeLocked(elem)
		return nil, false, nil
	}

	// Copy so callers can flag FromCache without mutating the stored value.
	res := entry.result
	return &res, true, nil
}

func (m *Memory) Put(_ context.Context, fp fingerprint.Fingerprint, ct content.Type, result *validation.Result, ttl time.Duration) error {
	key := Key(fp, ct)
	now := time.Now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.removeLocked(elem)
	}

	// A full cache never blocks a write: the oldest entry makes room.
	for len(m.entries) >= m.capacity {
		oldest := m.order.Front()
		if oldest == nil {
			break
		}
		m.removeLocked(oldest)
	}

	entry := &memoryEntry{
		key:        key,
		result:     *result,
		insertedAt: now,
		expiresAt:  now.Add(ttl),
	}
	m.entries[key] = m.order.PushBack(entry)
	return nil
}

func (m *Memory) Delete(_ context.Context, fp fingerprint.Fingerprint, ct content.Type) error {
	key := Key(fp, ct)

	m.mu.Lock()
	defer m.mu.Unlock()

	if elem, ok := m.entries[key]; ok {
		m.removeLocked(elem)
	}
	return nil
}

func (m *Memory) Len(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries), nil
}

func (m *Memory) Ping(_ context.Context) error { return nil }

// Close stops the background sweep.
func (m *Memory) Close() {
	m.sweepOnce.Do(func() { close(m.sweepStop) })
}

// removeLocked unlinks an element from both the map and the order list.
// Callers must hold m.mu.
func (m *Memory) removeLocked(elem *list.Element) {
	entry := elem.Value.(*memoryEntry)
	delete(m.entries, entry.key)
	m.order.Remove(elem)
}

func (m *Memory) sweepLoop(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-m.sweepStop:
			return
		case <-ticker.C:
			m.sweep(time.Now())
		}
	}
}

// sweep evicts every expired entry in one pass.
func (m *Memory) sweep(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var next *list.Element
	for elem := m.order.Front(); elem != nil; elem = next {
		next = elem.Next()
		if now.After(elem.Value.(*memoryEntry).expiresAt) {
			m.removeLocked(elem)
		}
	}
}
