package ratelimit

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Bound caps the number of entries recorded at or after Since.
type Bound struct {
	Since time.Time
	Max   int
}

// Store keeps the rolling request timestamps for each key.
// Implementations must be safe for concurrent use.
type Store interface {
	// Timestamps returns entries at or after since in ascending order,
	// pruning anything older.
	Timestamps(ctx context.Context, key string, since time.Time) ([]time.Time, error)
	// Record appends one entry.
	Record(ctx context.Context, key string, at time.Time) error
	// TryRecord prunes entries older than pruneBefore and records at only if
	// every bound still has room. The check and the write happen atomically.
	TryRecord(ctx context.Context, key string, at, pruneBefore time.Time, bounds []Bound) (bool, error)
	// Purge removes entries older than before across all keys and reports how many were dropped.
	Purge(ctx context.Context, before time.Time) (int, error)
}

// MemoryStore is an in-process Store guarded by a mutex.
type MemoryStore struct {
	mu      sync.Mutex
	windows map[string][]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{windows: make(map[string][]time.Time)}
}

func (m *MemoryStore) Timestamps(_ context.Context, key string, since time.Time) ([]time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.pruneLocked(key, since)
	out := make([]time.Time, len(ts))
	copy(out, ts)
	return out, nil
}

func (m *MemoryStore) Record(_ context.Context, key string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.insertLocked(key, at)
	return nil
}

func (m *MemoryStore) TryRecord(_ context.Context, key string, at, pruneBefore time.Time, bounds []Bound) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ts := m.pruneLocked(key, pruneBefore)
	for _, b := range bounds {
		if b.Max <= 0 {
			continue
		}
		if countSince(ts, b.Since) >= b.Max {
			return false, nil
		}
	}
	m.insertLocked(key, at)
	return true, nil
}

func (m *MemoryStore) Purge(_ context.Context, before time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	removed := 0
	for key, ts := range m.windows {
		kept := m.pruneLocked(key, before)
		removed += len(ts) - len(kept)
	}
	return removed, nil
}

// pruneLocked drops entries before since; empty windows are deleted.
func (m *MemoryStore) pruneLocked(key string, since time.Time) []time.Time {
	ts := m.windows[key]
	i := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(since) })
	ts = ts[i:]
	if len(ts) == 0 {
		delete(m.windows, key)
		return nil
	}
	m.windows[key] = ts
	return ts
}

func (m *MemoryStore) insertLocked(key string, at time.Time) {
	ts := m.windows[key]
	i := sort.Search(len(ts), func(i int) bool { return ts[i].After(at) })
	ts = append(ts, time.Time{})
	copy(ts[i+1:], ts[i:])
	ts[i] = at
	m.windows[key] = ts
}

func countSince(ts []time.Time, since time.Time) int {
	i := sort.Search(len(ts), func(i int) bool { return !ts[i].Before(since) })
	return len(ts) - i
}
