package store

import (
	"bytes"
	"context"
	"slices"
	"sync"
	"time"

	"lukechampine.com/blake3"
)

// ---------------------------------------------------------------------------
// Memory: map-backed store
// ---------------------------------------------------------------------------

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu      sync.RWMutex
	entries map[Hash]memoryEntry
	now     func() time.Time
}

type memoryEntry struct {
	data    []byte
	created time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{entries: make(map[Hash]memoryEntry), now: time.Now}
}

// Put stores a copy of data. Storing the same bytes twice is a no-op.
func (m *Memory) Put(_ context.Context, data []byte) (Hash, error) {
	h := blake3.Sum256(data)
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[h]; !ok {
		m.entries[h] = memoryEntry{data: bytes.Clone(data), created: m.now()}
	}
	return h, nil
}

// Get returns a copy of the snapshot with the given hash.
func (m *Memory) Get(_ context.Context, h Hash) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[h]
	if !ok {
		return nil, ErrNotFound
	}
	return bytes.Clone(e.data), nil
}

// Has reports whether the store holds h.
func (m *Memory) Has(_ context.Context, h Hash) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[h]
	return ok, nil
}

// List returns all entries sorted by hash.
func (m *Memory) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	out := make([]Entry, 0, len(m.entries))
	for h, e := range m.entries {
		out = append(out, Entry{Hash: h, Size: len(e.data), Created: e.created})
	}
	m.mu.RUnlock()
	slices.SortFunc(out, func(a, b Entry) int { return bytes.Compare(a.Hash[:], b.Hash[:]) })
	return out, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }
