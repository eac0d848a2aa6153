package session

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	rec       Record
	expiresAt time.Time
}

// MemStore is the default single-process store: a mutex-guarded map with
// opportunistic expiry sweeps.
type MemStore struct {
	mu      sync.Mutex
	items   map[string]memEntry
	lastGC  time.Time
	gcEvery time.Duration
}

func NewMemStore() *MemStore {
	return &MemStore{
		items:   make(map[string]memEntry),
		gcEvery: time.Minute,
	}
}

func (m *MemStore) Get(_ context.Context, id string) (*Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gc()
	e, ok := m.items[id]
	if !ok || time.Now().After(e.expiresAt) {
		delete(m.items, id)
		return nil, ErrNotFound
	}
	rec := e.rec // copy out; callers own their view
	return &rec, nil
}

func (m *MemStore) Set(_ context.Context, id string, rec *Record, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gc()
	m.items[id] = memEntry{rec: *rec, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *MemStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.items, id)
	return nil
}

// gc drops expired entries; caller holds the lock.
func (m *MemStore) gc() {
	now := time.Now()
	if now.Sub(m.lastGC) < m.gcEvery {
		return
	}
	m.lastGC = now
	for id, e := range m.items {
		if now.After(e.expiresAt) {
			delete(m.items, id)
		}
	}
}
