package cache

import (
	"context"
	"sync"

	"github.com/warp/revenue-engine/revenue"
)

// =============================================================================
// MEMORY STORE - In-process entry storage (default backend)
// =============================================================================

// MemoryStore keeps entries in a process-local map. Entries do not survive
// a restart; that is the intended lifecycle for this cache.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[revenue.CacheKey]Entry
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[revenue.CacheKey]Entry)}
}

func (m *MemoryStore) Get(_ context.Context, key revenue.CacheKey) (Entry, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.entries[key]
	return e, ok, nil
}

func (m *MemoryStore) Set(_ context.Context, key revenue.CacheKey, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[key] = e
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, key revenue.CacheKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, key)
	return nil
}

// Invalidate removes every entry whose key matches BOTH tenant and
// property. Entries for the same property under another tenant are left
// alone; they are a different tenant's data.
func (m *MemoryStore) Invalidate(_ context.Context, tenant revenue.TenantID, property revenue.PropertyID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		if key.Tenant() == tenant && key.Property() == property {
			delete(m.entries, key)
		}
	}
	return nil
}

// Len reports the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
