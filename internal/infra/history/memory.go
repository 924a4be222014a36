package history

import (
	"context"
	"sort"
	"sync"

	"staysane/internal/app/policies"
)

// MemoryStore keeps history in process for the memory driver and tests.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string][]policies.HistoryEntry
	seen    map[string]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string][]policies.HistoryEntry{}, seen: map[string]struct{}{}}
}

func (m *MemoryStore) Append(_ context.Context, entry policies.HistoryEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, dup := m.seen[entry.EventID]; dup {
		return nil
	}
	m.seen[entry.EventID] = struct{}{}
	list := append(m.entries[entry.BookingID], entry)
	sort.SliceStable(list, func(i, j int) bool { return list[i].At.Before(list[j].At) })
	m.entries[entry.BookingID] = list
	return nil
}

func (m *MemoryStore) History(_ context.Context, bookingID string, limit int) ([]policies.HistoryEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	list := m.entries[bookingID]
	if limit > 0 && len(list) > limit {
		list = list[:limit]
	}
	return append([]policies.HistoryEntry(nil), list...), nil
}

var _ Store = (*MemoryStore)(nil)
