package moderation

import (
	"context"
	"sort"
	"sync"
)

// MemoryRepository is a process-local Repository.
type MemoryRepository struct {
	mu      sync.RWMutex
	entries map[int64]Entry
}

// NewMemoryRepository creates an empty MemoryRepository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{entries: make(map[int64]Entry)}
}

// IsBlocked implements Repository.
func (m *MemoryRepository) IsBlocked(_ context.Context, playerID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.entries[playerID]
	return ok, nil
}

// Block implements Repository.
func (m *MemoryRepository) Block(_ context.Context, e Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[e.PlayerID] = e
	return nil
}

// Unblock implements Repository.
func (m *MemoryRepository) Unblock(_ context.Context, playerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[playerID]; !ok {
		return ErrNotBlocked
	}
	delete(m.entries, playerID)
	return nil
}

// List implements Repository.
func (m *MemoryRepository) List(_ context.Context) ([]Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PlayerID < out[j].PlayerID })
	return out, nil
}
