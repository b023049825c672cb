package visitors

import (
	"context"
	"sort"
	"sync"
	"time"
)

// implements Repository in memory; used by tests and storage-less runs
type MemoryRepository struct {
	mu       sync.RWMutex
	visitors map[string]*Visitor
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{visitors: make(map[string]*Visitor)}
}

func (m *MemoryRepository) Create(_ context.Context, v *Visitor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.visitors[v.ID]; exists {
		return ErrDuplicateID
	}

	stored := *v
	m.visitors[v.ID] = &stored
	return nil
}

func (m *MemoryRepository) Get(_ context.Context, id string) (*Visitor, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.visitors[id]
	if !ok {
		return nil, ErrVisitorNotFound
	}

	out := *v
	return &out, nil
}

func (m *MemoryRepository) RecordVisit(_ context.Context, id string, at time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visitors[id]
	if !ok {
		return false, nil
	}

	v.LastSeenAt = at
	v.VisitCount++
	return true, nil
}

func (m *MemoryRepository) SetEmailHash(_ context.Context, id, emailHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	v, ok := m.visitors[id]
	if !ok {
		return false, nil
	}

	v.EmailHash = emailHash
	return true, nil
}

func (m *MemoryRepository) FindByEmailHash(_ context.Context, emailHash string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []*Visitor
	for _, v := range m.visitors {
		if v.EmailHash != "" && v.EmailHash == emailHash {
			matches = append(matches, v)
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].LastSeenAt.After(matches[j].LastSeenAt)
	})

	ids := make([]string, len(matches))
	for i, v := range matches {
		ids[i] = v.ID
	}

	return ids, nil
}
