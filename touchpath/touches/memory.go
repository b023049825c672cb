package touches

import (
	"context"
	"sort"
	"sync"
	"time"
)

// implements Repository in memory; used by tests and storage-less runs
type MemoryRepository struct {
	mu      sync.RWMutex
	touches []Touch
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{}
}

func (m *MemoryRepository) Insert(_ context.Context, t *Touch) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.touches = append(m.touches, *t)
	return nil
}

func (m *MemoryRepository) ListForVisitor(_ context.Context, visitorID string, until time.Time) ([]Touch, error) {
	return m.filter(func(t *Touch) bool {
		return t.VisitorID == visitorID && !t.CreatedAt.After(until)
	}), nil
}

func (m *MemoryRepository) ListConversions(_ context.Context, f Filter) ([]Touch, error) {
	return m.filter(func(t *Touch) bool {
		return t.Type == TypeFormComplete && matches(f, t)
	}), nil
}

func (m *MemoryRepository) ListInRange(_ context.Context, f Filter) ([]Touch, error) {
	return m.filter(func(t *Touch) bool {
		return matches(f, t)
	}), nil
}

func (m *MemoryRepository) DeleteOlderThan(_ context.Context, cutoff time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.touches[:0]
	var deleted int64

	for _, t := range m.touches {
		if t.CreatedAt.Before(cutoff) {
			deleted++
			continue
		}
		kept = append(kept, t)
	}

	m.touches = kept
	return deleted, nil
}

func (m *MemoryRepository) filter(keep func(t *Touch) bool) []Touch {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Touch
	for i := range m.touches {
		if keep(&m.touches[i]) {
			out = append(out, m.touches[i])
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}

func matches(f Filter, t *Touch) bool {
	if f.ContextID != "" && t.ContextID != f.ContextID {
		return false
	}

	return f.Contains(t.CreatedAt)
}
