package handoffs

import (
	"context"
	"slices"
	"sync"
	"time"
)

// in-process handoff store for tests and single-node development
type MemoryRepository struct {
	mu       sync.RWMutex
	handoffs map[string]*Handoff
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{handoffs: make(map[string]*Handoff)}
}

func (r *MemoryRepository) Create(_ context.Context, h *Handoff) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handoffs[h.Token]; exists {
		return ErrDuplicateToken
	}

	stored := *h
	r.handoffs[h.Token] = &stored

	return nil
}

func (r *MemoryRepository) GetByToken(_ context.Context, token string) (*Handoff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	h, ok := r.handoffs[token]
	if !ok {
		return nil, ErrHandoffNotFound
	}

	copied := *h
	return &copied, nil
}

func (r *MemoryRepository) Complete(_ context.Context, token string, data CompletionData, at time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	h, ok := r.handoffs[token]
	if !ok || h.Status != StatusRedirected {
		return false, nil
	}

	h.Status = StatusCompleted
	h.CompletionData = &data
	h.CompletedAt = &at

	return true, nil
}

func (r *MemoryRepository) ExpireBefore(_ context.Context, cutoff, at time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, h := range r.handoffs {
		if h.Status != StatusRedirected || !h.CreatedAt.Before(cutoff) {
			continue
		}

		expiredAt := at
		h.Status = StatusExpired
		h.ExpiredAt = &expiredAt
		n++
	}

	return n, nil
}

func (r *MemoryRepository) FindRecentByAccount(
	_ context.Context,
	contextID, accountNumber string,
	since time.Time,
) (*Handoff, error) {
	return r.mostRecent(func(h *Handoff) bool {
		return h.AccountNumber == accountNumber &&
			(contextID == "" || h.ContextID == contextID) &&
			!h.CreatedAt.Before(since)
	})
}

func (r *MemoryRepository) FindRecentByVisitors(_ context.Context, contextID string, visitorIDs []string) (*Handoff, error) {
	return r.mostRecent(func(h *Handoff) bool {
		return slices.Contains(visitorIDs, h.VisitorID) &&
			(contextID == "" || h.ContextID == contextID)
	})
}

func (r *MemoryRepository) Stats(_ context.Context, contextID string, from, to time.Time) (*Stats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var s Stats
	for _, h := range r.handoffs {
		if contextID != "" && h.ContextID != contextID {
			continue
		}

		if (!from.IsZero() && h.CreatedAt.Before(from)) || (!to.IsZero() && h.CreatedAt.After(to)) {
			continue
		}

		s.Total++

		switch h.Status {
		case StatusRedirected:
			s.Redirected++
		case StatusCompleted:
			s.Completed++
		case StatusExpired:
			s.Expired++
		}
	}

	return &s, nil
}

// latest redirected handoff accepted by keep
func (r *MemoryRepository) mostRecent(keep func(h *Handoff) bool) (*Handoff, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Handoff
	for _, h := range r.handoffs {
		if h.Status != StatusRedirected || !keep(h) {
			continue
		}

		if best == nil || h.CreatedAt.After(best.CreatedAt) {
			best = h
		}
	}

	if best == nil {
		return nil, ErrHandoffNotFound
	}

	copied := *best
	return &copied, nil
}

// in-process completion store
type MemoryCompletionRepository struct {
	mu          sync.RWMutex
	completions []*Completion
}

func NewMemoryCompletionRepository() *MemoryCompletionRepository {
	return &MemoryCompletionRepository{}
}

func (r *MemoryCompletionRepository) Insert(_ context.Context, c *Completion) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	stored := *c
	r.completions = append(r.completions, &stored)

	return nil
}

func (r *MemoryCompletionRepository) Link(_ context.Context, id, handoffID, strategy string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.find(id)
	if c == nil {
		return ErrCompletionNotFound
	}

	c.HandoffID = handoffID
	c.MatchStrategy = strategy
	c.MatchedAt = &at
	c.Attempts++

	return nil
}

func (r *MemoryCompletionRepository) RecordAttempt(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if c := r.find(id); c != nil {
		c.Attempts++
	}

	return nil
}

func (r *MemoryCompletionRepository) ListUnmatched(_ context.Context, limit int) ([]Completion, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Completion
	for _, c := range r.completions {
		if c.HandoffID != "" {
			continue
		}

		out = append(out, *c)
	}

	slices.SortStableFunc(out, func(a, b Completion) int {
		return a.ReceivedAt.Compare(b.ReceivedAt)
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}

	return out, nil
}

// returns a stored completion by id
func (r *MemoryCompletionRepository) Get(id string) (*Completion, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c := r.find(id)
	if c == nil {
		return nil, false
	}

	copied := *c
	return &copied, true
}

func (r *MemoryCompletionRepository) find(id string) *Completion {
	for _, c := range r.completions {
		if c.ID == id {
			return c
		}
	}

	return nil
}
