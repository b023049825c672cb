package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"
)

// entries held by a MemoryCache before older reports are evicted
const DefaultMemoryEntries = 1024

// implements ReportCache in process memory. expired entries are dropped on
// read and swept on write once the cache is full; when nothing has expired
// the entry closest to expiry is evicted.
type MemoryCache struct {
	mu         sync.Mutex
	entries    map[string]memoryEntry
	maxEntries int
	now        func() time.Time
}

type memoryEntry struct {
	value     []byte
	expiresAt time.Time
}

func NewMemoryCache() *MemoryCache {
	return &MemoryCache{
		entries:    make(map[string]memoryEntry),
		maxEntries: DefaultMemoryEntries,
		now:        time.Now,
	}
}

func (c *MemoryCache) Get(_ context.Context, key string, dest any) (bool, error) {
	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && !entry.expiresAt.IsZero() && c.now().After(entry.expiresAt) {
		delete(c.entries, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return false, nil
	}

	if err := json.Unmarshal(entry.value, dest); err != nil {
		return false, fmt.Errorf("failed to decode cached report: %w", err)
	}

	return true, nil
}

// values are stored as JSON so callers never share mutable state
func (c *MemoryCache) Set(_ context.Context, key string, value any, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal report: %w", err)
	}

	entry := memoryEntry{value: raw}
	if ttl > 0 {
		entry.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.maxEntries {
		c.evict()
	}

	c.entries[key] = entry

	return nil
}

// drops expired entries, then the soonest-expiring one if still full.
// caller holds mu.
func (c *MemoryCache) evict() {
	now := c.now()

	for key, entry := range c.entries {
		if !entry.expiresAt.IsZero() && now.After(entry.expiresAt) {
			delete(c.entries, key)
		}
	}

	if len(c.entries) < c.maxEntries {
		return
	}

	var (
		victim  string
		soonest time.Time
		found   bool
	)

	for key, entry := range c.entries {
		// entries without a ttl are evicted last
		expires := entry.expiresAt
		if expires.IsZero() {
			expires = now.Add(100 * 365 * 24 * time.Hour)
		}

		if !found || expires.Before(soonest) {
			victim, soonest, found = key, expires, true
		}
	}

	delete(c.entries, victim)
}

// number of stored entries, including expired ones not yet swept
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.entries)
}
