package cache

import (
	"context"
	"sync"
	"time"

	"roofline/internal/clock"
	"roofline/internal/domain"
)

type memoryEntry struct {
	measurement domain.Measurement
	storedAt    time.Time
}

type MemoryCache struct {
	mu        sync.RWMutex
	entries   map[string]memoryEntry
	freshness time.Duration
	clock     clock.Clock
}

func NewMemoryCache(freshness time.Duration, clk clock.Clock) *MemoryCache {
	return &MemoryCache{
		entries:   make(map[string]memoryEntry),
		freshness: freshness,
		clock:     clk,
	}
}

func (c *MemoryCache) Get(_ context.Context, address string, tier domain.Tier) (*domain.Measurement, bool) {
	key := Key(address, tier)

	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	if c.clock.Now().Sub(entry.storedAt) >= c.freshness {
		c.mu.Lock()
		if current, ok := c.entries[key]; ok && current.storedAt.Equal(entry.storedAt) {
			delete(c.entries, key)
		}
		c.mu.Unlock()
		return nil, false
	}

	m := entry.measurement.Clone()
	return &m, true
}

func (c *MemoryCache) Put(_ context.Context, address string, tier domain.Tier, m domain.Measurement) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[Key(address, tier)] = memoryEntry{
		measurement: m.Clone(),
		storedAt:    c.clock.Now(),
	}
}
