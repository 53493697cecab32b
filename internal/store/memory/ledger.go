package memory

import (
	"context"
	"sync"
	"time"

	"roofline/internal/domain"
)

type UsageLog struct {
	mu      sync.RWMutex
	entries []domain.UsageEntry
}

func NewUsageLog() *UsageLog {
	return &UsageLog{entries: make([]domain.UsageEntry, 0)}
}

func (l *UsageLog) Append(_ context.Context, entry domain.UsageEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry.ID = int64(len(l.entries) + 1)
	l.entries = append(l.entries, entry)
	return nil
}

func (l *UsageLog) Totals(_ context.Context) ([]domain.ProviderUsage, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	totals, _, _ := domain.SummarizeUsage(l.entries)
	return totals, nil
}

// Entries returns a copy of everything appended so far.
func (l *UsageLog) Entries() []domain.UsageEntry {
	l.mu.RLock()
	defer l.mu.RUnlock()

	return append([]domain.UsageEntry(nil), l.entries...)
}

type DailyCounter struct {
	mu     sync.Mutex
	counts map[string]int
}

func NewDailyCounter() *DailyCounter {
	return &DailyCounter{counts: make(map[string]int)}
}

func (c *DailyCounter) TryIncrement(_ context.Context, day string, limit int, _ time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.counts[day] >= limit {
		return false, nil
	}
	c.counts[day]++
	return true, nil
}

func (c *DailyCounter) Count(_ context.Context, day string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.counts[day], nil
}
