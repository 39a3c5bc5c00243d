package cache

import (
	"context"
	"sync"
	"time"

	"kasirledger/backend/internal/domain"
)

type memoryEntry struct {
	match   domain.BarcodeMatch
	expires time.Time
}

// MemoryCatalogCache is the process-local cache used when no redis is
// configured.
type MemoryCatalogCache struct {
	mu      sync.Mutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemoryCatalogCache() *MemoryCatalogCache {
	return &MemoryCatalogCache{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

func (c *MemoryCatalogCache) Get(_ context.Context, code string) (*domain.BarcodeMatch, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[code]
	if !ok {
		return nil, false, nil
	}
	if !entry.expires.IsZero() && c.now().After(entry.expires) {
		delete(c.entries, code)
		return nil, false, nil
	}
	match := entry.match
	return &match, true, nil
}

func (c *MemoryCatalogCache) Set(_ context.Context, code string, value *domain.BarcodeMatch, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	entry := memoryEntry{match: *value}
	if ttl > 0 {
		entry.expires = c.now().Add(ttl)
	}
	c.entries[code] = entry
	return nil
}

func (c *MemoryCatalogCache) Delete(_ context.Context, codes ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, code := range codes {
		delete(c.entries, code)
	}
	return nil
}
