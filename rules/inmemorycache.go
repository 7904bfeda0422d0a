package rules

import (
	"sync"
	"time"
)

type cacheEntry struct {
	rule     *Rule
	cachedAt time.Time
}

// InMemoryDefinitionCache is a simple in-memory implementation of DefinitionCache
// Thread-safe for concurrent access
type InMemoryDefinitionCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryDefinitionCache creates a new in-memory definition cache
func NewInMemoryDefinitionCache(config CacheConfig) *InMemoryDefinitionCache {
	return &InMemoryDefinitionCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

// Get retrieves the cached definition for a check
// Returns nil if there is no entry or the entry has expired
func (c *InMemoryDefinitionCache) Get(checkID string) *Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[checkID]
	if !ok {
		return nil
	}

	// Check TTL if configured
	if c.config.TTL > 0 {
		if time.Since(entry.cachedAt) > c.config.TTL {
			// Entry expired
			return nil
		}
	}

	return entry.rule
}

// Set stores the resolved definition for a check
func (c *InMemoryDefinitionCache) Set(checkID string, rule *Rule) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries[checkID] = cacheEntry{
		rule:     rule,
		cachedAt: time.Now(),
	}
}

// Invalidate clears one check's entry
func (c *InMemoryDefinitionCache) Invalidate(checkID string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.entries, checkID)
}

// InvalidateAll clears every cached entry
func (c *InMemoryDefinitionCache) InvalidateAll() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}
