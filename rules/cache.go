package rules

import "time"

// DefinitionCache caches resolved active rule definitions keyed by check ID.
// This allows swapping between in-memory, Redis, or other caching implementations.
type DefinitionCache interface {
	// Get retrieves the cached definition for a check, returns nil on a
	// cache miss or expired entry
	Get(checkID string) *Rule

	// Set stores the resolved definition for a check
	Set(checkID string, rule *Rule)

	// Invalidate clears one check's entry, forcing a re-resolve on next Get
	Invalidate(checkID string)

	// InvalidateAll clears every cached entry
	InvalidateAll()
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration (manual invalidation only)
	TTL time.Duration
}

// DefaultCacheConfig returns sensible defaults for definition caching
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL: 0, // No TTL - only invalidate on mutations
	}
}
