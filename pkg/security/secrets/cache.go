package secrets

import (
	"sync"
	"time"
)

// CacheConfig configures the Manager's value cache.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
	MaxSize int
}

// DefaultCacheConfig caches up to 64 secrets for five minutes.
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{Enabled: true, TTL: 5 * time.Minute, MaxSize: 64}
}

type cacheEntry struct {
	value     string
	expiresAt time.Time
}

// Cache is a TTL cache for secret values. When full, the entry closest to
// expiry is evicted.
type Cache struct {
	config  CacheConfig
	now     func() time.Time
	entries map[string]cacheEntry
	mu      sync.RWMutex
}

// NewCache creates a cache.
func NewCache(config CacheConfig) *Cache {
	return &Cache{
		config:  config,
		now:     time.Now,
		entries: make(map[string]cacheEntry),
	}
}

// Get returns a cached value that has not expired.
func (c *Cache) Get(key string) (string, bool) {
	if !c.config.Enabled {
		return "", false
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || !c.now().Before(entry.expiresAt) {
		return "", false
	}
	return entry.value, true
}

// Set stores value under key.
func (c *Cache) Set(key, value string) {
	if !c.config.Enabled {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && c.config.MaxSize > 0 && len(c.entries) >= c.config.MaxSize {
		var oldestKey string
		var oldest time.Time
		for k, e := range c.entries {
			if oldestKey == "" || e.expiresAt.Before(oldest) {
				oldestKey, oldest = k, e.expiresAt
			}
		}
		delete(c.entries, oldestKey)
	}

	c.entries[key] = cacheEntry{value: value, expiresAt: c.now().Add(c.config.TTL)}
}

// Clear removes every entry.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]cacheEntry)
}

// Delete removes key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Size returns the number of entries, expired ones included.
func (c *Cache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
