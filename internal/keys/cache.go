package keys

import (
	"crypto"
	"sync"
)

// KeyInfo is a cached public key together with the source that owns it.
type KeyInfo struct {
	// KeyID uniquely identifies the key within the cache.
	KeyID string

	// Key is the parsed public key material.
	Key crypto.PublicKey

	// SourceID identifies the source the key was loaded from.
	SourceID string
}

// Cache is a concurrent map from key id to KeyInfo. Point reads and writes
// do not contend with each other; bulk removal iterates a snapshot and is
// safe to run concurrently with inserts.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]KeyInfo
	metrics *Metrics
}

// CacheOption is a functional option for the cache.
type CacheOption func(*Cache)

// WithCacheMetrics sets the metrics recorder for the cache.
func WithCacheMetrics(m *Metrics) CacheOption {
	return func(c *Cache) {
		c.metrics = m
	}
}

// NewCache creates an empty key cache.
func NewCache(opts ...CacheOption) *Cache {
	c := &Cache{
		entries: make(map[string]KeyInfo),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Put inserts or replaces the key under info.KeyID.
func (c *Cache) Put(info KeyInfo) {
	c.mu.Lock()
	c.entries[info.KeyID] = info
	size := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetCacheSize(size)
	}
}

// Get returns the key for the given id.
func (c *Cache) Get(keyID string) (KeyInfo, bool) {
	c.mu.RLock()
	info, ok := c.entries[keyID]
	c.mu.RUnlock()

	if c.metrics != nil {
		c.metrics.RecordLookup(ok)
	}
	return info, ok
}

// Remove deletes the key with the given id.
func (c *Cache) Remove(keyID string) {
	c.mu.Lock()
	delete(c.entries, keyID)
	size := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetCacheSize(size)
	}
}

// RemoveFunc deletes every entry satisfying the predicate and reports whether
// at least one entry was removed. Used to drop all keys belonging to one
// source without knowing their individual ids.
func (c *Cache) RemoveFunc(pred func(KeyInfo) bool) bool {
	c.mu.Lock()
	removed := false
	for id, info := range c.entries {
		if pred(info) {
			delete(c.entries, id)
			removed = true
		}
	}
	size := len(c.entries)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetCacheSize(size)
	}
	return removed
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	c.entries = make(map[string]KeyInfo)
	c.mu.Unlock()

	if c.metrics != nil {
		c.metrics.SetCacheSize(0)
	}
}

// Len returns the number of cached keys.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Entries returns a copied snapshot of the cached keys, not a live view:
// callers iterate without holding the cache lock, at the cost of not seeing
// concurrent updates.
func (c *Cache) Entries() []KeyInfo {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]KeyInfo, 0, len(c.entries))
	for _, info := range c.entries {
		out = append(out, info)
	}
	return out
}
