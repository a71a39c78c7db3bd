package services

import (
	"container/list"
	"sync"
	"time"
)

// cacheEntry represents a single cache entry with TTL. Entries with
// found=false record a lookup that matched no principal.
type cacheEntry[A any] struct {
	key        string
	principal  A
	found      bool
	insertedAt time.Time
	ttl        time.Duration
	element    *list.Element // For LRU tracking
}

// isExpired checks if the cache entry has expired
func (e *cacheEntry[A]) isExpired() bool {
	return time.Since(e.insertedAt) > e.ttl
}

// PrincipalCache is an in-memory LRU cache with TTL for resolved principals.
// Misses are kept for negativeTTL, which is usually much shorter than ttl.
type PrincipalCache[A any] struct {
	mu          sync.Mutex
	entries     map[string]*cacheEntry[A]
	lruList     *list.List // Doubly linked list for LRU tracking
	maxSize     int
	ttl         time.Duration
	negativeTTL time.Duration
	hits        uint64
	misses      uint64

	// generation advances on every Invalidate and Clear
	generation uint64
}

// NewPrincipalCache creates a new PrincipalCache. A maxSize of zero stores
// nothing, and a zero negativeTTL never stores misses.
func NewPrincipalCache[A any](maxSize int, ttl, negativeTTL time.Duration) *PrincipalCache[A] {
	return &PrincipalCache[A]{
		entries:     make(map[string]*cacheEntry[A]),
		lruList:     list.New(),
		maxSize:     maxSize,
		ttl:         ttl,
		negativeTTL: negativeTTL,
	}
}

// Get returns the cached lookup result for key. ok is false when there is
// no live entry.
func (c *PrincipalCache[A]) Get(key string) (principal A, found bool, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, exists := c.entries[key]
	if !exists || entry.isExpired() {
		c.misses++
		if exists {
			c.removeEntry(key)
		}
		return principal, false, false
	}

	c.lruList.MoveToFront(entry.element)
	c.hits++
	return entry.principal, entry.found, true
}

// Set stores a lookup result
func (c *PrincipalCache[A]) Set(key string, principal A, found bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.set(key, principal, found, c.entryTTL(found, time.Time{}))
}

// Generation returns a value that changes whenever entries are invalidated.
// Pass it to SetUntil to discard results read before an invalidation.
func (c *PrincipalCache[A]) Generation() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.generation
}

// SetUntil stores a lookup result that stops being valid at expiresAt. The
// entry lives for the configured TTL or until expiresAt, whichever is
// sooner; a zero expiresAt means no credential expiry. Nothing is stored
// when the cache was invalidated after generation was read. It reports
// whether the result was stored.
func (c *PrincipalCache[A]) SetUntil(key string, principal A, found bool, expiresAt time.Time, generation uint64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.generation != generation {
		return false
	}
	return c.set(key, principal, found, c.entryTTL(found, expiresAt))
}

func (c *PrincipalCache[A]) entryTTL(found bool, expiresAt time.Time) time.Duration {
	ttl := c.ttl
	if !found {
		ttl = c.negativeTTL
	}
	if !expiresAt.IsZero() {
		if remaining := time.Until(expiresAt); remaining < ttl {
			ttl = remaining
		}
	}
	return ttl
}

// set must be called with lock held
func (c *PrincipalCache[A]) set(key string, principal A, found bool, ttl time.Duration) bool {
	if c.maxSize <= 0 || ttl <= 0 {
		c.removeEntry(key)
		return false
	}

	if entry, exists := c.entries[key]; exists {
		entry.principal = principal
		entry.found = found
		entry.ttl = ttl
		entry.insertedAt = time.Now()
		c.lruList.MoveToFront(entry.element)
		return true
	}

	if c.lruList.Len() >= c.maxSize {
		c.evictLRU()
	}

	entry := &cacheEntry[A]{
		key:        key,
		principal:  principal,
		found:      found,
		insertedAt: time.Now(),
		ttl:        ttl,
	}
	entry.element = c.lruList.PushFront(key)
	c.entries[key] = entry
	return true
}

// Invalidate removes a specific cache entry
func (c *PrincipalCache[A]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.removeEntry(key)
}

// Clear removes all entries from the cache
func (c *PrincipalCache[A]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.generation++
	c.entries = make(map[string]*cacheEntry[A])
	c.lruList.Init()
}

// CacheStats represents cache statistics
type CacheStats struct {
	Size    int
	MaxSize int
	Hits    uint64
	Misses  uint64
	HitRate float64
}

// Stats returns cache statistics
func (c *PrincipalCache[A]) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats := CacheStats{
		Size:    c.lruList.Len(),
		MaxSize: c.maxSize,
		Hits:    c.hits,
		Misses:  c.misses,
	}
	if total := c.hits + c.misses; total > 0 {
		stats.HitRate = float64(c.hits) / float64(total)
	}
	return stats
}

// removeEntry removes an entry from the cache (must be called with lock held)
func (c *PrincipalCache[A]) removeEntry(key string) {
	if entry, exists := c.entries[key]; exists {
		c.lruList.Remove(entry.element)
		delete(c.entries, key)
	}
}

// evictLRU evicts the least recently used entry (must be called with lock held)
func (c *PrincipalCache[A]) evictLRU() {
	if back := c.lruList.Back(); back != nil {
		key := back.Value.(string)
		c.lruList.Remove(back)
		delete(c.entries, key)
	}
}

// CleanupExpired removes all expired entries and returns how many were removed
func (c *PrincipalCache[A]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, entry := range c.entries {
		if entry.isExpired() {
			c.removeEntry(key)
			removed++
		}
	}
	return removed
}

// StartCleanupWorker periodically removes expired entries until stopCh is closed
func (c *PrincipalCache[A]) StartCleanupWorker(interval time.Duration, stopCh <-chan struct{}) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.CleanupExpired()
		case <-stopCh:
			return
		}
	}
}
