// Package cache provides a generic LRU with TTL plus a keyed variant that
// supports wholesale invalidation per owner via generation counters.
package cache

import (
	"fmt"
	"sync"
	"time"
)

// Cache defines a generic cache interface
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, data T)
	Delete(key string)
	Size() int
}

// OwnerCache wraps an LRU so all entries belonging to one owner can be
// invalidated at once. Every owner has a generation counter folded into the
// cache key; bumping the counter strands the old entries, which age out via
// TTL and LRU eviction.
type OwnerCache[T any] struct {
	mu          sync.Mutex
	generations map[string]uint64
	lru         *LRUCache[T]
}

func NewOwnerCache[T any](maxSize int, ttl time.Duration) *OwnerCache[T] {
	return &OwnerCache[T]{
		generations: make(map[string]uint64),
		lru:         NewLRUCache[T](maxSize, ttl),
	}
}

func (c *OwnerCache[T]) key(ownerID, key string) string {
	c.mu.Lock()
	gen := c.generations[ownerID]
	c.mu.Unlock()
	return fmt.Sprintf("%s:%d:%s", ownerID, gen, key)
}

func (c *OwnerCache[T]) Get(ownerID, key string) (T, bool) {
	return c.lru.Get(c.key(ownerID, key))
}

func (c *OwnerCache[T]) Set(ownerID, key string, data T) {
	c.lru.Set(c.key(ownerID, key), data)
}

// Invalidate discards every cached entry for the owner
func (c *OwnerCache[T]) Invalidate(ownerID string) {
	c.mu.Lock()
	c.generations[ownerID]++
	c.mu.Unlock()
}

func (c *OwnerCache[T]) Size() int {
	return c.lru.Size()
}

// CleanExpired removes expired entries from the underlying LRU
func (c *OwnerCache[T]) CleanExpired() int {
	return c.lru.CleanExpired()
}

// Manager handles cache lifecycle and cleanup
type Manager struct {
	caches      []Cleaner
	stopCleanup chan struct{}
	cleanupDone chan struct{}
}

// Cleaner interface for caches that support cleanup
type Cleaner interface {
	CleanExpired() int
}

// NewManager creates a new cache manager
func NewManager() *Manager {
	return &Manager{
		caches:      make([]Cleaner, 0),
		stopCleanup: make(chan struct{}),
		cleanupDone: make(chan struct{}),
	}
}

// Register adds a cache to the manager for cleanup
func (m *Manager) Register(cache Cleaner) {
	m.caches = append(m.caches, cache)
}

// StartCleanup begins periodic cleanup of all registered caches
func (m *Manager) StartCleanup(interval time.Duration) {
	go m.cleanup(interval)
}

func (m *Manager) cleanup(interval time.Duration) {
	defer close(m.cleanupDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			for _, cache := range m.caches {
				cache.CleanExpired()
			}
		case <-m.stopCleanup:
			return
		}
	}
}

// Stop gracefully stops the cleanup routine
func (m *Manager) Stop() {
	if m.stopCleanup != nil {
		close(m.stopCleanup)
		<-m.cleanupDone
	}
}
