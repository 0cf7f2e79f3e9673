package catalog

import (
	"context"
	"sync"
	"time"

	"github.com/diewo77/occuhealth/internal/models"
)

// Cached wraps a Catalog with TTL-based in-memory caching.
// Misses are not cached so a test created after a failed lookup resolves immediately.
type Cached struct {
	inner Catalog
	cache map[uint]*cacheEntry
	mu    sync.RWMutex
	ttl   time.Duration
	now   func() time.Time
}

type cacheEntry struct {
	snapshot  models.HealthTestSnapshot
	expiresAt time.Time
}

// NewCached wraps inner with caching.
// ttl is how long snapshots are cached before re-fetching.
func NewCached(inner Catalog, ttl time.Duration) *Cached {
	return &Cached{
		inner: inner,
		cache: make(map[uint]*cacheEntry),
		ttl:   ttl,
		now:   time.Now,
	}
}

// Get returns the snapshot for id, using the cache if available.
func (c *Cached) Get(ctx context.Context, id uint) (models.HealthTestSnapshot, error) {
	c.mu.RLock()
	entry, ok := c.cache[id]
	c.mu.RUnlock()

	if ok && c.now().Before(entry.expiresAt) {
		return entry.snapshot, nil
	}

	snap, err := c.inner.Get(ctx, id)
	if err != nil {
		return models.HealthTestSnapshot{}, err
	}

	c.mu.Lock()
	c.cache[id] = &cacheEntry{
		snapshot:  snap,
		expiresAt: c.now().Add(c.ttl),
	}
	c.mu.Unlock()

	return snap, nil
}

// Invalidate removes one test from the cache.
// Call this when a catalog entry is renamed.
func (c *Cached) Invalidate(id uint) {
	c.mu.Lock()
	delete(c.cache, id)
	c.mu.Unlock()
}

// InvalidateAll clears the entire cache.
func (c *Cached) InvalidateAll() {
	c.mu.Lock()
	c.cache = make(map[uint]*cacheEntry)
	c.mu.Unlock()
}
