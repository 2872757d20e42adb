package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/errors"
)

// ttlEntry represents an entry in the TTL cache. A zero expiresAt means the
// entry never expires.
type ttlEntry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
}

// isExpired checks if the entry has expired.
func (e *ttlEntry[V]) isExpired() bool {
	return !e.expiresAt.IsZero() && time.Now().After(e.expiresAt)
}

// ttlCache is a thread-safe TTL (Time-To-Live) cache implementation.
// Each entry carries its own absolute expiry, fixed at write time. Expired
// entries are treated as absent on read and reclaimed by a background
// sweeper.
type ttlCache[V any] struct {
	mu              sync.RWMutex
	defaultTTL      time.Duration
	cleanupInterval time.Duration
	items           map[string]*ttlEntry[V]
	stats           *Statistics      // ALWAYS initialized
	metrics         *cacheMetrics    // Optional, if metrics enabled
	evictFn         EvictCallback[V] // Optional callback

	// Background cleanup coordination
	shutdown chan struct{}
	done     chan struct{}
}

// NewTTL creates a TTL cache. defaultTTL applies to entries stored with Set;
// a zero defaultTTL stores such entries without expiry. The background
// sweeper runs every cleanupInterval and stops when ctx is cancelled or the
// cache is closed.
func NewTTL[V any](
	ctx context.Context, defaultTTL, cleanupInterval time.Duration, opts ...Option[V],
) (Cache[V], error) {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}

	options := applyOptions(opts...)

	// Stats are ALWAYS initialized - observability is not optional
	stats := NewStatistics()

	var metrics *cacheMetrics
	if options.metricsReg != nil && options.metricsPrefix != "" {
		var err error
		metrics, err = newCacheMetrics(options.metricsReg, options.metricsPrefix)
		if err != nil {
			return nil, errors.WrapTransient(err, "cache", "NewTTL", "metrics registration")
		}
	}

	c := &ttlCache[V]{
		defaultTTL:      defaultTTL,
		cleanupInterval: cleanupInterval,
		items:           make(map[string]*ttlEntry[V]),
		stats:           stats,
		metrics:         metrics,
		evictFn:         options.evictCallback,
		shutdown:        make(chan struct{}),
		done:            make(chan struct{}),
	}

	go c.cleanup(ctx)

	return c, nil
}

// Get retrieves a value by key, checking for expiration.
func (c *ttlCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	entry, exists := c.items[key]
	c.mu.RUnlock()

	if !exists {
		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	if entry.isExpired() {
		// Remove expired entry eagerly
		c.mu.Lock()
		// Double-check it's still there and still expired
		if currentEntry, stillExists := c.items[key]; stillExists && currentEntry.isExpired() {
			delete(c.items, key)
			if c.evictFn != nil {
				defer c.evictFn(key, currentEntry.value)
			}
			c.stats.Eviction()
			c.stats.UpdateSize(int64(len(c.items)))
			if c.metrics != nil {
				c.metrics.recordEviction()
				c.metrics.updateSize(len(c.items))
			}
		}
		c.mu.Unlock()

		var zero V
		c.stats.Miss()
		if c.metrics != nil {
			c.metrics.recordMiss()
		}
		return zero, false
	}

	c.stats.Hit()
	if c.metrics != nil {
		c.metrics.recordHit()
	}

	return entry.value, true
}

// Set stores a value with the cache's default TTL.
func (c *ttlCache[V]) Set(key string, value V) (bool, error) {
	return c.SetWithTTL(key, value, c.defaultTTL)
}

// SetWithTTL stores a value with an explicit TTL. The relative TTL converts
// to an absolute expiry at write time; a zero TTL stores without expiry.
func (c *ttlCache[V]) SetWithTTL(key string, value V, ttl time.Duration) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = time.Now().Add(ttl)
	}

	c.mu.Lock()
	_, exists := c.items[key]
	c.items[key] = &ttlEntry[V]{
		key:       key,
		value:     value,
		expiresAt: expiresAt,
	}
	size := len(c.items)
	c.mu.Unlock()

	c.stats.Set()
	c.stats.UpdateSize(int64(size))
	if c.metrics != nil {
		c.metrics.recordSet()
		c.metrics.updateSize(size)
	}

	return !exists, nil // true if new entry was created
}

// Delete removes an entry by key.
func (c *ttlCache[V]) Delete(key string) (bool, error) {
	if err := validateKey(key); err != nil {
		return false, err
	}
	c.mu.Lock()
	entry, exists := c.items[key]
	if exists {
		delete(c.items, key)
		if c.evictFn != nil {
			defer c.evictFn(key, entry.value)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	if exists {
		c.stats.Delete()
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			c.metrics.recordDelete()
			c.metrics.updateSize(size)
		}
	}

	return exists, nil
}

// Clear removes all entries from the cache.
func (c *ttlCache[V]) Clear() error {
	c.mu.Lock()
	if c.evictFn != nil {
		for _, entry := range c.items {
			c.evictFn(entry.key, entry.value)
		}
	}
	c.items = make(map[string]*ttlEntry[V])
	c.mu.Unlock()

	c.stats.UpdateSize(0)
	if c.metrics != nil {
		c.metrics.updateSize(0)
	}

	return nil
}

// Size returns the current number of entries in the cache.
func (c *ttlCache[V]) Size() int {
	c.mu.RLock()
	size := len(c.items)
	c.mu.RUnlock()
	return size
}

// Keys returns all non-expired keys currently in the cache.
func (c *ttlCache[V]) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	keys := make([]string, 0, len(c.items))
	for key, entry := range c.items {
		if !entry.isExpired() {
			keys = append(keys, key)
		}
	}
	return keys
}

// Stats returns cache statistics.
func (c *ttlCache[V]) Stats() *Statistics {
	return c.stats
}

// Close shuts down the cache and stops the background sweeper.
func (c *ttlCache[V]) Close() error {
	select {
	case <-c.shutdown:
		// Already shutting down
	default:
		close(c.shutdown)
	}

	select {
	case <-c.done:
		return nil
	case <-time.After(5 * time.Second):
		return fmt.Errorf("timeout waiting for cleanup goroutine to finish")
	}
}

// cleanup runs in a background goroutine and periodically removes expired entries.
func (c *ttlCache[V]) cleanup(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

// removeExpired removes all expired entries from the cache.
func (c *ttlCache[V]) removeExpired() {
	var expiredEntries []*ttlEntry[V]

	c.mu.Lock()
	for key, entry := range c.items {
		if entry.isExpired() {
			expiredEntries = append(expiredEntries, entry)
			delete(c.items, key)
		}
	}
	size := len(c.items)
	c.mu.Unlock()

	// Call OnEvict callbacks outside the lock
	if c.evictFn != nil {
		for _, entry := range expiredEntries {
			c.evictFn(entry.key, entry.value)
		}
	}

	if len(expiredEntries) > 0 {
		for range expiredEntries {
			c.stats.Eviction()
		}
		c.stats.UpdateSize(int64(size))
		if c.metrics != nil {
			for range expiredEntries {
				c.metrics.recordEviction()
			}
			c.metrics.updateSize(size)
		}
	}
}
