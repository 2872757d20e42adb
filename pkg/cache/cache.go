// Package cache provides a generic, thread-safe TTL cache for precomputed
// and derived values.
//
// Entries may carry their own expiry: SetWithTTL converts a relative TTL to
// an absolute expiry timestamp at write time. Readers treat expired entries
// as absent even when the background sweeper has not yet reclaimed them.
// Statistics are always collected; Prometheus export is optional via
// functional options.
package cache

import (
	"time"

	"github.com/ming0627/bellyfed-new-sub015/errors"
)

// Cache is a generic TTL-capable cache. The cache is parameterized by value
// type V for type safety.
type Cache[V any] interface {
	// Get retrieves a value by key. Returns the value and true if found and
	// not expired, zero value and false otherwise.
	Get(key string) (V, bool)

	// Set stores a value with the cache's default TTL. Returns true if a new
	// entry was created, false if an existing entry was updated.
	Set(key string, value V) (bool, error)

	// SetWithTTL stores a value with an explicit TTL. A zero ttl stores the
	// entry without expiry.
	SetWithTTL(key string, value V, ttl time.Duration) (bool, error)

	// Delete removes an entry by key. Returns true if the key existed.
	Delete(key string) (bool, error)

	// Clear removes all entries from the cache.
	Clear() error

	// Size returns the current number of entries, including entries that
	// have expired but not yet been swept.
	Size() int

	// Keys returns all non-expired keys currently in the cache.
	Keys() []string

	// Stats returns cache statistics.
	Stats() *Statistics

	// Close shuts down the cache and its background sweeper.
	Close() error
}

// EvictCallback is called when an entry is evicted from the cache.
type EvictCallback[V any] func(key string, value V)

// validateKey validates a cache key for basic requirements.
func validateKey(key string) error {
	if key == "" {
		return errors.WrapInvalid(errors.ErrInvalidData, "cache", "validateKey", "key cannot be empty")
	}
	return nil
}
