package query

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/pkg/cache"
)

// CachedItem is one generic cached value, unrelated to the counter stores.
type CachedItem struct {
	Key         string          `json:"key"`
	Value       json.RawMessage `json:"value"`
	LastUpdated string          `json:"lastUpdated"`
}

// CacheLayer exposes the generic TTL cache under composite-key semantics:
// keys have the shape "<partitionKey>#<sortKey>", and an unscoped key gets
// the default "#DATA" sort key appended.
type CacheLayer struct {
	cache cache.Cache[CachedItem]
	now   func() time.Time
}

// NewCacheLayer wraps a TTL cache.
func NewCacheLayer(c cache.Cache[CachedItem]) *CacheLayer {
	return &CacheLayer{cache: c, now: time.Now}
}

func normalizeCacheKey(key string) string {
	if !strings.Contains(key, "#") {
		return key + "#DATA"
	}
	return key
}

// Put stores a value. ttlSeconds <= 0 means the cache default applies;
// otherwise the entry expires that many seconds from now.
func (l *CacheLayer) Put(key string, value json.RawMessage, ttlSeconds int) error {
	if key == "" {
		return errors.MissingField("key")
	}

	item := CachedItem{
		Key:         key,
		Value:       value,
		LastUpdated: l.now().UTC().Format(time.RFC3339Nano),
	}
	if ttlSeconds > 0 {
		_, err := l.cache.SetWithTTL(normalizeCacheKey(key), item, time.Duration(ttlSeconds)*time.Second)
		return err
	}
	_, err := l.cache.Set(normalizeCacheKey(key), item)
	return err
}

// Get returns the cached value for key. Absent or expired entries report
// found=false, not an error.
func (l *CacheLayer) Get(key string) (CachedItem, bool) {
	item, found := l.cache.Get(normalizeCacheKey(key))
	if !found {
		return CachedItem{}, false
	}
	return item, true
}
