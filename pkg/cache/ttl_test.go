package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ming0627/bellyfed-new-sub015/metric"
)

func newTestCache(t *testing.T, defaultTTL time.Duration, opts ...Option[string]) Cache[string] {
	t.Helper()
	c, err := NewTTL[string](context.Background(), defaultTTL, 10*time.Millisecond, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestTTLCache_RoundTrip(t *testing.T) {
	c := newTestCache(t, 0)

	created, err := c.Set("restaurant=r1#DATA", "hello")
	require.NoError(t, err)
	assert.True(t, created)

	got, ok := c.Get("restaurant=r1#DATA")
	require.True(t, ok)
	assert.Equal(t, "hello", got)

	// Second set updates rather than creates
	created, err = c.Set("restaurant=r1#DATA", "world")
	require.NoError(t, err)
	assert.False(t, created)
}

func TestTTLCache_ExpiredEntryIsAbsent(t *testing.T) {
	c := newTestCache(t, 0)

	_, err := c.SetWithTTL("ephemeral", "v", 30*time.Millisecond)
	require.NoError(t, err)

	_, ok := c.Get("ephemeral")
	assert.True(t, ok, "entry should be visible before expiry")

	time.Sleep(60 * time.Millisecond)

	_, ok = c.Get("ephemeral")
	assert.False(t, ok, "expired entry must read as absent")
}

func TestTTLCache_ZeroTTLNeverExpires(t *testing.T) {
	c := newTestCache(t, 0)

	_, err := c.SetWithTTL("forever", "v", 0)
	require.NoError(t, err)

	time.Sleep(40 * time.Millisecond)

	got, ok := c.Get("forever")
	require.True(t, ok)
	assert.Equal(t, "v", got)
}

func TestTTLCache_DefaultTTLApplied(t *testing.T) {
	c := newTestCache(t, 25*time.Millisecond)

	_, err := c.Set("short", "v")
	require.NoError(t, err)

	time.Sleep(60 * time.Millisecond)

	_, ok := c.Get("short")
	assert.False(t, ok)
}

func TestTTLCache_SweeperReclaims(t *testing.T) {
	c := newTestCache(t, 0)

	for _, key := range []string{"a", "b", "c"} {
		_, err := c.SetWithTTL(key, "v", 15*time.Millisecond)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, c.Size())

	// Sweeper runs every 10ms; entries expire after 15ms
	assert.Eventually(t, func() bool {
		return c.Size() == 0
	}, time.Second, 10*time.Millisecond)

	assert.GreaterOrEqual(t, c.Stats().Evictions(), int64(3))
}

func TestTTLCache_KeysSkipExpired(t *testing.T) {
	c := newTestCache(t, 0)

	_, err := c.SetWithTTL("live", "v", 0)
	require.NoError(t, err)
	_, err = c.SetWithTTL("dead", "v", 5*time.Millisecond)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, []string{"live"}, c.Keys())
}

func TestTTLCache_DeleteAndClear(t *testing.T) {
	c := newTestCache(t, 0)

	_, err := c.Set("k", "v")
	require.NoError(t, err)

	existed, err := c.Delete("k")
	require.NoError(t, err)
	assert.True(t, existed)

	existed, err = c.Delete("k")
	require.NoError(t, err)
	assert.False(t, existed)

	_, _ = c.Set("a", "1")
	_, _ = c.Set("b", "2")
	require.NoError(t, c.Clear())
	assert.Equal(t, 0, c.Size())
}

func TestTTLCache_EmptyKeyRejected(t *testing.T) {
	c := newTestCache(t, 0)

	_, err := c.Set("", "v")
	assert.Error(t, err)
}

func TestTTLCache_EvictionCallback(t *testing.T) {
	evicted := make(chan string, 8)
	c := newTestCache(t, 0, WithEvictionCallback[string](func(key string, _ string) {
		evicted <- key
	}))

	_, err := c.SetWithTTL("gone", "v", 5*time.Millisecond)
	require.NoError(t, err)

	select {
	case key := <-evicted:
		assert.Equal(t, "gone", key)
	case <-time.After(time.Second):
		t.Fatal("eviction callback not invoked")
	}
}

func TestTTLCache_StatsAndMetrics(t *testing.T) {
	registry := metric.NewMetricsRegistry()
	c := newTestCache(t, 0, WithMetrics[string](registry, "query-cache"))

	_, _ = c.Set("k", "v")
	_, _ = c.Get("k")
	_, _ = c.Get("missing")

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits())
	assert.Equal(t, int64(1), stats.Misses())
	assert.Equal(t, int64(1), stats.Sets())
	assert.InDelta(t, 0.5, stats.HitRatio(), 0.001)

	families, err := registry.PrometheusRegistry().Gather()
	require.NoError(t, err)
	found := false
	for _, f := range families {
		if f.GetName() == "bellyfed_cache_hits_total" {
			found = true
		}
	}
	assert.True(t, found, "cache metrics should be registered")
}
