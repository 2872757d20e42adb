package query

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ming0627/bellyfed-new-sub015/analytics"
	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/metric"
	"github.com/ming0627/bellyfed-new-sub015/pkg/cache"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

func newTestService(t *testing.T) (*Service, store.Store) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	counters := store.NewMemory()

	c, err := cache.NewTTL[CachedItem](context.Background(), 5*time.Minute, 100*time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })

	svc := NewService(
		counters,
		analytics.NewEntityRollupManager(counters, logger),
		analytics.NewTimeBucketAggregator(counters, store.NewMemory(), logger),
		analytics.NewTrendingIndex(counters, logger),
		NewCacheLayer(c),
		metric.NewMetrics(),
		logger,
	)
	return svc, counters
}

func TestAnalyticsComposesSources(t *testing.T) {
	svc, counters := newTestService(t)
	ctx := context.Background()
	pk := store.PartitionKey("dish", "d1")

	require.NoError(t, counters.Put(ctx, pk, store.SortKeyViews, analytics.ViewCounter{
		PartitionKey: pk, SortKey: store.SortKeyViews, EntityType: "dish",
		ViewCount: 12, UniqueViewers: 7,
	}))
	_, err := counters.Increment(ctx, pk, store.SortKeyLifetime, "totalEvents", 17)
	require.NoError(t, err)
	_, err = counters.Increment(ctx, pk, store.SortKeyEngagementCount+"like", "count", 5)
	require.NoError(t, err)

	resp, err := svc.Analytics(ctx, "dish", "d1", "")
	require.NoError(t, err)
	assert.Equal(t, "dish", resp.EntityType)
	assert.Equal(t, uint64(12), resp.ViewData.ViewCount)
	assert.Equal(t, uint64(7), resp.ViewData.UniqueViewers)
	assert.Equal(t, uint64(17), resp.ViewData.TotalEvents)
	assert.Equal(t, uint64(5), resp.EngagementData["like"])
	assert.Nil(t, resp.TimeSeriesData, "no period means no time series")
}

func TestAnalyticsUnknownEntityIsZero(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Analytics(context.Background(), "dish", "ghost", "")
	require.NoError(t, err)
	assert.Zero(t, resp.ViewData.ViewCount)
	assert.NotNil(t, resp.EngagementData)
}

func TestAnalyticsWithPeriodIncludesSeries(t *testing.T) {
	svc, _ := newTestService(t)

	resp, err := svc.Analytics(context.Background(), "dish", "d1", analytics.PeriodWeek)
	require.NoError(t, err)
	assert.Len(t, resp.TimeSeriesData, 7)
}

func TestAnalyticsValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Analytics(context.Background(), "", "d1", "")
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))

	_, err = svc.Analytics(context.Background(), "dish", "", "")
	require.Error(t, err)
	assert.Equal(t, "entityId is required", err.Error())
}

func TestTrendingDelegates(t *testing.T) {
	svc, counters := newTestService(t)
	ctx := context.Background()

	for id, views := range map[string]uint64{"a": 10, "b": 30, "c": 20} {
		pk := store.PartitionKey("restaurant", id)
		require.NoError(t, counters.Put(ctx, pk, store.SortKeyViews, analytics.ViewCounter{
			PartitionKey: pk, SortKey: store.SortKeyViews, EntityType: "restaurant",
			ViewCount: views, LastUpdated: time.Now().UTC().Format(time.RFC3339Nano),
		}))
	}

	top, err := svc.Trending(ctx, "restaurant", 2, "")
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "b", top[0].EntityID)
	assert.Equal(t, "c", top[1].EntityID)
}

func TestCacheRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)

	payload := json.RawMessage(`{"menu":"specials"}`)
	require.NoError(t, svc.CacheData("restaurant#r1", payload, 0))

	item, found, err := svc.Cached("restaurant#r1")
	require.NoError(t, err)
	require.True(t, found)
	assert.JSONEq(t, `{"menu":"specials"}`, string(item.Value))
	assert.NotEmpty(t, item.LastUpdated)
}

func TestCachedMissIsNotAnError(t *testing.T) {
	svc, _ := newTestService(t)

	_, found, err := svc.Cached("nothing-here")
	require.NoError(t, err)
	assert.False(t, found)
}

func TestCacheExpiry(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.CacheData("short-lived", json.RawMessage(`1`), 1))

	_, found, err := svc.Cached("short-lived")
	require.NoError(t, err)
	require.True(t, found)

	assert.Eventually(t, func() bool {
		_, found, _ := svc.Cached("short-lived")
		return !found
	}, 3*time.Second, 50*time.Millisecond, "expired entries read as absent")
}

func TestCacheKeyNormalization(t *testing.T) {
	svc, _ := newTestService(t)

	require.NoError(t, svc.CacheData("plain-key", json.RawMessage(`true`), 0))

	// unscoped keys default to the DATA sort key
	item, found, err := svc.Cached("plain-key#DATA")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "plain-key", item.Key)
}
