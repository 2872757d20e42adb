package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ming0627/bellyfed-new-sub015/analytics"
	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/metric"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

type testHarness struct {
	ingestor    *Ingestor
	counters    store.Store
	engagements store.Store
	realtime    store.Store
	rollups     *analytics.EntityRollupManager
	metrics     *metric.Metrics
}

func newHarness(t *testing.T) *testHarness {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	counters := store.NewMemory()
	engagements := store.NewMemory()
	realtime := store.NewMemory()

	rollups := analytics.NewEntityRollupManager(counters, logger)
	buckets := analytics.NewTimeBucketAggregator(counters, realtime, logger)
	viewers := analytics.NewUniqueSetTracker(counters, logger)
	metrics := metric.NewMetrics()

	return &testHarness{
		ingestor: NewIngestor(counters, engagements, rollups, buckets, viewers,
			metrics, logger),
		counters:    counters,
		engagements: engagements,
		realtime:    realtime,
		rollups:     rollups,
		metrics:     metrics,
	}
}

func (h *testHarness) viewCounter(t *testing.T, entityType, id string) analytics.ViewCounter {
	t.Helper()
	var counter analytics.ViewCounter
	found, err := h.counters.Get(context.Background(),
		store.PartitionKey(entityType, id), store.SortKeyViews, &counter)
	require.NoError(t, err)
	require.True(t, found)
	return counter
}

func TestTrackViewCountsEveryCall(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 1; i <= 5; i++ {
		ack, err := h.ingestor.TrackView(ctx, ViewRequest{EntityType: "restaurant", EntityID: "r1"})
		require.NoError(t, err)
		assert.EqualValues(t, i, ack.ViewCount)
	}
}

func TestTrackViewUniqueViewersScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, userID := range []string{"u1", "u1", "u2"} {
		_, err := h.ingestor.TrackView(ctx, ViewRequest{
			EntityType: "restaurant", EntityID: "r1", UserID: userID,
		})
		require.NoError(t, err)
	}

	counter := h.viewCounter(t, "restaurant", "r1")
	assert.Equal(t, uint64(3), counter.ViewCount)
	assert.Equal(t, uint64(2), counter.UniqueViewers)
	assert.LessOrEqual(t, counter.UniqueViewers, counter.ViewCount)
	assert.Equal(t, "restaurant", counter.EntityType)
}

func TestTrackViewValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingestor.TrackView(ctx, ViewRequest{EntityID: "r1"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
	assert.Equal(t, "entityType is required", err.Error())

	_, err = h.ingestor.TrackView(ctx, ViewRequest{EntityType: "restaurant"})
	require.Error(t, err)
	assert.Equal(t, "entityId is required", err.Error())

	// No side effects from rejected requests
	var doc map[string]any
	found, err := h.counters.Get(ctx, store.PartitionKey("restaurant", "r1"), store.SortKeyViews, &doc)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestTrackViewFansOutToAggregates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingestor.TrackView(ctx, ViewRequest{
		EntityType: "dish", EntityID: "d1", UserID: "u1", DeviceType: "Mobile",
	})
	require.NoError(t, err)

	rollup, err := h.rollups.Rollup(ctx, "dish", "d1")
	require.NoError(t, err)
	assert.Equal(t, uint64(1), rollup.TotalEvents)
	assert.Equal(t, uint64(1), rollup.EventsByType["view"])

	// Daily bucket with device breakdown exists
	var sawDaily bool
	err = h.counters.Scan(ctx, store.PartitionKey("dish", "d1"), store.SortKeyDailyPrefix,
		func(pk, sk string, value []byte) error {
			sawDaily = true
			return nil
		})
	require.NoError(t, err)
	assert.True(t, sawDaily)
}

func TestTrackEngagementScenario(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	var ack EngagementAck
	for i := 0; i < 5; i++ {
		var err error
		ack, err = h.ingestor.TrackEngagement(ctx, EngagementRequest{
			EntityType: "dish", EntityID: "d1", EngagementType: "like",
		})
		require.NoError(t, err)
		assert.NotEmpty(t, ack.EngagementID)
	}
	assert.Equal(t, uint64(5), ack.Count)

	// Five immutable records were appended
	recordCount := 0
	err := h.engagements.Scan(ctx, store.PartitionKey("dish", "d1"), store.SortKeyEngagementPrefix,
		func(pk, sk string, value []byte) error {
			recordCount++
			return nil
		})
	require.NoError(t, err)
	assert.Equal(t, 5, recordCount)
}

func TestTrackEngagementValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingestor.TrackEngagement(ctx, EngagementRequest{
		EntityType: "dish", EntityID: "d1",
	})
	require.Error(t, err)
	assert.Equal(t, "engagementType is required", err.Error())

	_, err = h.ingestor.TrackEngagement(ctx, EngagementRequest{
		EntityType: "dish", EntityID: "d1", EngagementType: "applause",
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err), "unknown engagement types are rejected")

	_, err = h.ingestor.TrackEngagement(ctx, EngagementRequest{
		EntityType: "dish", EntityID: "d1", EngagementType: "view",
	})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

// Metric label values must stay bounded: rejected engagement types all land
// on the one "invalid" series instead of minting a series per client string.
func TestRejectedEngagementTypesShareOneMetricSeries(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		_, err := h.ingestor.TrackEngagement(ctx, EngagementRequest{
			EntityType:     "dish",
			EntityID:       "d1",
			EngagementType: fmt.Sprintf("junk-type-%d", i),
		})
		require.Error(t, err)
	}

	assert.Equal(t, 1, testutil.CollectAndCount(h.metrics.EventsReceived),
		"all rejections share one series")
	assert.EqualValues(t, 50,
		testutil.ToFloat64(h.metrics.EventsReceived.WithLabelValues("invalid")))

	_, err := h.ingestor.TrackEngagement(ctx, EngagementRequest{
		EntityType: "dish", EntityID: "d1", EngagementType: "like",
	})
	require.NoError(t, err)
	assert.Equal(t, 2, testutil.CollectAndCount(h.metrics.EventsReceived))
	assert.EqualValues(t, 1,
		testutil.ToFloat64(h.metrics.EventsReceived.WithLabelValues("like")))
}

// Redelivering the same event double-counts: increments carry no idempotency
// token. This test documents the current at-least-once behavior rather than
// asserting it is desirable.
func TestDuplicateDeliveryDoubleCounts(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	ev := Event{EntityType: "restaurant", EntityID: "r1", EventType: "view", UserID: "u1"}
	require.NoError(t, h.ingestor.Process(ctx, ev))
	require.NoError(t, h.ingestor.Process(ctx, ev))

	counter := h.viewCounter(t, "restaurant", "r1")
	assert.Equal(t, uint64(2), counter.ViewCount, "duplicate delivery counts twice")
	assert.Equal(t, uint64(1), counter.UniqueViewers, "viewer set stays deduplicated")
}

func TestProcessDispatch(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	require.NoError(t, h.ingestor.Process(ctx, Event{
		EntityType: "dish", EntityID: "d1", EventType: "view",
	}))
	require.NoError(t, h.ingestor.Process(ctx, Event{
		EntityType: "dish", EntityID: "d1", EventType: "share",
	}))

	err := h.ingestor.Process(ctx, Event{EntityType: "dish", EntityID: "d1", EventType: "poke"})
	require.Error(t, err)
	assert.True(t, errors.IsInvalid(err))
}

func TestProcessBatchPartialFailure(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	records := []BatchRecord{
		{ID: "rec-1", Event: Event{EntityType: "restaurant", EntityID: "r1", EventType: "view"}},
		{ID: "rec-2", Event: Event{EntityType: "", EntityID: "r2", EventType: "view"}},
		{ID: "rec-3", Event: Event{EntityType: "restaurant", EntityID: "r3", EventType: "like"}},
	}

	failed := h.ingestor.ProcessBatch(ctx, records)
	require.Len(t, failed, 1, "valid records process despite the invalid one")
	assert.Equal(t, "rec-2", failed[0].ID)
	assert.False(t, failed[0].Retryable, "validation failures are not retryable")

	counter := h.viewCounter(t, "restaurant", "r1")
	assert.Equal(t, uint64(1), counter.ViewCount)
}

func TestConsumerConfigValidate(t *testing.T) {
	cfg := ConsumerConfig{}
	assert.Error(t, cfg.Validate())

	cfg = ConsumerConfig{
		StreamName:   "EVENTS",
		ConsumerName: "analytics",
		Subjects:     []string{"events.>"},
	}
	require.NoError(t, cfg.Validate())
	assert.Equal(t, 5, cfg.MaxDeliver)
	assert.Positive(t, cfg.AckWait)
	assert.Positive(t, cfg.MaxAckPending)
}
