package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

// TimeBucketAggregator maintains daily, hourly, and real-time minute rollups
// per entity. Daily and hourly buckets live in the durable store; minute
// buckets live in a separate store whose bucket carries a 24-hour TTL, so
// real-time rows expire without explicit deletion.
type TimeBucketAggregator struct {
	durable  store.Store
	realtime store.Store
	logger   *slog.Logger
	now      func() time.Time
}

// NewTimeBucketAggregator creates an aggregator writing daily/hourly buckets
// to durable and minute buckets to realtime.
func NewTimeBucketAggregator(durable, realtime store.Store, logger *slog.Logger) *TimeBucketAggregator {
	return &TimeBucketAggregator{
		durable:  durable,
		realtime: realtime,
		logger:   logger.With("component", "timebucket"),
		now:      time.Now,
	}
}

// Bucket sort keys: daily_<yyyy-mm-dd>, hourly_<yyyy-mm-dd>_<hh>,
// realtime_<yyyy-mm-dd>_<hh-mm>.
func dailyBucketKey(ts time.Time) string {
	return store.SortKeyDailyPrefix + ts.UTC().Format(DateLayout)
}

func hourlyBucketKey(ts time.Time) string {
	return store.SortKeyHourlyPrefix + ts.UTC().Format(DateLayout) + "_" + ts.UTC().Format(hourLayout)
}

func realtimeBucketKey(ts time.Time) string {
	return store.SortKeyRealtimePrefix + ts.UTC().Format(DateLayout) + "_" + ts.UTC().Format(minuteLayout)
}

// RecordEvent applies one event to its daily, hourly, and real-time buckets.
// The three increments are independent: a failure in one bucket does not
// roll back the others, and is reported so the caller can decide whether the
// event counts as processed.
func (a *TimeBucketAggregator) RecordEvent(ctx context.Context, entityType, entityID string, eventType EventType, ts time.Time, device string) error {
	pk := store.PartitionKey(entityType, entityID)

	if err := a.bumpBucket(ctx, a.durable, pk, dailyBucketKey(ts), eventType); err != nil {
		return errors.Wrap(err, "timebucket", "RecordEvent", "daily bucket")
	}
	if device != "" {
		dc := string(NormalizeDevice(device))
		if _, err := a.durable.IncrementNested(ctx, pk, dailyBucketKey(ts), "deviceTypes", dc, 1); err != nil {
			return errors.Wrap(err, "timebucket", "RecordEvent", "device breakdown")
		}
	}

	if err := a.bumpBucket(ctx, a.durable, pk, hourlyBucketKey(ts), eventType); err != nil {
		return errors.Wrap(err, "timebucket", "RecordEvent", "hourly bucket")
	}
	if err := a.bumpBucket(ctx, a.realtime, pk, realtimeBucketKey(ts), eventType); err != nil {
		return errors.Wrap(err, "timebucket", "RecordEvent", "realtime bucket")
	}
	return nil
}

func (a *TimeBucketAggregator) bumpBucket(ctx context.Context, st store.Store, pk, sk string, eventType EventType) error {
	if _, err := st.Increment(ctx, pk, sk, "totalEvents", 1); err != nil {
		return err
	}
	_, err := st.IncrementNested(ctx, pk, sk, "eventsByType", string(eventType), 1)
	return err
}

// TimeSeries returns one entry per calendar day in the period, oldest first.
// Every day in the range is present: days with no recorded events carry a
// zero-filled entry rather than being omitted.
func (a *TimeBucketAggregator) TimeSeries(ctx context.Context, entityType, entityID string, period Period) ([]TimeSeriesPoint, error) {
	if period.Days() == 0 {
		return nil, errors.NewInvalid("timebucket", "TimeSeries", "period is required")
	}

	pk := store.PartitionKey(entityType, entityID)
	start, end := period.Range(a.now())

	series := make([]TimeSeriesPoint, 0, period.Days())
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		point := TimeSeriesPoint{
			Date:        day.Format(DateLayout),
			DeviceTypes: map[string]uint64{},
		}

		var bucket TimeBucket
		found, err := a.durable.Get(ctx, pk, store.SortKeyDailyPrefix+point.Date, &bucket)
		if err != nil {
			return nil, errors.Wrap(err, "timebucket", "TimeSeries", "read daily bucket")
		}
		if found {
			point.EventCount = bucket.TotalEvents
			if bucket.DeviceTypes != nil {
				point.DeviceTypes = bucket.DeviceTypes
			}
		}
		series = append(series, point)
	}
	return series, nil
}
