// Package ingest is the write path: it validates inbound events, applies the
// primary counter increment, and fans out to the secondary aggregates. The
// caller always gets the post-increment value of the primary counter; the
// secondary writes are best-effort and logged on failure.
package ingest

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ming0627/bellyfed-new-sub015/analytics"
	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/metric"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

// Event is the generic inbound record shape, shared by the HTTP API and the
// stream consumer. EventType "view" dispatches to the view path; any other
// valid event type is an engagement.
type Event struct {
	EntityType string            `json:"entityType"`
	EntityID   string            `json:"entityId"`
	EventType  string            `json:"eventType"`
	UserID     string            `json:"userId,omitempty"`
	DeviceType string            `json:"deviceType,omitempty"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// ViewRequest is a track-view call.
type ViewRequest struct {
	EntityType string `json:"entityType"`
	EntityID   string `json:"entityId"`
	UserID     string `json:"userId,omitempty"`
	DeviceType string `json:"deviceType,omitempty"`
}

// ViewAck carries the post-increment view count back to the caller.
type ViewAck struct {
	ViewCount uint64 `json:"viewCount"`
}

// EngagementRequest is a track-engagement call.
type EngagementRequest struct {
	EntityType     string            `json:"entityType"`
	EntityID       string            `json:"entityId"`
	UserID         string            `json:"userId,omitempty"`
	EngagementType string            `json:"engagementType"`
	Metadata       map[string]string `json:"metadata,omitempty"`
}

// EngagementAck carries the stored record id and post-increment count.
type EngagementAck struct {
	EngagementID string `json:"engagementId"`
	Count        uint64 `json:"count"`
}

// BatchRecord is one opaque record from the batch event channel.
type BatchRecord struct {
	ID    string `json:"recordId"`
	Event Event  `json:"event"`
}

// BatchFailure identifies a batch record that failed processing, so the
// channel can redeliver only those records. Retryable is false for
// validation failures that can never succeed on redelivery.
type BatchFailure struct {
	ID        string `json:"recordId"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
}

const engagementRetention = 90 * 24 * time.Hour

// invalidEventLabel is the metric label for rejected events. Label values
// must stay bounded, so unvalidated client strings never appear as labels.
const invalidEventLabel = "invalid"

// Ingestor validates and applies events. It holds no per-event state, so a
// single instance serves any number of concurrent callers.
type Ingestor struct {
	counters    store.Store
	engagements store.Store
	rollups     *analytics.EntityRollupManager
	buckets     *analytics.TimeBucketAggregator
	viewers     *analytics.UniqueSetTracker
	metrics     *metric.Metrics
	logger      *slog.Logger
	now         func() time.Time
}

// NewIngestor wires the write path. counters is the durable counter store;
// engagements is the 90-day-retention store for raw engagement records.
func NewIngestor(
	counters, engagements store.Store,
	rollups *analytics.EntityRollupManager,
	buckets *analytics.TimeBucketAggregator,
	viewers *analytics.UniqueSetTracker,
	metrics *metric.Metrics,
	logger *slog.Logger,
) *Ingestor {
	return &Ingestor{
		counters:    counters,
		engagements: engagements,
		rollups:     rollups,
		buckets:     buckets,
		viewers:     viewers,
		metrics:     metrics,
		logger:      logger.With("component", "ingestor"),
		now:         time.Now,
	}
}

// TrackView records one view event. The view counter increment must succeed
// or the whole call fails; rollup, time-bucket, and unique-viewer writes are
// fanned out concurrently and a failure there only skips that aggregate.
// Validation failures produce no side effects.
func (in *Ingestor) TrackView(ctx context.Context, req ViewRequest) (ViewAck, error) {
	in.metrics.EventsReceived.WithLabelValues(string(analytics.EventView)).Inc()
	start := in.now()

	if req.EntityType == "" {
		return ViewAck{}, errors.MissingField("entityType")
	}
	if req.EntityID == "" {
		return ViewAck{}, errors.MissingField("entityId")
	}

	pk := store.PartitionKey(req.EntityType, req.EntityID)
	newCount, err := in.counters.Increment(ctx, pk, store.SortKeyViews, "viewCount", 1)
	if err != nil {
		in.metrics.EventsProcessed.WithLabelValues(string(analytics.EventView), "error").Inc()
		return ViewAck{}, errors.Wrap(err, "ingestor", "TrackView", "primary counter")
	}
	if newCount == 1 {
		// First view stamps the entity type for trending scans
		in.fanout(ctx, "entity_type", func(ctx context.Context) error {
			return in.counters.SetField(ctx, pk, store.SortKeyViews, "entityType", req.EntityType)
		})
	}

	ts := in.now().UTC()
	var wg sync.WaitGroup
	in.fanoutAsync(ctx, &wg, "rollup", func(ctx context.Context) error {
		return in.rollups.RecordEntityEvent(ctx, req.EntityType, req.EntityID, analytics.EventView)
	})
	in.fanoutAsync(ctx, &wg, "timebucket", func(ctx context.Context) error {
		return in.buckets.RecordEvent(ctx, req.EntityType, req.EntityID, analytics.EventView, ts, req.DeviceType)
	})
	if req.UserID != "" {
		in.fanoutAsync(ctx, &wg, "uniqueset", func(ctx context.Context) error {
			if err := in.viewers.RecordViewer(ctx, req.EntityType, req.EntityID, req.UserID, ts); err != nil {
				return err
			}
			_, err := in.viewers.RecomputeUniqueCount(ctx, req.EntityType, req.EntityID)
			return err
		})
	}
	wg.Wait()

	in.metrics.EventsProcessed.WithLabelValues(string(analytics.EventView), "ok").Inc()
	in.metrics.ProcessingDuration.WithLabelValues("track_view").Observe(in.now().Sub(start).Seconds())
	return ViewAck{ViewCount: newCount}, nil
}

// TrackEngagement records one engagement event. The raw record append and
// the per-type counter increment are both primary; rollup and time-bucket
// writes are best-effort fan-out.
func (in *Ingestor) TrackEngagement(ctx context.Context, req EngagementRequest) (EngagementAck, error) {
	start := in.now()

	eventType, err := validateEngagement(req)
	if err != nil {
		// Rejected requests share one fixed label so client-supplied
		// strings never mint new time series.
		in.metrics.EventsReceived.WithLabelValues(invalidEventLabel).Inc()
		return EngagementAck{}, err
	}
	in.metrics.EventsReceived.WithLabelValues(string(eventType)).Inc()

	pk := store.PartitionKey(req.EntityType, req.EntityID)
	ts := in.now().UTC()
	engagementID := uuid.NewString()

	record := analytics.EngagementRecord{
		PartitionKey:   pk,
		SortKey:        store.SortKeyEngagementPrefix + engagementID,
		UserID:         req.UserID,
		EngagementType: string(eventType),
		Metadata:       req.Metadata,
		Timestamp:      ts.Format(time.RFC3339Nano),
		ExpiresAt:      ts.Add(engagementRetention).Format(time.RFC3339Nano),
	}
	if err := in.engagements.Put(ctx, pk, record.SortKey, record); err != nil {
		in.metrics.EventsProcessed.WithLabelValues(string(eventType), "error").Inc()
		return EngagementAck{}, errors.Wrap(err, "ingestor", "TrackEngagement", "append record")
	}

	count, err := in.counters.Increment(ctx, pk,
		store.SortKeyEngagementCount+string(eventType), "count", 1)
	if err != nil {
		in.metrics.EventsProcessed.WithLabelValues(string(eventType), "error").Inc()
		return EngagementAck{}, errors.Wrap(err, "ingestor", "TrackEngagement", "primary counter")
	}

	var wg sync.WaitGroup
	in.fanoutAsync(ctx, &wg, "rollup", func(ctx context.Context) error {
		return in.rollups.RecordEntityEvent(ctx, req.EntityType, req.EntityID, eventType)
	})
	in.fanoutAsync(ctx, &wg, "timebucket", func(ctx context.Context) error {
		return in.buckets.RecordEvent(ctx, req.EntityType, req.EntityID, eventType, ts, "")
	})
	wg.Wait()

	in.metrics.EventsProcessed.WithLabelValues(string(eventType), "ok").Inc()
	in.metrics.ProcessingDuration.WithLabelValues("track_engagement").Observe(in.now().Sub(start).Seconds())
	return EngagementAck{EngagementID: engagementID, Count: count}, nil
}

// validateEngagement checks required fields and resolves the engagement type
// against the closed event enum. View events are rejected here so both write
// paths can never count the same view.
func validateEngagement(req EngagementRequest) (analytics.EventType, error) {
	if req.EntityType == "" {
		return "", errors.MissingField("entityType")
	}
	if req.EntityID == "" {
		return "", errors.MissingField("entityId")
	}
	if req.EngagementType == "" {
		return "", errors.MissingField("engagementType")
	}
	eventType, err := analytics.ParseEventType(req.EngagementType)
	if err != nil {
		return "", errors.WrapInvalid(err, "ingestor", "TrackEngagement", "parse engagement type")
	}
	if eventType == analytics.EventView {
		return "", errors.NewInvalid("ingestor", "TrackEngagement",
			"view events must use track-view")
	}
	return eventType, nil
}

// Process dispatches one generic event to the view or engagement path.
func (in *Ingestor) Process(ctx context.Context, ev Event) error {
	eventType, err := analytics.ParseEventType(ev.EventType)
	if err != nil {
		return errors.WrapInvalid(err, "ingestor", "Process", "parse event type")
	}

	if eventType == analytics.EventView {
		_, err = in.TrackView(ctx, ViewRequest{
			EntityType: ev.EntityType,
			EntityID:   ev.EntityID,
			UserID:     ev.UserID,
			DeviceType: ev.DeviceType,
		})
		return err
	}

	_, err = in.TrackEngagement(ctx, EngagementRequest{
		EntityType:     ev.EntityType,
		EntityID:       ev.EntityID,
		UserID:         ev.UserID,
		EngagementType: ev.EventType,
		Metadata:       ev.Metadata,
	})
	return err
}

// ProcessBatch processes every record independently and returns the subset
// that failed, so the channel can redeliver only those. A validation failure
// in one record never blocks the rest of the batch.
func (in *Ingestor) ProcessBatch(ctx context.Context, records []BatchRecord) []BatchFailure {
	var failed []BatchFailure
	for _, rec := range records {
		if err := in.Process(ctx, rec.Event); err != nil {
			in.logger.Warn("batch record failed",
				"recordId", rec.ID,
				"entityType", rec.Event.EntityType,
				"entityId", rec.Event.EntityID,
				"error", err)
			failed = append(failed, BatchFailure{
				ID:        rec.ID,
				Error:     err.Error(),
				Retryable: !errors.IsInvalid(err),
			})
		}
	}
	return failed
}

// fanout runs one secondary write synchronously, logging instead of failing.
func (in *Ingestor) fanout(ctx context.Context, target string, fn func(context.Context) error) {
	if err := fn(ctx); err != nil {
		in.metrics.FanoutErrors.WithLabelValues(target).Inc()
		in.logger.Warn("secondary write skipped", "target", target, "error", err)
	}
}

// fanoutAsync runs one secondary write on its own goroutine. Failures are
// logged and counted; they never propagate to the caller.
func (in *Ingestor) fanoutAsync(ctx context.Context, wg *sync.WaitGroup, target string, fn func(context.Context) error) {
	wg.Add(1)
	go func() {
		defer wg.Done()
		in.fanout(ctx, target, fn)
	}()
}
