// Package query is the read path: a pure facade over the aggregate stores.
// Nothing in this package writes to the counter stores.
package query

import (
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"time"

	"github.com/ming0627/bellyfed-new-sub015/analytics"
	"github.com/ming0627/bellyfed-new-sub015/errors"
	"github.com/ming0627/bellyfed-new-sub015/metric"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

// AnalyticsResponse is the composed answer to a get-analytics query.
type AnalyticsResponse struct {
	EntityType     string                      `json:"entityType"`
	EntityID       string                      `json:"entityId"`
	ViewData       ViewData                    `json:"viewData"`
	EngagementData map[string]uint64           `json:"engagementData"`
	TimeSeriesData []analytics.TimeSeriesPoint `json:"timeSeriesData,omitempty"`
}

// ViewData is the view slice of an analytics response.
type ViewData struct {
	ViewCount     uint64            `json:"viewCount"`
	UniqueViewers uint64            `json:"uniqueViewers"`
	TotalEvents   uint64            `json:"totalEvents"`
	EventsByType  map[string]uint64 `json:"eventsByType"`
	LastUpdated   string            `json:"lastUpdated,omitempty"`
}

// Service composes the aggregate readers behind a single facade.
type Service struct {
	counters store.Store
	rollups  *analytics.EntityRollupManager
	buckets  *analytics.TimeBucketAggregator
	trending *analytics.TrendingIndex
	cache    *CacheLayer
	metrics  *metric.Metrics
	logger   *slog.Logger
	now      func() time.Time
}

// NewService wires the read path.
func NewService(
	counters store.Store,
	rollups *analytics.EntityRollupManager,
	buckets *analytics.TimeBucketAggregator,
	trending *analytics.TrendingIndex,
	cacheLayer *CacheLayer,
	metrics *metric.Metrics,
	logger *slog.Logger,
) *Service {
	return &Service{
		counters: counters,
		rollups:  rollups,
		buckets:  buckets,
		trending: trending,
		cache:    cacheLayer,
		metrics:  metrics,
		logger:   logger.With("component", "query"),
		now:      time.Now,
	}
}

// Analytics returns the entity's view counters, lifetime rollup, per-type
// engagement counts, and, when a period is given, the gap-filled daily time
// series. An entity with no recorded activity yields zeros, not an error.
func (s *Service) Analytics(ctx context.Context, entityType, entityID string, period analytics.Period) (AnalyticsResponse, error) {
	start := s.now()
	if entityType == "" {
		return AnalyticsResponse{}, errors.MissingField("entityType")
	}
	if entityID == "" {
		return AnalyticsResponse{}, errors.MissingField("entityId")
	}

	resp := AnalyticsResponse{
		EntityType:     entityType,
		EntityID:       entityID,
		EngagementData: map[string]uint64{},
	}
	pk := store.PartitionKey(entityType, entityID)

	var counter analytics.ViewCounter
	found, err := s.counters.Get(ctx, pk, store.SortKeyViews, &counter)
	if err != nil {
		s.countQuery("analytics", "error")
		return AnalyticsResponse{}, errors.Wrap(err, "query", "Analytics", "read view counter")
	}
	if found {
		resp.ViewData.ViewCount = counter.ViewCount
		resp.ViewData.UniqueViewers = counter.UniqueViewers
		resp.ViewData.LastUpdated = counter.LastUpdated
	}

	rollup, err := s.rollups.Rollup(ctx, entityType, entityID)
	if err != nil {
		s.countQuery("analytics", "error")
		return AnalyticsResponse{}, errors.Wrap(err, "query", "Analytics", "read rollup")
	}
	resp.ViewData.TotalEvents = rollup.TotalEvents
	resp.ViewData.EventsByType = rollup.EventsByType

	err = s.counters.Scan(ctx, pk, store.SortKeyEngagementCount, func(scanPK, sk string, value []byte) error {
		if scanPK != pk {
			return nil
		}
		engagementType := strings.TrimPrefix(sk, store.SortKeyEngagementCount)
		var ec analytics.EngagementCounter
		if err := json.Unmarshal(value, &ec); err != nil {
			s.logger.Warn("skipping unreadable engagement counter", "sortKey", sk, "error", err)
			return nil
		}
		resp.EngagementData[engagementType] = ec.Count
		return nil
	})
	if err != nil {
		s.countQuery("analytics", "error")
		return AnalyticsResponse{}, errors.Wrap(err, "query", "Analytics", "read engagement counts")
	}

	if period != "" {
		series, err := s.buckets.TimeSeries(ctx, entityType, entityID, period)
		if err != nil {
			s.countQuery("analytics", "error")
			return AnalyticsResponse{}, errors.Wrap(err, "query", "Analytics", "read time series")
		}
		resp.TimeSeriesData = series
	}

	s.countQuery("analytics", "ok")
	s.metrics.QueryDuration.WithLabelValues("analytics").Observe(s.now().Sub(start).Seconds())
	return resp, nil
}

// Trending returns the top-K entities of a type by view count.
func (s *Service) Trending(ctx context.Context, entityType string, limit int, period analytics.Period) ([]analytics.TrendingEntry, error) {
	start := s.now()
	if entityType == "" {
		return nil, errors.MissingField("entityType")
	}

	entries, err := s.trending.TopK(ctx, entityType, limit, period)
	if err != nil {
		s.countQuery("trending", "error")
		return nil, err
	}

	s.countQuery("trending", "ok")
	s.metrics.QueryDuration.WithLabelValues("trending").Observe(s.now().Sub(start).Seconds())
	return entries, nil
}

// CacheData stores a value through the cache layer.
func (s *Service) CacheData(key string, value json.RawMessage, ttlSeconds int) error {
	if err := s.cache.Put(key, value, ttlSeconds); err != nil {
		s.countQuery("cache_data", "error")
		return err
	}
	s.countQuery("cache_data", "ok")
	return nil
}

// Cached looks up a cached value. Absent or expired entries report
// found=false, not an error.
func (s *Service) Cached(key string) (CachedItem, bool, error) {
	if key == "" {
		return CachedItem{}, false, errors.MissingField("key")
	}
	item, found := s.cache.Get(key)
	s.countQuery("get_cached", "ok")
	return item, found, nil
}

func (s *Service) countQuery(operation, status string) {
	s.metrics.QueriesTotal.WithLabelValues(operation, status).Inc()
}
