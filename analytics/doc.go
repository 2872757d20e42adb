// Package analytics implements the aggregation components of the engine:
// unique viewer tracking, time bucket aggregation, entity lifetime rollups,
// and the trending index.
//
// # Unique Viewers
//
// UniqueSetTracker maintains one deduplicated viewer set per entity per UTC
// day (VIEWERS#<date> records). The per-entity unique total is never
// incremented directly; RecomputeUniqueCount re-derives it by unioning every
// daily set, so repeated views by the same viewer on the same day can never
// inflate it.
//
// # Time Buckets
//
// TimeBucketAggregator fans each event into three granularities: durable
// daily and hourly buckets, and minute-level realtime buckets kept for 24
// hours. TimeSeries reads daily buckets over a period window and
// zero-fills missing days so charts never show gaps.
//
// # Trending
//
// TrendingIndex computes top-K at read time by scanning the view counters for
// one entity type and sorting by view count, unique viewers, then recency.
// There is no precomputed leaderboard to drift out of date.
package analytics
