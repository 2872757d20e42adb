// Package query is the read path of the analytics engine.
//
// Service composes per-entity analytics responses from the stores written by
// the ingest path: view counter, lifetime rollup, engagement counts, and an
// optional gap-filled time series when a period is requested. Trending
// queries delegate to the read-time top-K index.
//
// CacheLayer wraps the generic TTL cache for caller-supplied JSON payloads.
// Keys without an explicit sort component are normalized with a "#DATA"
// suffix so cache keys share the composite shape used everywhere else.
package query
