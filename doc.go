// Package bellyfed is an event analytics aggregation engine.
//
// The engine ingests view and engagement events for arbitrary entities
// (recipes, restaurants, users) and maintains read-optimized aggregates:
// atomic view counters, per-day deduplicated viewer sets with exact unique
// totals, daily/hourly/realtime time buckets, lifetime rollups, and read-time
// trending. Aggregates live in NATS JetStream KV buckets with
// retention-appropriate TTLs; all counter mutations go through CAS retry so
// concurrent writers never lose increments.
//
// Events arrive over HTTP (gateway/http) or a durable JetStream consumer
// (ingest.Consumer). Reads are served by the query service with an optional
// TTL response cache.
//
// Package layout:
//
//   - store: composite-key document store over NATS KV (plus in-memory twin)
//   - analytics: unique viewers, time buckets, rollups, trending
//   - ingest: event validation, primary write + fanout, batch, consumer
//   - query: read-path composition and response cache
//   - gateway/http: HTTP API
//   - natsclient, pkg/cache, pkg/retry, metric, errors, component, config:
//     shared infrastructure
//
// The cmd/bellyfed-analytics binary wires everything together.
package bellyfed
