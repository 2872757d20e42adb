// Package store defines the document store abstraction used by every
// aggregation component, plus its two implementations.
//
// Records live under a composite key: a partition key "<entityType>#<id>"
// grouping all analytics for one entity, and a sort key selecting the record
// kind within that partition (VIEWS, VIEWERS#<date>, ENGAGEMENT_COUNT#<type>,
// time bucket keys, DATE#ALL). Because NATS KV forbids '#' and ':' in keys,
// EncodeKey maps the logical pair onto a single physical key and DecodeKey
// reverses it.
//
// The Store interface exposes field-level mutations (Increment, AddToSet,
// SetField) rather than blind writes. Implementations guarantee each mutation
// is atomic with respect to concurrent writers on the same key.
//
// Two implementations:
//
//   - kvStore backs onto a NATS JetStream KV bucket and gets atomicity from
//     CAS retry (natsclient.KVStore.UpdateWithRetry).
//   - memStore is an in-process map with the same semantics, used for tests
//     and for running the engine without a NATS server.
package store
