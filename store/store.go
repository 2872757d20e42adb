// Package store provides the atomic counter store backing all aggregation
// components. Records are JSON documents addressed by a composite key
// (partition key + sort key); all mutation happens through atomic
// read-modify-write operations so that concurrent writers converge to the
// arithmetic sum with no lost updates.
//
// Two implementations exist: a JetStream KV-backed store for production and
// a mutex-guarded in-memory store for tests and local development.
package store

import (
	"context"
	"fmt"
	"strings"
)

// Sort key prefixes and constants for the analytics data model.
const (
	SortKeyViews            = "VIEWS"
	SortKeyViewersPrefix    = "VIEWERS#"    // VIEWERS#<date>
	SortKeyEngagementPrefix = "ENGAGEMENT#" // ENGAGEMENT#<engagementId>
	SortKeyEngagementCount  = "ENGAGEMENT_COUNT#"
	SortKeyLifetime         = "DATE#ALL"
	SortKeyDailyPrefix      = "daily_"
	SortKeyHourlyPrefix     = "hourly_"
	SortKeyRealtimePrefix   = "realtime_"
)

// Store is the atomic key-value counter primitive. Implementations must
// guarantee that Increment and IncrementNested are atomic read-modify-write
// operations: absent records initialize to zero before the first increment
// (ADD semantics, not GET-then-SET), and concurrent increments never lose
// updates.
type Store interface {
	// Increment atomically adds delta to a numeric field of the record at
	// (pk, sk), creating the record if absent, and returns the new value.
	// The record's lastUpdated timestamp is refreshed as part of the same
	// write.
	Increment(ctx context.Context, pk, sk, field string, delta uint64) (uint64, error)

	// IncrementNested atomically adds delta to mapField[mapKey] of the
	// record at (pk, sk), creating record and map as needed, and returns
	// the new value.
	IncrementNested(ctx context.Context, pk, sk, mapField, mapKey string, delta uint64) (uint64, error)

	// AddToSet atomically adds members to a string-set field of the record
	// at (pk, sk). Adding an existing member is a no-op (set union).
	AddToSet(ctx context.Context, pk, sk, field string, members ...string) error

	// SetField atomically overwrites a single field of the record at
	// (pk, sk), creating the record if absent.
	SetField(ctx context.Context, pk, sk, field string, value any) error

	// Get reads the record at (pk, sk) into out (a JSON-taggable pointer).
	// Returns false with a nil error when the record is absent.
	Get(ctx context.Context, pk, sk string, out any) (bool, error)

	// Put writes a full record at (pk, sk), replacing any existing record.
	Put(ctx context.Context, pk, sk string, record any) error

	// Scan visits every record whose partition key starts with pkPrefix and
	// whose sort key starts with skPrefix. Iteration stops at the first
	// error returned by fn. Visit order is unspecified.
	Scan(ctx context.Context, pkPrefix, skPrefix string, fn func(pk, sk string, value []byte) error) error
}

// PartitionKey builds the canonical entity partition key.
func PartitionKey(entityType, entityID string) string {
	return entityType + "#" + entityID
}

// SplitPartitionKey is the inverse of PartitionKey.
func SplitPartitionKey(pk string) (entityType, entityID string, ok bool) {
	entityType, entityID, ok = strings.Cut(pk, "#")
	return
}

// NATS KV keys cannot contain "#", so composite keys are encoded with "#"
// replaced by "=" and the two halves joined by "/". Logical keys keep the
// "<entityType>#<entityId>" shape everywhere above the store.
const (
	hashReplacement = "="
	keySeparator    = "/"
)

// EncodeKey converts a composite key to its physical storage key.
func EncodeKey(pk, sk string) string {
	return strings.ReplaceAll(pk, "#", hashReplacement) +
		keySeparator +
		strings.ReplaceAll(sk, "#", hashReplacement)
}

// DecodeKey converts a physical storage key back to its composite key.
func DecodeKey(key string) (pk, sk string, err error) {
	encPK, encSK, ok := strings.Cut(key, keySeparator)
	if !ok {
		return "", "", fmt.Errorf("malformed storage key %q", key)
	}
	return strings.ReplaceAll(encPK, hashReplacement, "#"),
		strings.ReplaceAll(encSK, hashReplacement, "#"),
		nil
}
