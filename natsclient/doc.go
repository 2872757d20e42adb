// Package natsclient provides a robust NATS client with circuit breaker protection,
// automatic reconnection, and JetStream/KV support for the analytics engine.
//
// The natsclient package wraps the standard NATS Go client with additional
// reliability features including a circuit breaker for failure protection,
// exponential backoff for reconnection, and context propagation throughout all
// operations. It is the foundation for both the event consumer and the counter
// storage layer.
//
// # Core Features
//
// Circuit Breaker: fails fast after a threshold of consecutive failures
// (default: 5). The circuit opens to prevent further attempts, then gradually
// tests the connection with exponential backoff capped at one minute.
//
// Connection Lifecycle: Disconnected → Connecting → Connected → Reconnecting →
// Connected, with configurable callbacks for state changes and health
// transitions.
//
// JetStream Support: stream and consumer creation plus Key-Value buckets with
// per-bucket TTL, used to give realtime and engagement data different
// retention than lifetime counters.
//
// KVStore: high-level abstraction over NATS KV providing automatic CAS
// (Compare-And-Swap) retry with jitter. UpdateWithRetry is the atomic
// read-modify-write primitive behind every counter increment: concurrent
// writers serialize through revision checks, so increments are never lost.
//
// # Basic Usage
//
//	client, err := natsclient.NewClient("nats://localhost:4222",
//	    natsclient.WithClientName("analytics"),
//	    natsclient.WithMaxReconnects(-1),
//	)
//	if err != nil {
//	    return err
//	}
//
//	ctx := context.Background()
//	if err := client.Connect(ctx); err != nil {
//	    return err
//	}
//	defer client.Close(ctx)
//
//	bucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
//	    Bucket: "analytics-counters",
//	})
//	if err != nil {
//	    return err
//	}
//
//	kv := client.NewKVStore(bucket)
//	err = kv.UpdateWithRetry(ctx, "recipe=r1/VIEWS", func(current []byte) ([]byte, error) {
//	    // decode, increment, re-encode
//	    return next, nil
//	})
//
// # Error Handling
//
// Operations against a disconnected client return ErrNotConnected rather than
// blocking. KV helpers surface ErrKVKeyNotFound, ErrKVRevisionMismatch and
// ErrKVMaxRetriesExceeded as sentinel errors; IsKVNotFoundError and
// IsKVConflictError also match the raw NATS error codes so callers can branch
// without caring which layer produced the failure.
package natsclient
