// Package ingest is the write path of the analytics engine.
//
// Ingestor validates incoming view and engagement events, performs the
// primary counter write, then fans out to the secondary aggregations (daily
// viewer sets, time buckets, lifetime rollups). The primary write must
// succeed for the call to succeed; fanout failures are logged and counted but
// never fail the event, so a slow secondary store cannot reject traffic.
//
// ProcessBatch applies the same logic per record and reports per-record
// failures instead of aborting the batch, marking each failure retryable or
// not so the transport can decide between redelivery and termination.
//
// Consumer binds the ingestor to a durable JetStream pull consumer: invalid
// events are terminated (no redelivery can fix them), transient failures get a
// NAK so JetStream redelivers, successes are acked.
package ingest
