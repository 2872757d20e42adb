package metric

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics contains all engine-level metrics (not component-specific)
type Metrics struct {
	// Ingestion metrics
	EventsReceived     *prometheus.CounterVec
	EventsProcessed    *prometheus.CounterVec
	FanoutErrors       *prometheus.CounterVec
	ProcessingDuration *prometheus.HistogramVec

	// Query metrics
	QueriesTotal  *prometheus.CounterVec
	QueryDuration *prometheus.HistogramVec

	// Gateway metrics
	HTTPRequests *prometheus.CounterVec

	// NATS metrics
	NATSConnected  prometheus.Gauge
	NATSReconnects prometheus.Counter
}

// NewMetrics creates a new Metrics instance with all engine metrics
func NewMetrics() *Metrics {
	return &Metrics{
		EventsReceived: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bellyfed",
				Subsystem: "ingest",
				Name:      "events_received_total",
				Help:      "Total number of analytics events received",
			},
			[]string{"event_type"},
		),

		EventsProcessed: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bellyfed",
				Subsystem: "ingest",
				Name:      "events_processed_total",
				Help:      "Total number of analytics events processed",
			},
			[]string{"event_type", "status"},
		),

		FanoutErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bellyfed",
				Subsystem: "ingest",
				Name:      "fanout_errors_total",
				Help:      "Total number of best-effort fan-out write failures by target",
			},
			[]string{"target"},
		),

		ProcessingDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bellyfed",
				Subsystem: "ingest",
				Name:      "processing_duration_seconds",
				Help:      "Event processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		QueriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bellyfed",
				Subsystem: "query",
				Name:      "total",
				Help:      "Total number of analytics queries",
			},
			[]string{"operation", "status"},
		),

		QueryDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "bellyfed",
				Subsystem: "query",
				Name:      "duration_seconds",
				Help:      "Query processing duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"operation"},
		),

		HTTPRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "bellyfed",
				Subsystem: "gateway",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests by route and status code",
			},
			[]string{"route", "code"},
		),

		NATSConnected: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "bellyfed",
				Subsystem: "nats",
				Name:      "connected",
				Help:      "NATS connection status (0=disconnected, 1=connected)",
			},
		),

		NATSReconnects: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "bellyfed",
				Subsystem: "nats",
				Name:      "reconnects_total",
				Help:      "Total number of NATS reconnections",
			},
		),
	}
}
