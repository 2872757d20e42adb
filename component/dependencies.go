package component

import (
	"log/slog"

	"github.com/ming0627/bellyfed-new-sub015/metric"
	"github.com/ming0627/bellyfed-new-sub015/natsclient"
)

// Dependencies provides all external dependencies needed by components,
// passed as a single structure rather than individual fields.
type Dependencies struct {
	NATSClient      *natsclient.Client      // NATS client for streams and KV (nil in memory mode)
	MetricsRegistry *metric.MetricsRegistry // Metrics registry for Prometheus (can be nil)
	Metrics         *metric.Metrics         // Engine-level metrics (can be nil)
	Logger          *slog.Logger            // Structured logger (can be nil, defaults to slog.Default())
}

// GetLogger returns the configured logger or a default logger if none is provided
func (d *Dependencies) GetLogger() *slog.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return slog.Default()
}

// GetLoggerWithComponent returns a logger configured with component context
func (d *Dependencies) GetLoggerWithComponent(componentName string) *slog.Logger {
	return d.GetLogger().With("component", componentName)
}

// GetMetrics returns the configured engine metrics or a fresh unregistered
// set, so components never nil-check individual collectors.
func (d *Dependencies) GetMetrics() *metric.Metrics {
	if d.Metrics != nil {
		return d.Metrics
	}
	return metric.NewMetrics()
}
