// Package main implements the entry point for the bellyfed analytics engine:
// an event analytics aggregation service that ingests engagement events and
// serves counters, rollups, and trending rankings over HTTP.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/ming0627/bellyfed-new-sub015/analytics"
	"github.com/ming0627/bellyfed-new-sub015/component"
	"github.com/ming0627/bellyfed-new-sub015/config"
	gwhttp "github.com/ming0627/bellyfed-new-sub015/gateway/http"
	"github.com/ming0627/bellyfed-new-sub015/ingest"
	"github.com/ming0627/bellyfed-new-sub015/metric"
	"github.com/ming0627/bellyfed-new-sub015/natsclient"
	"github.com/ming0627/bellyfed-new-sub015/pkg/cache"
	"github.com/ming0627/bellyfed-new-sub015/query"
	"github.com/ming0627/bellyfed-new-sub015/store"
)

// Build information constants
const (
	Version = "0.1.0"
	appName = "bellyfed-analytics"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := run(); err != nil {
		slog.Error("Application failed", "error", err, "exit_code", 1)
		os.Exit(1)
	}
}

func run() error {
	cliCfg := parseFlags()
	if err := validateFlags(cliCfg); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	if cliCfg.ShowVersion {
		fmt.Printf("%s %s\n", appName, Version)
		return nil
	}
	if cliCfg.ShowHelp {
		printDetailedHelp()
		return nil
	}

	cfg, err := config.Load(cliCfg.ConfigPath)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if cliCfg.LogLevel != "" {
		cfg.Logging.Level = cliCfg.LogLevel
	}
	if cliCfg.LogFormat != "" {
		cfg.Logging.Format = cliCfg.LogFormat
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validate configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(logger)

	if cliCfg.Validate {
		logger.Info("configuration is valid", "storageMode", cfg.Storage.Mode)
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := metric.NewMetricsRegistry()
	metrics := registry.CoreMetrics()

	stores, natsClient, err := setupStorage(ctx, cfg, metrics, logger)
	if err != nil {
		return err
	}
	if natsClient != nil {
		defer func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = natsClient.Close(closeCtx)
		}()
	}

	deps := component.Dependencies{
		NATSClient:      natsClient,
		MetricsRegistry: registry,
		Metrics:         metrics,
		Logger:          logger,
	}

	rollups := analytics.NewEntityRollupManager(stores.counters, logger)
	buckets := analytics.NewTimeBucketAggregator(stores.counters, stores.realtime, logger)
	viewers := analytics.NewUniqueSetTracker(stores.counters, logger)
	trending := analytics.NewTrendingIndex(stores.counters, logger)

	ingestor := ingest.NewIngestor(stores.counters, stores.engagements,
		rollups, buckets, viewers, metrics, logger)

	dataCache, err := cache.NewTTL[query.CachedItem](ctx,
		cfg.Cache.DefaultTTL, cfg.Cache.CleanupInterval,
		cache.WithMetrics[query.CachedItem](registry, "querycache"))
	if err != nil {
		return fmt.Errorf("create cache: %w", err)
	}
	defer func() { _ = dataCache.Close() }()

	querier := query.NewService(stores.counters, rollups, buckets, trending,
		query.NewCacheLayer(dataCache), metrics, logger)

	healthy := func() bool { return true }
	if natsClient != nil {
		healthy = natsClient.IsHealthy
	}

	gateway, err := gwhttp.NewGateway(gwhttp.Config{
		Addr:            cfg.HTTP.Addr,
		MaxRequestSize:  cfg.HTTP.MaxRequestSize,
		EnableCORS:      cfg.HTTP.EnableCORS,
		CORSOrigins:     cfg.HTTP.CORSOrigins,
		ReadTimeout:     cfg.HTTP.ReadTimeout,
		WriteTimeout:    cfg.HTTP.WriteTimeout,
		ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
	}, deps, ingestor, querier, healthy)
	if err != nil {
		return fmt.Errorf("create http gateway: %w", err)
	}

	components := []component.LifecycleComponent{}
	if natsClient != nil {
		consumer, err := ingest.NewConsumer(ingest.ConsumerConfig{
			StreamName:    cfg.Ingest.StreamName,
			Subjects:      cfg.Ingest.Subjects,
			ConsumerName:  cfg.Ingest.ConsumerName,
			MaxDeliver:    cfg.Ingest.MaxDeliver,
			AckWait:       cfg.Ingest.AckWait,
			MaxAckPending: cfg.Ingest.MaxAckPending,
		}, deps, ingestor)
		if err != nil {
			return fmt.Errorf("create event consumer: %w", err)
		}
		components = append(components, consumer)
	}
	components = append(components, gateway)

	started := make([]component.LifecycleComponent, 0, len(components))
	defer func() {
		// Reverse start order: gateway stops accepting before the consumer drains
		for i := len(started) - 1; i >= 0; i-- {
			if err := started[i].Stop(cliCfg.ShutdownTimeout); err != nil {
				logger.Error("component stop failed", "component", started[i].Name(), "error", err)
			}
		}
	}()

	for _, comp := range components {
		if err := comp.Initialize(ctx); err != nil {
			return fmt.Errorf("initialize %s: %w", comp.Name(), err)
		}
		if err := comp.Start(ctx); err != nil {
			return fmt.Errorf("start %s: %w", comp.Name(), err)
		}
		started = append(started, comp)
		logger.Info("component started", "component", comp.Name())
	}

	logger.Info("engine running",
		"storageMode", cfg.Storage.Mode,
		"httpAddr", cfg.HTTP.Addr)

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
		return nil
	case err := <-gateway.ServeErr():
		if err != nil {
			return fmt.Errorf("http gateway failed: %w", err)
		}
		return nil
	}
}

// engineStores groups the three retention-differentiated stores.
type engineStores struct {
	counters    store.Store // Durable counters, viewer sets, buckets
	realtime    store.Store // Minute buckets, 24h retention
	engagements store.Store // Raw engagement records, 90-day retention
}

// setupStorage builds the stores for the configured mode. In kv mode it
// connects to NATS and provisions one bucket per retention class.
func setupStorage(ctx context.Context, cfg *config.Config, metrics *metric.Metrics, logger *slog.Logger) (engineStores, *natsclient.Client, error) {
	if cfg.Storage.Mode == config.StorageModeMemory {
		logger.Warn("using in-memory storage, data will not survive restarts")
		return engineStores{
			counters:    store.NewMemory(),
			realtime:    store.NewMemory(),
			engagements: store.NewMemory(),
		}, nil, nil
	}

	opts := []natsclient.ClientOption{
		natsclient.WithClientName(appName),
		natsclient.WithMaxReconnects(cfg.NATS.MaxReconnects),
		natsclient.WithReconnectWait(cfg.NATS.ReconnectWait),
		natsclient.WithTimeout(cfg.NATS.Timeout),
		natsclient.WithLogger(&natsclient.SlogAdapter{L: logger.With("component", "nats")}),
		natsclient.WithReconnectCallback(func() {
			metrics.NATSReconnects.Inc()
		}),
	}
	if cfg.NATS.Username != "" {
		opts = append(opts, natsclient.WithCredentials(cfg.NATS.Username, cfg.NATS.Password))
	}
	if cfg.NATS.Token != "" {
		opts = append(opts, natsclient.WithToken(cfg.NATS.Token))
	}

	client, err := natsclient.NewClient(cfg.NATS.URL, opts...)
	if err != nil {
		return engineStores{}, nil, fmt.Errorf("create nats client: %w", err)
	}
	if err := client.Connect(ctx); err != nil {
		return engineStores{}, nil, fmt.Errorf("connect to nats: %w", err)
	}

	client.OnHealthChange(func(ok bool) {
		if ok {
			metrics.NATSConnected.Set(1)
		} else {
			metrics.NATSConnected.Set(0)
		}
	})
	metrics.NATSConnected.Set(1)

	buckets := []struct {
		name string
		ttl  time.Duration
	}{
		{cfg.Storage.CountersBucket, 0},
		{cfg.Storage.RealtimeBucket, 24 * time.Hour},
		{cfg.Storage.EngagementsBucket, 90 * 24 * time.Hour},
	}

	var stores engineStores
	dsts := []*store.Store{&stores.counters, &stores.realtime, &stores.engagements}
	for i, b := range buckets {
		kvBucket, err := client.CreateKeyValueBucket(ctx, jetstream.KeyValueConfig{
			Bucket: b.name,
			TTL:    b.ttl,
		})
		if err != nil {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			_ = client.Close(closeCtx)
			cancel()
			return engineStores{}, nil, fmt.Errorf("create bucket %s: %w", b.name, err)
		}
		*dsts[i] = store.NewKV(client.NewKVStore(kvBucket))
	}

	return stores, client, nil
}
