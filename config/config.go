// Package config loads the engine configuration: defaults, then an optional
// JSON file, then environment overrides, then validation.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Storage mode constants
const (
	StorageModeMemory = "memory" // In-memory only (dev and tests)
	StorageModeKV     = "kv"     // NATS JetStream KV (production)
)

// Config represents the complete application configuration.
type Config struct {
	NATS    NATSConfig    `json:"nats"`
	Storage StorageConfig `json:"storage"`
	Ingest  IngestConfig  `json:"ingest"`
	Cache   CacheConfig   `json:"cache"`
	HTTP    HTTPConfig    `json:"http"`
	Logging LoggingConfig `json:"logging"`
}

// NATSConfig holds the NATS connection settings.
type NATSConfig struct {
	URL           string        `json:"url"`
	MaxReconnects int           `json:"maxReconnects"`
	ReconnectWait time.Duration `json:"reconnectWait"`
	Timeout       time.Duration `json:"timeout"`
	Username      string        `json:"username,omitempty"`
	Password      string        `json:"password,omitempty"`
	Token         string        `json:"token,omitempty"`
}

// StorageConfig selects the store backing and names the KV buckets.
type StorageConfig struct {
	Mode              string `json:"mode"`
	CountersBucket    string `json:"countersBucket"`
	RealtimeBucket    string `json:"realtimeBucket"`
	EngagementsBucket string `json:"engagementsBucket"`
}

// IngestConfig configures the batch event channel.
type IngestConfig struct {
	StreamName    string        `json:"streamName"`
	Subjects      []string      `json:"subjects"`
	ConsumerName  string        `json:"consumerName"`
	MaxDeliver    int           `json:"maxDeliver"`
	AckWait       time.Duration `json:"ackWait"`
	MaxAckPending int           `json:"maxAckPending"`
}

// CacheConfig configures the generic TTL cache.
type CacheConfig struct {
	DefaultTTL      time.Duration `json:"defaultTTL"`
	CleanupInterval time.Duration `json:"cleanupInterval"`
}

// HTTPConfig configures the gateway listener.
type HTTPConfig struct {
	Addr            string        `json:"addr"`
	MaxRequestSize  int64         `json:"maxRequestSize"`
	EnableCORS      bool          `json:"enableCORS"`
	CORSOrigins     []string      `json:"corsOrigins"`
	ReadTimeout     time.Duration `json:"readTimeout"`
	WriteTimeout    time.Duration `json:"writeTimeout"`
	ShutdownTimeout time.Duration `json:"shutdownTimeout"`
}

// LoggingConfig configures the structured logger.
type LoggingConfig struct {
	Level  string `json:"level"`  // debug, info, warn, error
	Format string `json:"format"` // json, text
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		NATS: NATSConfig{
			URL:           "nats://localhost:4222",
			MaxReconnects: -1,
			ReconnectWait: 2 * time.Second,
			Timeout:       5 * time.Second,
		},
		Storage: StorageConfig{
			Mode:              StorageModeKV,
			CountersBucket:    "analytics-counters",
			RealtimeBucket:    "analytics-realtime",
			EngagementsBucket: "analytics-engagements",
		},
		Ingest: IngestConfig{
			StreamName:    "ANALYTICS_EVENTS",
			Subjects:      []string{"analytics.events.>"},
			ConsumerName:  "analytics-engine",
			MaxDeliver:    5,
			AckWait:       30 * time.Second,
			MaxAckPending: 256,
		},
		Cache: CacheConfig{
			DefaultTTL:      5 * time.Minute,
			CleanupInterval: 30 * time.Second,
		},
		HTTP: HTTPConfig{
			Addr:            ":8080",
			MaxRequestSize:  1 << 20,
			ReadTimeout:     10 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Load reads configuration from an optional JSON file, applies environment
// overrides, and validates. An empty path loads defaults plus environment.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config file %s: %w", path, err)
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

const envPrefix = "BELLYFED"

// applyEnvOverrides applies environment variable overrides.
func applyEnvOverrides(cfg *Config) {
	if val := os.Getenv(envPrefix + "_NATS_URL"); val != "" {
		cfg.NATS.URL = val
	}
	if val := os.Getenv(envPrefix + "_NATS_TOKEN"); val != "" {
		cfg.NATS.Token = val
	}
	if val := os.Getenv(envPrefix + "_NATS_USERNAME"); val != "" {
		cfg.NATS.Username = val
	}
	if val := os.Getenv(envPrefix + "_NATS_PASSWORD"); val != "" {
		cfg.NATS.Password = val
	}
	if val := os.Getenv(envPrefix + "_STORAGE_MODE"); val != "" {
		cfg.Storage.Mode = val
	}
	if val := os.Getenv(envPrefix + "_HTTP_ADDR"); val != "" {
		cfg.HTTP.Addr = val
	}
	if val := os.Getenv(envPrefix + "_LOG_LEVEL"); val != "" {
		cfg.Logging.Level = val
	}
	if val := os.Getenv(envPrefix + "_LOG_FORMAT"); val != "" {
		cfg.Logging.Format = val
	}
	if val := os.Getenv(envPrefix + "_CACHE_TTL_SECONDS"); val != "" {
		if secs, err := strconv.Atoi(val); err == nil && secs > 0 {
			cfg.Cache.DefaultTTL = time.Duration(secs) * time.Second
		}
	}
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	switch c.Storage.Mode {
	case StorageModeMemory:
		// No NATS requirements in memory mode
	case StorageModeKV:
		if c.NATS.URL == "" {
			return fmt.Errorf("nats.url is required in kv storage mode")
		}
		if c.Storage.CountersBucket == "" || c.Storage.RealtimeBucket == "" || c.Storage.EngagementsBucket == "" {
			return fmt.Errorf("all storage bucket names are required in kv storage mode")
		}
		buckets := []string{c.Storage.CountersBucket, c.Storage.RealtimeBucket, c.Storage.EngagementsBucket}
		seen := map[string]bool{}
		for _, b := range buckets {
			if seen[b] {
				return fmt.Errorf("storage bucket names must be distinct, %q repeats", b)
			}
			seen[b] = true
		}
		if c.Ingest.StreamName == "" || c.Ingest.ConsumerName == "" || len(c.Ingest.Subjects) == 0 {
			return fmt.Errorf("ingest stream, consumer, and subjects are required in kv storage mode")
		}
	default:
		return fmt.Errorf("unknown storage mode %q (want %s or %s)",
			c.Storage.Mode, StorageModeMemory, StorageModeKV)
	}

	if c.HTTP.Addr == "" {
		return fmt.Errorf("http.addr is required")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "json", "text":
	default:
		return fmt.Errorf("unknown log format %q", c.Logging.Format)
	}

	if c.Cache.DefaultTTL < 0 || c.Cache.CleanupInterval <= 0 {
		return fmt.Errorf("cache ttl must be non-negative and cleanup interval positive")
	}
	return nil
}
