package main

import (
	"flag"
	"fmt"
	"os"
	"time"
)

// CLIConfig holds command-line configuration
type CLIConfig struct {
	ConfigPath      string
	LogLevel        string
	LogFormat       string
	ShutdownTimeout time.Duration
	ShowVersion     bool
	ShowHelp        bool
	Validate        bool
}

func parseFlags() *CLIConfig {
	cfg := &CLIConfig{}

	flag.StringVar(&cfg.ConfigPath, "config",
		getEnv("BELLYFED_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: BELLYFED_CONFIG)")
	flag.StringVar(&cfg.ConfigPath, "c",
		getEnv("BELLYFED_CONFIG", ""),
		"Path to configuration file, empty for defaults (env: BELLYFED_CONFIG)")

	flag.StringVar(&cfg.LogLevel, "log-level",
		getEnv("BELLYFED_LOG_LEVEL", ""),
		"Log level: debug, info, warn, error (env: BELLYFED_LOG_LEVEL)")

	flag.StringVar(&cfg.LogFormat, "log-format",
		getEnv("BELLYFED_LOG_FORMAT", ""),
		"Log format: json, text (env: BELLYFED_LOG_FORMAT)")

	flag.DurationVar(&cfg.ShutdownTimeout, "shutdown-timeout",
		getEnvDuration("BELLYFED_SHUTDOWN_TIMEOUT", 30*time.Second),
		"Graceful shutdown timeout (env: BELLYFED_SHUTDOWN_TIMEOUT)")

	flag.BoolVar(&cfg.ShowVersion, "version", false, "Show version information")
	flag.BoolVar(&cfg.ShowVersion, "v", false, "Show version information")
	flag.BoolVar(&cfg.ShowHelp, "help", false, "Show help information")
	flag.BoolVar(&cfg.ShowHelp, "h", false, "Show help information")
	flag.BoolVar(&cfg.Validate, "validate", false, "Validate configuration and exit")

	flag.Usage = printDetailedHelp
	flag.Parse()

	return cfg
}

func validateFlags(cfg *CLIConfig) error {
	if cfg.ShowVersion || cfg.ShowHelp {
		return nil
	}

	if cfg.ConfigPath != "" {
		if _, err := os.Stat(cfg.ConfigPath); err != nil {
			return fmt.Errorf("config file not found: %s", cfg.ConfigPath)
		}
	}

	if cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("shutdown timeout must be positive")
	}
	return nil
}

func printDetailedHelp() {
	_, _ = fmt.Fprintf(os.Stderr, `%s - Event Analytics Aggregation Engine

Ingests engagement events (views, likes, comments, shares) and serves
counters, unique-viewer counts, time-bucketed rollups, and trending
rankings over HTTP.

Usage:
  %s [flags]

Flags:
`, appName, appName)
	flag.PrintDefaults()
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return fallback
}
