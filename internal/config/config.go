// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package config loads the kestreld configuration from layered sources:
// built-in defaults, an optional YAML file, and KESTREL_-prefixed
// environment variables, in ascending precedence.
package config

import (
	"fmt"
	"time"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// Config is the complete kestreld configuration.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Store     StoreConfig     `koanf:"store"`
	Detection DetectionConfig `koanf:"detection"`
	Ingest    IngestConfig    `koanf:"ingest"`
	Notify    NotifyConfig    `koanf:"notify"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Host    string        `koanf:"host"`
	Port    int           `koanf:"port"`
	Timeout time.Duration `koanf:"timeout"`

	CORSOrigins       []string      `koanf:"cors_origins"`
	RateLimitRequests int           `koanf:"rate_limit_requests"`
	RateLimitWindow   time.Duration `koanf:"rate_limit_window"`
	RateLimitDisabled bool          `koanf:"rate_limit_disabled"`

	// Latitude and Longitude are the sensor's fixed position, pushed to
	// every handler at startup. Zero means unknown.
	Latitude  float64 `koanf:"latitude"`
	Longitude float64 `koanf:"longitude"`
}

// StoreConfig configures the detection store and its liveness sweep.
type StoreConfig struct {
	Path       string `koanf:"path"`
	InMemory   bool   `koanf:"in_memory"`
	SyncWrites bool   `koanf:"sync_writes"`

	// RetentionTTL is how long a detection stays active; SweepInterval is
	// how often the sweeper looks for stale ones.
	RetentionTTL  time.Duration `koanf:"retention_ttl"`
	SweepInterval time.Duration `koanf:"sweep_interval"`
}

// DetectionConfig configures the detection core.
type DetectionConfig struct {
	// Preset is the threshold profile applied to every handler at
	// startup: default, high-sensitivity or low-sensitivity.
	Preset string `koanf:"preset"`

	// KnownOperators lists trusted cellular operators as MCC-MNC pairs.
	// Empty disables the unknown-operator check.
	KnownOperators []string `koanf:"known_operators"`

	// AggregateWindow is the rolling window for incident aggregation.
	AggregateWindow time.Duration `koanf:"aggregate_window"`
}

// IngestConfig configures the observation pipeline.
type IngestConfig struct {
	// BufferSize bounds the in-flight observation queue.
	BufferSize int `koanf:"buffer_size"`

	// Workers is the number of concurrent dispatch workers.
	Workers int `koanf:"workers"`

	// AggregatesPerMinute bounds how often a fresh aggregate assessment
	// is computed and broadcast after new detections.
	AggregatesPerMinute int `koanf:"aggregates_per_minute"`
}

// NotifyConfig configures the outbound webhook.
type NotifyConfig struct {
	URL           string        `koanf:"url"`
	MinSeverity   string        `koanf:"min_severity"`
	RatePerMinute int           `koanf:"rate_per_minute"`
	Timeout       time.Duration `koanf:"timeout"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// defaultConfig returns the built-in defaults, applied before the file
// and environment layers.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:    "0.0.0.0",
			Port:    8420,
			Timeout: 30 * time.Second,

			CORSOrigins:       []string{},
			RateLimitRequests: 100,
			RateLimitWindow:   time.Minute,
			RateLimitDisabled: false,

			Latitude:  0.0,
			Longitude: 0.0,
		},
		Store: StoreConfig{
			Path:       "/data/kestrel",
			InMemory:   false,
			SyncWrites: false,

			RetentionTTL:  24 * time.Hour,
			SweepInterval: 5 * time.Minute,
		},
		Detection: DetectionConfig{
			Preset:          detection.PresetDefault,
			KnownOperators:  []string{},
			AggregateWindow: detection.DefaultWindow,
		},
		Ingest: IngestConfig{
			BufferSize:          1024,
			Workers:             4,
			AggregatesPerMinute: 12,
		},
		Notify: NotifyConfig{
			URL:           "",
			MinSeverity:   string(taxonomy.ThreatHigh),
			RatePerMinute: 30,
			Timeout:       10 * time.Second,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate rejects configurations that cannot work before any component
// is started.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d outside 1-65535", c.Server.Port)
	}
	if c.Server.Timeout <= 0 {
		return fmt.Errorf("server.timeout must be positive")
	}
	if !c.Store.InMemory && c.Store.Path == "" {
		return fmt.Errorf("store.path is required unless store.in_memory is set")
	}
	if c.Store.RetentionTTL <= 0 || c.Store.SweepInterval <= 0 {
		return fmt.Errorf("store.retention_ttl and store.sweep_interval must be positive")
	}

	if _, err := detection.PresetThresholds(c.Detection.Preset); err != nil {
		return fmt.Errorf("detection.preset: %w", err)
	}
	if c.Detection.AggregateWindow <= 0 {
		return fmt.Errorf("detection.aggregate_window must be positive")
	}

	if c.Ingest.BufferSize < 1 {
		return fmt.Errorf("ingest.buffer_size must be at least 1")
	}
	if c.Ingest.Workers < 1 {
		return fmt.Errorf("ingest.workers must be at least 1")
	}
	if c.Ingest.AggregatesPerMinute < 1 {
		return fmt.Errorf("ingest.aggregates_per_minute must be at least 1")
	}

	if c.Notify.MinSeverity != "" {
		if taxonomy.ThreatLevel(c.Notify.MinSeverity).Rank() == 0 {
			return fmt.Errorf("notify.min_severity %q is not a threat level", c.Notify.MinSeverity)
		}
	}
	if c.Notify.RatePerMinute < 0 {
		return fmt.Errorf("notify.rate_per_minute must not be negative")
	}

	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format %q (want json or console)", c.Logging.Format)
	}

	return nil
}
