// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in
// priority order. The first file found wins.
var DefaultConfigPaths = []string{
	"kestrel.yaml",
	"kestrel.yml",
	"/etc/kestrel/kestrel.yaml",
	"/etc/kestrel/kestrel.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "KESTREL_CONFIG"

// envPrefix namespaces the environment variable layer.
const envPrefix = "KESTREL_"

// Load builds the configuration from layered sources:
//  1. Built-in defaults
//  2. Optional YAML config file
//  3. KESTREL_-prefixed environment variables (highest priority)
func Load() (*Config, error) {
	return loadFrom(findConfigFile())
}

// loadFrom is Load with an explicit config file path, for tests.
func loadFrom(configPath string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("loading defaults: %w", err)
	}

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", configPath, err)
		}
	}

	envProvider := env.Provider(envPrefix, ".", envTransformFunc)
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("loading environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("processing slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile returns the first existing config file path, or empty.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}

	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return ""
}

// sliceConfigPaths lists the config paths parsed as comma-separated
// slices when set through the environment.
var sliceConfigPaths = []string{
	"server.cors_origins",
	"detection.known_operators",
}

// processSliceFields converts comma-separated env strings into slices
// for the known slice fields. YAML-sourced slices pass through as-is.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}

		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}

		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("setting %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps KESTREL_-prefixed environment variable names to
// config paths. Unmapped variables are dropped so unrelated environment
// noise cannot pollute the configuration.
//
// Examples:
//   - KESTREL_HTTP_PORT -> server.port
//   - KESTREL_STORE_PATH -> store.path
//   - KESTREL_DETECTION_PRESET -> detection.preset
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))

	envMappings := map[string]string{
		// Server mappings
		"http_host":           "server.host",
		"http_port":           "server.port",
		"http_timeout":        "server.timeout",
		"cors_origins":        "server.cors_origins",
		"rate_limit_requests": "server.rate_limit_requests",
		"rate_limit_window":   "server.rate_limit_window",
		"disable_rate_limit":  "server.rate_limit_disabled",
		"latitude":            "server.latitude",
		"longitude":           "server.longitude",

		// Store mappings
		"store_path":           "store.path",
		"store_in_memory":      "store.in_memory",
		"store_sync_writes":    "store.sync_writes",
		"store_retention_ttl":  "store.retention_ttl",
		"store_sweep_interval": "store.sweep_interval",

		// Detection mappings
		"detection_preset": "detection.preset",
		"known_operators":  "detection.known_operators",
		"aggregate_window": "detection.aggregate_window",

		// Ingest mappings
		"ingest_buffer_size":    "ingest.buffer_size",
		"ingest_workers":        "ingest.workers",
		"aggregates_per_minute": "ingest.aggregates_per_minute",

		// Notify mappings
		"webhook_url":             "notify.url",
		"webhook_min_severity":    "notify.min_severity",
		"webhook_rate_per_minute": "notify.rate_per_minute",
		"webhook_timeout":         "notify.timeout",

		// Logging mappings
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
