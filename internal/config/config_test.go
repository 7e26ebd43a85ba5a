// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/kestrelsec/kestrel/internal/detection"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := loadFrom("")
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}

	if cfg.Server.Port != 8420 {
		t.Errorf("Server.Port = %d, want 8420", cfg.Server.Port)
	}
	if cfg.Store.Path != "/data/kestrel" {
		t.Errorf("Store.Path = %q", cfg.Store.Path)
	}
	if cfg.Detection.Preset != detection.PresetDefault {
		t.Errorf("Detection.Preset = %q", cfg.Detection.Preset)
	}
	if cfg.Detection.AggregateWindow != detection.DefaultWindow {
		t.Errorf("Detection.AggregateWindow = %v", cfg.Detection.AggregateWindow)
	}
	if cfg.Ingest.Workers != 4 {
		t.Errorf("Ingest.Workers = %d, want 4", cfg.Ingest.Workers)
	}
	if cfg.Notify.MinSeverity != "high" {
		t.Errorf("Notify.MinSeverity = %q, want high", cfg.Notify.MinSeverity)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoadYAMLOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	yaml := strings.Join([]string{
		"server:",
		"  port: 9000",
		"  cors_origins:",
		"    - https://dash.example.org",
		"store:",
		"  path: /tmp/kestrel-test",
		"  retention_ttl: 1h",
		"detection:",
		"  preset: high-sensitivity",
		"  known_operators:",
		"    - \"310-410\"",
		"    - \"311-480\"",
	}, "\n")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatal(err)
	}

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}

	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if len(cfg.Server.CORSOrigins) != 1 || cfg.Server.CORSOrigins[0] != "https://dash.example.org" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Store.RetentionTTL != time.Hour {
		t.Errorf("Store.RetentionTTL = %v, want 1h", cfg.Store.RetentionTTL)
	}
	if cfg.Detection.Preset != detection.PresetHighSensitivity {
		t.Errorf("Detection.Preset = %q", cfg.Detection.Preset)
	}
	if len(cfg.Detection.KnownOperators) != 2 {
		t.Errorf("Detection.KnownOperators = %v", cfg.Detection.KnownOperators)
	}
	// Untouched sections keep their defaults.
	if cfg.Ingest.BufferSize != 1024 {
		t.Errorf("Ingest.BufferSize = %d, want default 1024", cfg.Ingest.BufferSize)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "kestrel.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatal(err)
	}

	t.Setenv("KESTREL_HTTP_PORT", "9100")
	t.Setenv("KESTREL_DETECTION_PRESET", "low-sensitivity")
	t.Setenv("KESTREL_CORS_ORIGINS", "https://a.example.org, https://b.example.org")
	t.Setenv("KESTREL_WEBHOOK_URL", "https://hooks.example.org/kestrel")
	t.Setenv("KESTREL_STORE_SWEEP_INTERVAL", "90s")

	cfg, err := loadFrom(path)
	if err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}

	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want env override 9100", cfg.Server.Port)
	}
	if cfg.Detection.Preset != detection.PresetLowSensitivity {
		t.Errorf("Detection.Preset = %q", cfg.Detection.Preset)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[1] != "https://b.example.org" {
		t.Errorf("Server.CORSOrigins = %v", cfg.Server.CORSOrigins)
	}
	if cfg.Notify.URL != "https://hooks.example.org/kestrel" {
		t.Errorf("Notify.URL = %q", cfg.Notify.URL)
	}
	if cfg.Store.SweepInterval != 90*time.Second {
		t.Errorf("Store.SweepInterval = %v, want 90s", cfg.Store.SweepInterval)
	}
}

func TestUnmappedEnvVarsIgnored(t *testing.T) {
	t.Setenv("KESTREL_NO_SUCH_KNOB", "true")

	if _, err := loadFrom(""); err != nil {
		t.Fatalf("loadFrom() error = %v", err)
	}
}

func TestValidateRejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantSub string
	}{
		{
			name:    "port out of range",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantSub: "server.port",
		},
		{
			name: "missing store path",
			mutate: func(c *Config) {
				c.Store.Path = ""
				c.Store.InMemory = false
			},
			wantSub: "store.path",
		},
		{
			name:    "unknown preset",
			mutate:  func(c *Config) { c.Detection.Preset = "paranoid" },
			wantSub: "detection.preset",
		},
		{
			name:    "negative aggregate window",
			mutate:  func(c *Config) { c.Detection.AggregateWindow = -time.Minute },
			wantSub: "aggregate_window",
		},
		{
			name:    "zero workers",
			mutate:  func(c *Config) { c.Ingest.Workers = 0 },
			wantSub: "ingest.workers",
		},
		{
			name:    "bad severity",
			mutate:  func(c *Config) { c.Notify.MinSeverity = "apocalyptic" },
			wantSub: "notify.min_severity",
		},
		{
			name:    "bad log format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantSub: "logging.format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantSub) {
				t.Fatalf("Validate() = %v, want mention of %s", err, tt.wantSub)
			}
		})
	}
}

func TestValidateInMemoryNeedsNoPath(t *testing.T) {
	cfg := defaultConfig()
	cfg.Store.Path = ""
	cfg.Store.InMemory = true

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}
}
