// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package main is the entry point for the kestrel daemon.
//
// Kestrel watches the local radio environment for surveillance devices.
// Probes feed observations (WiFi, BLE, cellular, GNSS, ultrasonic, RF)
// into the ingest pipeline, which dispatches them to protocol handlers,
// scores the threats, persists detections, and aggregates them into
// incidents.
//
// # Application Architecture
//
// The daemon initializes components in the following order:
//
//  1. Configuration: layered load from defaults, YAML file, and
//     KESTREL_* environment variables (Koanf v2)
//  2. Detection store: BadgerDB-backed detection persistence
//  3. Handler registry: one handler per protocol, thresholds applied
//     from the configured preset
//  4. WebSocket hub: real-time detection streaming to clients
//  5. Webhook notifier (optional): alert delivery with circuit breaker
//  6. Ingest pipeline: observation queue and analysis worker pool
//  7. HTTP server: REST API and Prometheus metrics
//
// All long-running components run under a suture supervisor tree with
// three layers (storage, analysis, api) for failure isolation.
//
// # Signal Handling
//
// The daemon shuts down gracefully on SIGINT and SIGTERM: the HTTP
// server drains in-flight requests, the pipeline finishes queued
// observations, and the store is closed last.
//
// # Example Usage
//
// In-memory store for development:
//
//	export KESTREL_STORE_IN_MEMORY=true
//	export KESTREL_LOG_FORMAT=console
//	./kestreld
//
// Production with persistent store and webhook alerts:
//
//	export KESTREL_STORE_PATH=/data/kestrel
//	export KESTREL_WEBHOOK_URL=https://alerts.example.com/hook
//	export KESTREL_MIN_SEVERITY=high
//	./kestreld
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kestrelsec/kestrel/internal/api"
	"github.com/kestrelsec/kestrel/internal/config"
	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/ingest"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/notify"
	"github.com/kestrelsec/kestrel/internal/store"
	"github.com/kestrelsec/kestrel/internal/supervisor"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
	ws "github.com/kestrelsec/kestrel/internal/websocket"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().
		Str("store_path", cfg.Store.Path).
		Bool("in_memory", cfg.Store.InMemory).
		Str("preset", cfg.Detection.Preset).
		Msg("Starting kestrel")

	st, err := store.Open(store.Config{
		Path:       cfg.Store.Path,
		InMemory:   cfg.Store.InMemory,
		SyncWrites: cfg.Store.SyncWrites,
	})
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open detection store")
	}
	defer func() {
		if err := st.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing detection store")
		}
	}()

	registry, err := buildRegistry(cfg)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build handler registry")
	}
	defer func() {
		if err := registry.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing handler registry")
		}
	}()

	if cfg.Server.Latitude != 0.0 || cfg.Server.Longitude != 0.0 {
		registry.UpdateLocation(cfg.Server.Latitude, cfg.Server.Longitude)
		logging.Info().
			Float64("latitude", cfg.Server.Latitude).
			Float64("longitude", cfg.Server.Longitude).
			Msg("Sensor location configured")
	} else {
		logging.Info().Msg("No sensor location configured, incidents cluster on time alone")
	}

	registry.StartAll()
	logging.Info().Int("handlers", len(registry.Handlers())).Msg("Protocol handlers started")

	var notifier notify.Notifier
	if cfg.Notify.URL != "" {
		notifier = notify.NewWebhookNotifier(notify.Config{
			URL:           cfg.Notify.URL,
			MinSeverity:   taxonomy.ThreatLevel(cfg.Notify.MinSeverity),
			RatePerMinute: cfg.Notify.RatePerMinute,
			Timeout:       cfg.Notify.Timeout,
		})
		logging.Info().Str("url", cfg.Notify.URL).Str("min_severity", cfg.Notify.MinSeverity).Msg("Webhook notifier enabled")
	} else {
		logging.Info().Msg("Webhook notifications disabled (KESTREL_WEBHOOK_URL not set)")
	}

	hub := ws.NewHub()

	pipeline, err := ingest.NewPipeline(ingest.Config{
		BufferSize:          cfg.Ingest.BufferSize,
		Workers:             cfg.Ingest.Workers,
		AggregateWindow:     cfg.Detection.AggregateWindow,
		AggregatesPerMinute: cfg.Ingest.AggregatesPerMinute,
	}, registry, st, hub, notifier)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to build ingest pipeline")
	}
	defer pipeline.Close()

	apiServer := api.NewServer(st, registry, hub, api.Config{
		CORSOrigins:       cfg.Server.CORSOrigins,
		RateLimitRequests: cfg.Server.RateLimitRequests,
		RateLimitWindow:   cfg.Server.RateLimitWindow,
		RateLimitDisabled: cfg.Server.RateLimitDisabled,
	})

	httpServer := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      apiServer.Routes(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
		IdleTimeout:  60 * time.Second,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddStorageService(store.NewSweeper(st, cfg.Store.RetentionTTL, cfg.Store.SweepInterval))
	tree.AddAnalysisService(hub)
	tree.AddAnalysisService(pipeline)
	tree.AddAPIService(supervisor.NewHTTPServerService(httpServer, 10*time.Second))
	logging.Info().Str("addr", httpServer.Addr).Msg("HTTP server service added")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	registry.StopAll()
	logging.Info().Msg("Kestrel stopped gracefully")
}

// buildRegistry creates the handler registry with every protocol
// handler registered and the configured threshold preset applied.
func buildRegistry(cfg *config.Config) (*detection.Registry, error) {
	registry := detection.NewRegistry()

	handlers := []detection.Handler{
		detection.NewWiFiHandler(),
		detection.NewBLEHandler(),
		detection.NewCellularHandler(cfg.Detection.KnownOperators),
		detection.NewGNSSHandler(),
		detection.NewUltrasonicHandler(),
		detection.NewRFHandler(),
	}
	for _, h := range handlers {
		if err := registry.Register(h); err != nil {
			return nil, fmt.Errorf("registering %s handler: %w", h.Protocol(), err)
		}
	}

	if cfg.Detection.Preset != "" {
		th, err := detection.PresetThresholds(cfg.Detection.Preset)
		if err != nil {
			return nil, fmt.Errorf("resolving threshold preset: %w", err)
		}
		for _, h := range handlers {
			if err := h.SetThresholds(th); err != nil {
				return nil, fmt.Errorf("applying %q thresholds to %s: %w", cfg.Detection.Preset, h.Protocol(), err)
			}
		}
	}

	return registry, nil
}
