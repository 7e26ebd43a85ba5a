// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package supervisor

import (
	"context"
	"log/slog"
	"time"

	"github.com/thejerf/suture/v4"
	"github.com/thejerf/sutureslog"
)

// TreeConfig holds supervisor tree configuration.
type TreeConfig struct {
	// FailureThreshold is the number of failures before entering backoff.
	// Default: 5
	FailureThreshold float64

	// FailureDecay is the rate at which failures decay in seconds.
	// Default: 30
	FailureDecay float64

	// FailureBackoff is the duration to wait when the threshold is
	// exceeded. Default: 15s
	FailureBackoff time.Duration

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	// Default: 10s
	ShutdownTimeout time.Duration
}

// DefaultTreeConfig returns suture's built-in defaults.
func DefaultTreeConfig() TreeConfig {
	return TreeConfig{
		FailureThreshold: 5.0,
		FailureDecay:     30.0,
		FailureBackoff:   15 * time.Second,
		ShutdownTimeout:  10 * time.Second,
	}
}

// Tree manages the supervisor hierarchy for the kestrel daemon.
//
// The tree has three layers:
//   - storage: detection store sweeper
//   - analysis: ingest pipeline, WebSocket hub
//   - api: HTTP server
//
// The layering isolates failures: a crash in the analysis layer does
// not take down the API layer, which keeps serving stored detections.
type Tree struct {
	root     *suture.Supervisor
	storage  *suture.Supervisor
	analysis *suture.Supervisor
	api      *suture.Supervisor
	config   TreeConfig
}

// NewTree creates a supervisor tree with the given configuration.
// Zero-valued config fields fall back to DefaultTreeConfig.
func NewTree(logger *slog.Logger, config TreeConfig) *Tree {
	def := DefaultTreeConfig()
	if config.FailureThreshold == 0 {
		config.FailureThreshold = def.FailureThreshold
	}
	if config.FailureDecay == 0 {
		config.FailureDecay = def.FailureDecay
	}
	if config.FailureBackoff == 0 {
		config.FailureBackoff = def.FailureBackoff
	}
	if config.ShutdownTimeout == 0 {
		config.ShutdownTimeout = def.ShutdownTimeout
	}

	handler := &sutureslog.Handler{Logger: logger}

	rootSpec := suture.Spec{
		EventHook:        handler.MustHook(),
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	// Child supervisors inherit the EventHook from the root.
	childSpec := suture.Spec{
		FailureThreshold: config.FailureThreshold,
		FailureDecay:     config.FailureDecay,
		FailureBackoff:   config.FailureBackoff,
		Timeout:          config.ShutdownTimeout,
	}

	root := suture.New("kestrel", rootSpec)
	storage := suture.New("storage-layer", childSpec)
	analysis := suture.New("analysis-layer", childSpec)
	api := suture.New("api-layer", childSpec)

	root.Add(storage)
	root.Add(analysis)
	root.Add(api)

	return &Tree{
		root:     root,
		storage:  storage,
		analysis: analysis,
		api:      api,
		config:   config,
	}
}

// AddStorageService adds a service to the storage layer.
func (t *Tree) AddStorageService(svc suture.Service) suture.ServiceToken {
	return t.storage.Add(svc)
}

// AddAnalysisService adds a service to the analysis layer.
func (t *Tree) AddAnalysisService(svc suture.Service) suture.ServiceToken {
	return t.analysis.Add(svc)
}

// AddAPIService adds a service to the API layer.
func (t *Tree) AddAPIService(svc suture.Service) suture.ServiceToken {
	return t.api.Add(svc)
}

// Serve starts the tree and blocks until the context is canceled.
func (t *Tree) Serve(ctx context.Context) error {
	return t.root.Serve(ctx)
}

// ServeBackground starts the tree in a background goroutine and returns
// a channel that receives the terminal error when the tree stops.
func (t *Tree) ServeBackground(ctx context.Context) <-chan error {
	return t.root.ServeBackground(ctx)
}

// UnstoppedServiceReport lists services that failed to stop within the
// configured shutdown timeout.
func (t *Tree) UnstoppedServiceReport() ([]suture.UnstoppedService, error) {
	return t.root.UnstoppedServiceReport()
}
