// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package supervisor

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

// countingService records starts and blocks until canceled.
type countingService struct {
	name   string
	starts atomic.Int64
}

func (s *countingService) Serve(ctx context.Context) error {
	s.starts.Add(1)
	<-ctx.Done()
	return ctx.Err()
}

func (s *countingService) String() string { return s.name }

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestDefaultTreeConfig(t *testing.T) {
	cfg := DefaultTreeConfig()
	if cfg.FailureThreshold != 5.0 {
		t.Errorf("FailureThreshold = %v, want 5", cfg.FailureThreshold)
	}
	if cfg.FailureDecay != 30.0 {
		t.Errorf("FailureDecay = %v, want 30", cfg.FailureDecay)
	}
	if cfg.FailureBackoff != 15*time.Second {
		t.Errorf("FailureBackoff = %v, want 15s", cfg.FailureBackoff)
	}
	if cfg.ShutdownTimeout != 10*time.Second {
		t.Errorf("ShutdownTimeout = %v, want 10s", cfg.ShutdownTimeout)
	}
}

func TestNewTreeAppliesDefaults(t *testing.T) {
	tree := NewTree(discardLogger(), TreeConfig{})
	if tree.config != DefaultTreeConfig() {
		t.Errorf("config = %+v, want defaults", tree.config)
	}
}

func TestTreeRunsServicesInAllLayers(t *testing.T) {
	tree := NewTree(discardLogger(), DefaultTreeConfig())

	storage := &countingService{name: "storage-svc"}
	analysis := &countingService{name: "analysis-svc"}
	api := &countingService{name: "api-svc"}
	tree.AddStorageService(storage)
	tree.AddAnalysisService(analysis)
	tree.AddAPIService(api)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if storage.starts.Load() > 0 && analysis.starts.Load() > 0 && api.starts.Load() > 0 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if storage.starts.Load() == 0 || analysis.starts.Load() == 0 || api.starts.Load() == 0 {
		t.Fatalf("services not started: storage=%d analysis=%d api=%d",
			storage.starts.Load(), analysis.starts.Load(), api.starts.Load())
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

func TestTreeRestartsCrashedService(t *testing.T) {
	tree := NewTree(discardLogger(), TreeConfig{
		FailureBackoff: 10 * time.Millisecond,
	})

	crasher := &crashOnceService{}
	tree.AddAnalysisService(crasher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errCh := tree.ServeBackground(ctx)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if crasher.starts.Load() >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := crasher.starts.Load(); got < 2 {
		t.Fatalf("starts = %d, want restart after crash", got)
	}

	cancel()
	select {
	case <-errCh:
	case <-time.After(5 * time.Second):
		t.Fatal("tree did not stop after cancel")
	}
}

// crashOnceService fails its first run, then blocks until canceled.
type crashOnceService struct {
	starts atomic.Int64
}

func (s *crashOnceService) Serve(ctx context.Context) error {
	if s.starts.Add(1) == 1 {
		return errSimulatedCrash
	}
	<-ctx.Done()
	return ctx.Err()
}

func (s *crashOnceService) String() string { return "crash-once" }

var errSimulatedCrash = errString("simulated crash")

type errString string

func (e errString) Error() string { return string(e) }
