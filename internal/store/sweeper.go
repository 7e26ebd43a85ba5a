// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package store

import (
	"context"
	"time"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/metrics"
)

// Sweeper periodically retires detections older than the retention TTL
// and runs Badger value-log GC. It implements suture.Service.
type Sweeper struct {
	store    DetectionStore
	gc       interface{ RunGC() error }
	ttl      time.Duration
	interval time.Duration
	name     string
}

// NewSweeper creates a liveness sweeper. Detections older than ttl are
// marked inactive every interval.
func NewSweeper(s DetectionStore, ttl, interval time.Duration) *Sweeper {
	sw := &Sweeper{
		store:    s,
		ttl:      ttl,
		interval: interval,
		name:     "detection-sweeper",
	}
	if gc, ok := s.(interface{ RunGC() error }); ok {
		sw.gc = gc
	}
	return sw
}

// Serve implements suture.Service: sweep on the configured cadence
// until the context is canceled.
func (s *Sweeper) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			s.sweep(ctx)
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	cutoff := time.Now().Add(-s.ttl)
	retired, err := s.store.MarkInactiveBefore(ctx, cutoff)
	if err != nil {
		logging.Error().Err(err).Msg("Detection sweep failed")
		return
	}
	if retired > 0 {
		metrics.RecordDetectionsRetired(retired)
		logging.Debug().Int("retired", retired).Time("cutoff", cutoff).
			Msg("Detections retired by liveness sweep")
	}
	if s.gc != nil {
		if err := s.gc.RunGC(); err != nil {
			logging.Warn().Err(err).Msg("Badger value-log GC failed")
		}
	}
}

// String implements fmt.Stringer for supervisor logs.
func (s *Sweeper) String() string {
	return s.name
}
