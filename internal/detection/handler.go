// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kestrelsec/kestrel/internal/scoring"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// Persistence evidence breakpoints shared by every handler.
const (
	persistenceMinSightings = 3
	persistenceMinElapsed   = 5 * time.Minute
	briefMaxElapsed         = 30 * time.Second
)

// handlerCore holds the state every protocol handler shares: threshold
// configuration, the monitoring flag, and the pushed location. All
// access goes through its mutex-protected methods so concrete handlers
// only need their own lock for protocol-specific state.
//
// It intentionally does not implement Analyze or the capability
// declarations; those are the protocol-specific half of the contract.
type handlerCore struct {
	mu         sync.RWMutex
	thresholds Thresholds
	monitoring bool
	lat, lon   float64
}

func newHandlerCore() handlerCore {
	return handlerCore{thresholds: DefaultThresholds()}
}

// Thresholds returns the current threshold configuration.
func (h *handlerCore) Thresholds() Thresholds {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.thresholds
}

// SetThresholds validates and applies a new threshold configuration.
func (h *handlerCore) SetThresholds(t Thresholds) error {
	if err := t.Validate(); err != nil {
		return err
	}
	h.mu.Lock()
	h.thresholds = t
	h.mu.Unlock()
	return nil
}

// StartMonitoring marks the handler active. Idempotent.
func (h *handlerCore) StartMonitoring() {
	h.mu.Lock()
	h.monitoring = true
	h.mu.Unlock()
}

// StopMonitoring marks the handler inert. Idempotent and safe to call
// concurrently with an in-flight Analyze: the running call completes,
// subsequent calls return nothing.
func (h *handlerCore) StopMonitoring() {
	h.mu.Lock()
	h.monitoring = false
	h.mu.Unlock()
}

// UpdateLocation pushes the current position into the handler.
func (h *handlerCore) UpdateLocation(lat, lon float64) {
	h.mu.Lock()
	h.lat, h.lon = lat, lon
	h.mu.Unlock()
}

// snapshot returns the monitoring flag, thresholds and location in one
// consistent read.
func (h *handlerCore) snapshot() (bool, Thresholds, float64, float64) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.monitoring, h.thresholds, h.lat, h.lon
}

// Close makes the handler permanently inert.
func (h *handlerCore) Close() error {
	h.StopMonitoring()
	return nil
}

// gate applies the configured minimum-confidence / minimum-score gate to
// a scored result.
func gate(t Thresholds, result scoring.Result) bool {
	if result.Score < t.MinScore {
		return false
	}
	if result.Confidence < t.MinConfidence && !t.ReportLowConfidence {
		return false
	}
	return true
}

// persistenceFactors derives the repetition/duration evidence factors
// from sighting history: three sightings or five minutes of presence
// count as persistent, a single sighting under thirty seconds counts as
// brief.
func persistenceFactors(sightings int, firstSeen, now time.Time) []taxonomy.ConfidenceFactor {
	elapsed := now.Sub(firstSeen)
	if firstSeen.IsZero() {
		elapsed = 0
	}

	switch {
	case sightings >= persistenceMinSightings || elapsed >= persistenceMinElapsed:
		return []taxonomy.ConfidenceFactor{taxonomy.FactorPersistence}
	case sightings <= 1 && elapsed < briefMaxElapsed:
		return []taxonomy.ConfidenceFactor{taxonomy.FactorBriefDetection}
	default:
		return nil
	}
}

// newDetection assembles a Detection from a scored result and the
// observation metadata. When the observation carries no fix the
// handler's pushed location is used instead.
func newDetection(
	protocol taxonomy.Protocol,
	method taxonomy.DetectionMethod,
	kind taxonomy.DeviceKind,
	identity string,
	ts time.Time,
	obsLat, obsLon float64,
	handlerLat, handlerLon float64,
	rssi int,
	detail string,
	result scoring.Result,
) *Detection {
	lat, lon := obsLat, obsLon
	if IsUnknownLocation(lat, lon) {
		lat, lon = handlerLat, handlerLon
	}

	if ts.IsZero() {
		ts = time.Now()
	}

	return &Detection{
		ID:        uuid.New().String(),
		Timestamp: ts,
		Kind:      kind,
		Protocol:  protocol,
		Method:    method,
		Identity:  identity,
		Latitude:  lat,
		Longitude: lon,
		RSSI:      rssi,
		Score:     result.Score,
		Severity:  result.Severity,
		Factors:   result.Factors,
		Detail:    detail,
		Reasoning: result.Reasoning,
		Active:    true,
	}
}
