// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsec/kestrel/internal/scoring"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// UltrasonicObservation is one near-ultrasonic audio analysis window.
type UltrasonicObservation struct {
	Timestamp time.Time `json:"timestamp"`

	PeakFrequencyHz float64 `json:"peak_frequency_hz"`
	AmplitudeDB     float64 `json:"amplitude_db"`
	DurationMs      int     `json:"duration_ms"`

	// Modulated is set when the energy shows an on/off keying pattern
	// rather than continuous tone, the signature of data beacons.
	Modulated bool `json:"modulated"`

	SightingCount int       `json:"sighting_count"`
	FirstSeen     time.Time `json:"first_seen"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Protocol implements Observation.
func (o *UltrasonicObservation) Protocol() taxonomy.Protocol { return taxonomy.ProtocolUltrasonic }

// ObservedAt implements Observation.
func (o *UltrasonicObservation) ObservedAt() time.Time { return o.Timestamp }

// Cross-device tracking beacons sit in the near-ultrasonic band that
// consumer speakers can emit and microphones can hear.
const (
	beaconBandLowHz  = 18000.0
	beaconBandHighHz = 20500.0

	likelihoodUltrasonicBeacon = 60
)

// UltrasonicHandler detects near-ultrasonic tracking beacons.
type UltrasonicHandler struct {
	handlerCore
}

// NewUltrasonicHandler creates an ultrasonic handler with default
// thresholds.
func NewUltrasonicHandler() *UltrasonicHandler {
	return &UltrasonicHandler{handlerCore: newHandlerCore()}
}

// Protocol implements Handler.
func (h *UltrasonicHandler) Protocol() taxonomy.Protocol { return taxonomy.ProtocolUltrasonic }

// SupportedDeviceKinds implements Handler.
func (h *UltrasonicHandler) SupportedDeviceKinds() []taxonomy.DeviceKind {
	return []taxonomy.DeviceKind{taxonomy.KindUltrasonicBeacon}
}

// SupportedMethods implements Handler.
func (h *UltrasonicHandler) SupportedMethods() []taxonomy.DetectionMethod {
	return []taxonomy.DetectionMethod{taxonomy.MethodUltrasonicBeacon}
}

// Analyze implements Handler.
func (h *UltrasonicHandler) Analyze(_ context.Context, obs Observation) (*Detection, error) {
	monitoring, thresholds, lat, lon := h.snapshot()
	if !monitoring {
		return nil, nil
	}

	audio, ok := obs.(*UltrasonicObservation)
	if !ok {
		return nil, fmt.Errorf("ultrasonic handler: unexpected observation type %T", obs)
	}
	if audio.PeakFrequencyHz < beaconBandLowHz || audio.PeakFrequencyHz > beaconBandHighHz {
		return nil, nil
	}
	if audio.SightingCount < thresholds.MinSightings {
		return nil, nil
	}

	quality := taxonomy.MatchHeuristic
	if audio.Modulated {
		quality = taxonomy.MatchStrong
	}

	now := audio.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	factors := persistenceFactors(audio.SightingCount, audio.FirstSeen, now)

	result := scoring.Score(scoring.Input{
		BaseLikelihood: likelihoodUltrasonicBeacon,
		Kind:           taxonomy.KindUltrasonicBeacon,
		Quality:        quality,
		Factors:        factors,
	})
	if !gate(thresholds, result) {
		return nil, nil
	}

	detail := fmt.Sprintf("near-ultrasonic emission at %.0f Hz for %d ms",
		audio.PeakFrequencyHz, audio.DurationMs)

	return newDetection(
		taxonomy.ProtocolUltrasonic, taxonomy.MethodUltrasonicBeacon,
		taxonomy.KindUltrasonicBeacon, "",
		audio.Timestamp, audio.Latitude, audio.Longitude, lat, lon,
		RSSIUnknown, detail, result,
	), nil
}
