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

// RFObservation is one reading from the external wideband probe.
type RFObservation struct {
	Timestamp time.Time `json:"timestamp"`

	FrequencyHz uint64 `json:"frequency_hz"`
	RSSI        int    `json:"rssi"`

	// SignatureName is set when the probe's decoder recognized the
	// transmission (e.g. a known tracker beacon or replay protocol).
	SignatureName string              `json:"signature_name,omitempty"`
	SignatureKind taxonomy.DeviceKind `json:"signature_kind,omitempty"`

	// BurstCount and BandwidthHz characterize unidentified activity.
	BurstCount  int    `json:"burst_count"`
	BandwidthHz uint64 `json:"bandwidth_hz"`

	SightingCount int       `json:"sighting_count"`
	FirstSeen     time.Time `json:"first_seen"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Protocol implements Observation.
func (o *RFObservation) Protocol() taxonomy.Protocol { return taxonomy.ProtocolRF }

// ObservedAt implements Observation.
func (o *RFObservation) ObservedAt() time.Time { return o.Timestamp }

// jammerBandwidthHz: sustained energy wider than this is barrage
// jamming, not a data transmission.
const jammerBandwidthHz = 5_000_000

// persistentBurstCount marks repeated unidentified bursts on one
// frequency as a covert transmitter.
const persistentBurstCount = 5

// RF base-likelihood catalog.
const (
	likelihoodRFSignature = 70
	likelihoodRFJammer    = 60
	likelihoodRFBursts    = 55
)

// RFHandler scores transmissions seen by the external wideband probe:
// decoder signature hits, barrage jammers, and persistent unidentified
// bursts.
type RFHandler struct {
	handlerCore
}

// NewRFHandler creates an RF handler with default thresholds.
func NewRFHandler() *RFHandler {
	return &RFHandler{handlerCore: newHandlerCore()}
}

// Protocol implements Handler.
func (h *RFHandler) Protocol() taxonomy.Protocol { return taxonomy.ProtocolRF }

// SupportedDeviceKinds implements Handler.
func (h *RFHandler) SupportedDeviceKinds() []taxonomy.DeviceKind {
	return []taxonomy.DeviceKind{
		taxonomy.KindBugTransmitter,
		taxonomy.KindRFJammer,
		taxonomy.KindSubGHzReplayDevice,
		taxonomy.KindKeyFobCloner,
		taxonomy.KindWidebandTransmitter,
		taxonomy.KindTPMSSniffer,
	}
}

// SupportedMethods implements Handler.
func (h *RFHandler) SupportedMethods() []taxonomy.DetectionMethod {
	return []taxonomy.DetectionMethod{
		taxonomy.MethodRFSignature,
		taxonomy.MethodRFAnomaly,
	}
}

// Analyze implements Handler.
func (h *RFHandler) Analyze(_ context.Context, obs Observation) (*Detection, error) {
	monitoring, thresholds, lat, lon := h.snapshot()
	if !monitoring {
		return nil, nil
	}

	rf, ok := obs.(*RFObservation)
	if !ok {
		return nil, fmt.Errorf("rf handler: unexpected observation type %T", obs)
	}
	if !validRSSI(rf.RSSI) || rf.FrequencyHz == 0 {
		return nil, nil
	}
	if rf.RSSI != RSSIUnknown && rf.RSSI < thresholds.MinRSSI {
		return nil, nil
	}
	if rf.SightingCount < thresholds.MinSightings {
		return nil, nil
	}

	var (
		method     taxonomy.DetectionMethod
		kind       taxonomy.DeviceKind
		likelihood int
		quality    taxonomy.MatchQuality
		factors    []taxonomy.ConfidenceFactor
		detail     string
	)

	switch {
	case rf.SignatureName != "" && rf.SignatureKind != "":
		method = taxonomy.MethodRFSignature
		kind = rf.SignatureKind
		likelihood = likelihoodRFSignature
		quality = taxonomy.MatchExact
		factors = append(factors, taxonomy.FactorKnownSignature)
		detail = fmt.Sprintf("decoder matched %q at %.3f MHz",
			rf.SignatureName, float64(rf.FrequencyHz)/1e6)

	case rf.BandwidthHz >= jammerBandwidthHz:
		method = taxonomy.MethodRFAnomaly
		kind = taxonomy.KindRFJammer
		likelihood = likelihoodRFJammer
		quality = taxonomy.MatchStrong
		detail = fmt.Sprintf("barrage energy %.1f MHz wide at %.3f MHz",
			float64(rf.BandwidthHz)/1e6, float64(rf.FrequencyHz)/1e6)

	case rf.BurstCount >= persistentBurstCount:
		method = taxonomy.MethodRFAnomaly
		kind = taxonomy.KindBugTransmitter
		likelihood = likelihoodRFBursts
		quality = taxonomy.MatchHeuristic
		detail = fmt.Sprintf("%d unidentified bursts at %.3f MHz",
			rf.BurstCount, float64(rf.FrequencyHz)/1e6)

	default:
		return nil, nil
	}

	if f, applies := taxonomy.SignalFactor(rf.RSSI); applies && rf.RSSI != RSSIUnknown {
		factors = append(factors, f)
	}
	now := rf.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	factors = append(factors, persistenceFactors(rf.SightingCount, rf.FirstSeen, now)...)

	result := scoring.Score(scoring.Input{
		BaseLikelihood: likelihood,
		Kind:           kind,
		Quality:        quality,
		Factors:        factors,
	})
	if !gate(thresholds, result) {
		return nil, nil
	}

	identity := fmt.Sprintf("%d", rf.FrequencyHz)
	return newDetection(
		taxonomy.ProtocolRF, method, kind, identity,
		rf.Timestamp, rf.Latitude, rf.Longitude, lat, lon,
		rf.RSSI, detail, result,
	), nil
}
