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

// GNSSObservation is one receiver status snapshot. The acquisition
// layer derives FixJumpMeters/FixJumpSeconds from consecutive fixes.
type GNSSObservation struct {
	Timestamp time.Time `json:"timestamp"`

	SatCount  int     `json:"sat_count"`
	AvgCN0    float64 `json:"avg_cn0"`
	CN0StdDev float64 `json:"cn0_std_dev"`

	// FixJumpMeters and FixJumpSeconds describe the displacement from
	// the previous fix. A large jump in a short interval indicates
	// spoofing.
	FixJumpMeters  float64 `json:"fix_jump_meters,omitempty"`
	FixJumpSeconds float64 `json:"fix_jump_seconds,omitempty"`

	// AGCAnomaly is set when the receiver's automatic gain control is
	// pinned, the usual jamming signature.
	AGCAnomaly bool `json:"agc_anomaly,omitempty"`

	// MultipathLikely marks an urban-canyon context where reflections
	// can mimic spoofing; it discounts confidence rather than
	// suppressing the detection.
	MultipathLikely bool `json:"multipath_likely,omitempty"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Protocol implements Observation.
func (o *GNSSObservation) Protocol() taxonomy.Protocol { return taxonomy.ProtocolGNSS }

// ObservedAt implements Observation.
func (o *GNSSObservation) ObservedAt() time.Time { return o.Timestamp }

// Spoofing/jamming breakpoints.
const (
	// fixJumpSpeedMS: ground truth cannot move faster than this; jumps
	// above it are a spoofed solution.
	fixJumpSpeedMS = 500.0

	// uniformCN0Min and uniformCN0MaxStdDev: genuine constellations show
	// spread C/N0; a spoofer transmits every "satellite" from one
	// antenna at one power level.
	uniformCN0Min       = 45.0
	uniformCN0MaxStdDev = 2.0
)

// GNSS base-likelihood catalog.
const (
	likelihoodFixJump    = 70
	likelihoodJamming    = 65
	likelihoodCN0Anomaly = 60
)

// GNSSHandler applies spoofing and jamming heuristics to receiver
// status snapshots. GNSS has no per-emitter identity, so detections
// carry an empty identity and rely on location for correlation.
type GNSSHandler struct {
	handlerCore
}

// NewGNSSHandler creates a GNSS handler with default thresholds.
func NewGNSSHandler() *GNSSHandler {
	return &GNSSHandler{handlerCore: newHandlerCore()}
}

// Protocol implements Handler.
func (h *GNSSHandler) Protocol() taxonomy.Protocol { return taxonomy.ProtocolGNSS }

// SupportedDeviceKinds implements Handler.
func (h *GNSSHandler) SupportedDeviceKinds() []taxonomy.DeviceKind {
	return []taxonomy.DeviceKind{
		taxonomy.KindGNSSSpoofer,
		taxonomy.KindGNSSJammer,
	}
}

// SupportedMethods implements Handler.
func (h *GNSSHandler) SupportedMethods() []taxonomy.DetectionMethod {
	return []taxonomy.DetectionMethod{
		taxonomy.MethodFixDiscontinuity,
		taxonomy.MethodCN0Anomaly,
		taxonomy.MethodGNSSJamming,
	}
}

// Analyze implements Handler.
func (h *GNSSHandler) Analyze(_ context.Context, obs Observation) (*Detection, error) {
	monitoring, thresholds, lat, lon := h.snapshot()
	if !monitoring {
		return nil, nil
	}

	gnss, ok := obs.(*GNSSObservation)
	if !ok {
		return nil, fmt.Errorf("gnss handler: unexpected observation type %T", obs)
	}

	var (
		method     taxonomy.DetectionMethod
		kind       taxonomy.DeviceKind
		likelihood int
		quality    taxonomy.MatchQuality
		detail     string
	)

	switch {
	case gnss.FixJumpSeconds > 0 &&
		gnss.FixJumpMeters/gnss.FixJumpSeconds > fixJumpSpeedMS:
		method = taxonomy.MethodFixDiscontinuity
		kind = taxonomy.KindGNSSSpoofer
		likelihood = likelihoodFixJump
		quality = taxonomy.MatchStrong
		detail = fmt.Sprintf("fix jumped %.0f m in %.1f s",
			gnss.FixJumpMeters, gnss.FixJumpSeconds)

	case gnss.SatCount == 0 && gnss.AGCAnomaly:
		method = taxonomy.MethodGNSSJamming
		kind = taxonomy.KindGNSSJammer
		likelihood = likelihoodJamming
		quality = taxonomy.MatchStrong
		detail = "constellation lost with AGC pinned, broadband jamming likely"

	case gnss.SatCount > 0 && gnss.AvgCN0 >= uniformCN0Min &&
		gnss.CN0StdDev < uniformCN0MaxStdDev:
		method = taxonomy.MethodCN0Anomaly
		kind = taxonomy.KindGNSSSpoofer
		likelihood = likelihoodCN0Anomaly
		quality = taxonomy.MatchPartial
		detail = fmt.Sprintf("uniform C/N0 %.1f dB-Hz (stddev %.1f) across %d satellites",
			gnss.AvgCN0, gnss.CN0StdDev, gnss.SatCount)

	default:
		return nil, nil
	}

	var factors []taxonomy.ConfidenceFactor
	if gnss.MultipathLikely {
		factors = append(factors, taxonomy.FactorMultipathContext)
	}

	result := scoring.Score(scoring.Input{
		BaseLikelihood: likelihood,
		Kind:           kind,
		Quality:        quality,
		Factors:        factors,
	})
	if !gate(thresholds, result) {
		return nil, nil
	}

	return newDetection(
		taxonomy.ProtocolGNSS, method, kind, "",
		gnss.Timestamp, gnss.Latitude, gnss.Longitude, lat, lon,
		RSSIUnknown, detail, result,
	), nil
}
