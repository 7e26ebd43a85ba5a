// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"context"
	"math"
	"time"

	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// CoordinateEpsilon is the threshold below which a coordinate pair is
// treated as the unknown-location sentinel (0, 0). 1e-7 degrees is about
// 1.1 cm at the equator, well below GPS accuracy, while avoiding direct
// float equality.
const CoordinateEpsilon = 1e-7

// IsUnknownLocation reports whether the coordinates are the (0, 0)
// sentinel meaning "no fix available".
func IsUnknownLocation(lat, lon float64) bool {
	return math.Abs(lat) < CoordinateEpsilon && math.Abs(lon) < CoordinateEpsilon
}

// HasLocation is the inverse of IsUnknownLocation, for readability.
func HasLocation(lat, lon float64) bool {
	return !IsUnknownLocation(lat, lon)
}

// RSSIUnknown is the sentinel for "no signal-strength reading".
// 0 dBm is not a plausible over-the-air reading for any supported
// protocol, so it doubles as the zero value.
const RSSIUnknown = 0

// Detection is one scored observation of a possible surveillance device.
type Detection struct {
	ID        string                      `json:"id"`
	Timestamp time.Time                   `json:"timestamp"`
	Kind      taxonomy.DeviceKind         `json:"device_kind"`
	Protocol  taxonomy.Protocol           `json:"protocol"`
	Method    taxonomy.DetectionMethod    `json:"method"`
	// Identity is the protocol-level device identity when one exists:
	// BSSID for WiFi, advertising MAC for BLE, cell id for cellular.
	Identity  string                      `json:"identity,omitempty"`
	Latitude  float64                     `json:"latitude,omitempty"`
	Longitude float64                     `json:"longitude,omitempty"`
	RSSI      int                         `json:"rssi,omitempty"`
	Score     int                         `json:"score"`
	Severity  taxonomy.ThreatLevel        `json:"severity"`
	Factors   []taxonomy.ConfidenceFactor `json:"factors,omitempty"`
	Detail    string                      `json:"detail,omitempty"`
	Reasoning string                      `json:"reasoning"`
	// Active is an advisory liveness flag. It starts true and is cleared
	// by the liveness sweep once the observation has aged out; the core
	// never deletes detections.
	Active bool `json:"active"`
}

// Observation is the protocol-agnostic view of one sensor reading.
// Concrete observation types live next to their handlers.
type Observation interface {
	// Protocol identifies which handler understands this observation.
	Protocol() taxonomy.Protocol

	// ObservedAt returns the sensor timestamp of the reading.
	ObservedAt() time.Time
}

// Handler is the per-protocol detection contract. Implementations are
// safe for concurrent use; Analyze may be called while monitoring is
// being stopped.
type Handler interface {
	// Protocol returns the sensing protocol this handler owns.
	Protocol() taxonomy.Protocol

	// SupportedDeviceKinds declares the device kinds this handler can
	// produce. Used by the registry for kind-based routing.
	SupportedDeviceKinds() []taxonomy.DeviceKind

	// SupportedMethods declares the detection methods this handler owns.
	// Subsets are disjoint across handlers.
	SupportedMethods() []taxonomy.DetectionMethod

	// Analyze pattern-matches one observation and returns a scored
	// Detection, or (nil, nil) when nothing clears the thresholds.
	// Malformed observations are rejected the same way; they never
	// abort the handler.
	Analyze(ctx context.Context, obs Observation) (*Detection, error)

	// Thresholds returns the current threshold configuration.
	Thresholds() Thresholds

	// SetThresholds replaces the threshold configuration. Contradictory
	// values are rejected with a descriptive error before being applied.
	SetThresholds(Thresholds) error

	// StartMonitoring and StopMonitoring toggle the monitoring
	// lifecycle. Both are idempotent; StopMonitoring is safe to call
	// concurrently with an in-flight Analyze and leaves the handler
	// inert until restarted.
	StartMonitoring()
	StopMonitoring()

	// UpdateLocation pushes the current position into the handler so
	// subsequently produced detections can carry it.
	UpdateLocation(lat, lon float64)

	// Close releases per-handler state. The handler must not be used
	// afterwards.
	Close() error
}

// AggregateIncident is the combined severity view across a window of
// detections. It is derived on demand and never persisted.
type AggregateIncident struct {
	Score          int                  `json:"score"`
	Severity       taxonomy.ThreatLevel `json:"severity"`
	IncidentCount  int                  `json:"incident_count"`
	DetectionCount int                  `json:"detection_count"`
	// Top is the highest-scoring detection in the window. Ties break to
	// the earliest timestamp, then the smallest id.
	Top           *Detection          `json:"top,omitempty"`
	Protocols     []taxonomy.Protocol `json:"protocols,omitempty"`
	CrossProtocol bool                `json:"cross_protocol"`
	Recurring     bool                `json:"recurring"`
	RecentSevere  bool                `json:"recent_severe"`
	Reasoning     string              `json:"reasoning"`
	Window        time.Duration       `json:"window"`
	ComputedAt    time.Time           `json:"computed_at"`
}

// Statistics is a read-only projection of detection counts for
// dashboards.
type Statistics struct {
	Total      int                          `json:"total"`
	BySeverity map[taxonomy.ThreatLevel]int `json:"by_severity"`
	ByProtocol map[taxonomy.Protocol]int    `json:"by_protocol"`
	ByKind     map[taxonomy.DeviceKind]int  `json:"by_kind"`
}
