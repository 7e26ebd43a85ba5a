// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Thresholds is the per-handler configuration record. It is the only
// configuration surface the core exposes; every default is reachable
// through one of the named presets, nothing is baked unreachably into
// algorithm code.
type Thresholds struct {
	// MinRSSI is the weakest signal (dBm) still considered. Readings
	// below it are ignored outright.
	MinRSSI int `json:"min_rssi" validate:"gte=-120,lte=0"`

	// MinConfidence suppresses results whose evidentiary confidence
	// falls below it, unless ReportLowConfidence is set.
	MinConfidence float64 `json:"min_confidence" validate:"gte=0,lte=1"`

	// MinScore suppresses results scoring below it.
	MinScore int `json:"min_score" validate:"gte=0,lte=100"`

	// CacheTTL bounds how long a handler may reuse a previously computed
	// result for the same identity.
	CacheTTL time.Duration `json:"cache_ttl" validate:"gte=0"`

	// MinSightings is the number of repeat sightings required before a
	// device is reported at all.
	MinSightings int `json:"min_sightings" validate:"gte=1,lte=100"`

	// ReportLowConfidence reports results below MinConfidence instead of
	// suppressing them. Useful in high-sensitivity sweeps.
	ReportLowConfidence bool `json:"report_low_confidence"`
}

// Preset names accepted by PresetThresholds and the configuration
// surface.
const (
	PresetDefault         = "default"
	PresetHighSensitivity = "high-sensitivity"
	PresetLowSensitivity  = "low-sensitivity"
)

// DefaultThresholds returns the balanced default profile.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinRSSI:             -90,
		MinConfidence:       0.3,
		MinScore:            20,
		CacheTTL:            5 * time.Minute,
		MinSightings:        1,
		ReportLowConfidence: false,
	}
}

// HighSensitivityThresholds casts a wider net at the cost of more false
// positives.
func HighSensitivityThresholds() Thresholds {
	return Thresholds{
		MinRSSI:             -100,
		MinConfidence:       0.15,
		MinScore:            10,
		CacheTTL:            2 * time.Minute,
		MinSightings:        1,
		ReportLowConfidence: true,
	}
}

// LowSensitivityThresholds narrows the net for fewer false positives.
func LowSensitivityThresholds() Thresholds {
	return Thresholds{
		MinRSSI:             -75,
		MinConfidence:       0.5,
		MinScore:            40,
		CacheTTL:            10 * time.Minute,
		MinSightings:        2,
		ReportLowConfidence: false,
	}
}

// PresetThresholds resolves a preset name to its threshold profile.
func PresetThresholds(name string) (Thresholds, error) {
	switch name {
	case PresetDefault, "":
		return DefaultThresholds(), nil
	case PresetHighSensitivity:
		return HighSensitivityThresholds(), nil
	case PresetLowSensitivity:
		return LowSensitivityThresholds(), nil
	default:
		return Thresholds{}, fmt.Errorf("unknown threshold preset %q (want %s, %s or %s)",
			name, PresetDefault, PresetHighSensitivity, PresetLowSensitivity)
	}
}

var validate = validator.New()

// Validate rejects self-contradictory threshold values with a
// descriptive error. It is called at configuration time, before the
// values are applied to a handler.
func (t Thresholds) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("invalid thresholds: %w", err)
	}
	return nil
}
