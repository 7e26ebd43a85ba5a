// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package scoring implements the threat-scoring formula shared by every
// detection handler.
//
// The engine is a pure function over its inputs: no state, no I/O, no
// lifecycle. Handlers supply the protocol-specific base likelihood and
// the evidence factors; the engine owns impact lookup, confidence
// clamping, score clamping, severity mapping, and the human-auditable
// reasoning string.
//
//	score = base_likelihood x impact x confidence, clamped to [0, 100]
package scoring

import (
	"fmt"
	"math"
	"strings"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// Input carries everything the scoring formula needs for one observation.
type Input struct {
	// BaseLikelihood is the protocol-supplied prior in [0, 100] that this
	// detection method indicates a real threat. Values outside the range
	// are clamped.
	BaseLikelihood int

	// Kind selects the impact factor. Unknown kinds score with a neutral
	// impact of 1.0 and are logged for calibration review.
	Kind taxonomy.DeviceKind

	// Quality is the pattern match-quality tier; it contributes its own
	// confidence factor. An empty value behaves like MatchPartial.
	Quality taxonomy.MatchQuality

	// Factors are the evidence-based confidence adjustments gathered by
	// the handler (signal strength, persistence, corroboration, ...).
	Factors []taxonomy.ConfidenceFactor
}

// Result is the scored outcome. Factors lists every adjustment that
// applied, including the match-quality factor, so the gap between the
// 0.5 baseline and Confidence is fully explained.
type Result struct {
	// Raw is the unclamped product of the three multiplicands.
	Raw float64 `json:"raw"`

	// Score is Raw rounded and clamped to [0, 100].
	Score int `json:"score"`

	// Severity is derived from Score via the fixed threshold table.
	Severity taxonomy.ThreatLevel `json:"severity"`

	// Impact is the device-kind impact factor that was applied.
	Impact float64 `json:"impact"`

	// Confidence is the clamped evidentiary confidence in [0.1, 1.0].
	Confidence float64 `json:"confidence"`

	// Factors are the confidence adjustments that applied, in order.
	Factors []taxonomy.ConfidenceFactor `json:"factors"`

	// Reasoning states the three multiplicands and the named factors.
	// It is a required output for auditability, not optional logging.
	Reasoning string `json:"reasoning"`
}

// Score applies the threat-scoring formula to one observation.
func Score(in Input) Result {
	likelihood := clampInt(in.BaseLikelihood, 0, 100)

	impact, known := taxonomy.Impact(in.Kind)
	if !known {
		logging.Warn().
			Str("device_kind", in.Kind.String()).
			Msg("device kind missing from impact table, scoring with neutral impact")
	}

	factors := make([]taxonomy.ConfidenceFactor, 0, len(in.Factors)+1)
	factors = append(factors, in.Quality.Factor())
	factors = append(factors, in.Factors...)

	confidence := Confidence(factors)

	raw := float64(likelihood) * impact * confidence
	score := clampInt(int(math.Round(raw)), 0, 100)
	severity := taxonomy.FromScore(score)

	return Result{
		Raw:        raw,
		Score:      score,
		Severity:   severity,
		Impact:     impact,
		Confidence: confidence,
		Factors:    factors,
		Reasoning:  reasoning(likelihood, impact, confidence, in.Kind, raw, score, severity, factors),
	}
}

// Confidence folds a factor list into the clamped confidence value.
// The intermediate sum may go negative; that is expected and simply
// clamps to the floor.
func Confidence(factors []taxonomy.ConfidenceFactor) float64 {
	c := taxonomy.ConfidenceBaseline
	for _, f := range factors {
		c += f.Adjustment
	}
	return clampFloat(c, taxonomy.ConfidenceFloor, taxonomy.ConfidenceCeiling)
}

// reasoning builds the audit string. Format:
//
//	likelihood 75 x impact 2.00 (imsi_catcher) x confidence 0.90 = 135.0 -> 100 (critical); factors: exact pattern match +0.15, strong signal +0.10
func reasoning(
	likelihood int,
	impact, confidence float64,
	kind taxonomy.DeviceKind,
	raw float64,
	score int,
	severity taxonomy.ThreatLevel,
	factors []taxonomy.ConfidenceFactor,
) string {
	var b strings.Builder
	fmt.Fprintf(&b, "likelihood %d x impact %.2f (%s) x confidence %.2f = %.1f -> %d (%s)",
		likelihood, impact, kind, confidence, raw, score, severity)

	applied := make([]string, 0, len(factors))
	for _, f := range factors {
		if f.Adjustment == 0 {
			continue
		}
		applied = append(applied, fmt.Sprintf("%s %+.2f", f.Name, f.Adjustment))
	}
	if len(applied) > 0 {
		b.WriteString("; factors: ")
		b.WriteString(strings.Join(applied, ", "))
	}

	return b.String()
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampFloat(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
