// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package taxonomy

// ThreatLevel is the ordered severity classification for a score.
// It is always derived from the numeric score and never stored
// independently of it.
type ThreatLevel string

const (
	ThreatInfo     ThreatLevel = "info"
	ThreatLow      ThreatLevel = "low"
	ThreatMedium   ThreatLevel = "medium"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Severity thresholds. Boundaries are inclusive on the lower bound:
// a score of exactly ThresholdHigh maps to ThreatHigh, not ThreatMedium.
const (
	ThresholdCritical = 90
	ThresholdHigh     = 70
	ThresholdMedium   = 50
	ThresholdLow      = 30
)

// FromScore maps a score in [0, 100] to its threat level. The mapping is
// deterministic and monotonic; comparisons use >= so exact threshold
// values land in the higher band.
func FromScore(score int) ThreatLevel {
	switch {
	case score >= ThresholdCritical:
		return ThreatCritical
	case score >= ThresholdHigh:
		return ThreatHigh
	case score >= ThresholdMedium:
		return ThreatMedium
	case score >= ThresholdLow:
		return ThreatLow
	default:
		return ThreatInfo
	}
}

// rank orders threat levels for comparison. Unknown values rank below info.
var rank = map[ThreatLevel]int{
	ThreatInfo:     1,
	ThreatLow:      2,
	ThreatMedium:   3,
	ThreatHigh:     4,
	ThreatCritical: 5,
}

// Rank returns the ordinal position of the level, info being lowest.
func (t ThreatLevel) Rank() int {
	return rank[t]
}

// AtLeast reports whether t is the same level as other or more severe.
func (t ThreatLevel) AtLeast(other ThreatLevel) bool {
	return rank[t] >= rank[other]
}

// String implements fmt.Stringer.
func (t ThreatLevel) String() string {
	return string(t)
}
