// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package taxonomy

// ConfidenceFactor is a named signed adjustment to the 0.5 confidence
// baseline. A detection carries the list of factors that applied so the
// final confidence is fully explainable.
type ConfidenceFactor struct {
	Name       string  `json:"name"`
	Adjustment float64 `json:"adjustment"`
}

// Baseline confidence before any factors apply, and the clamp bounds.
const (
	ConfidenceBaseline = 0.5
	ConfidenceFloor    = 0.1
	ConfidenceCeiling  = 1.0
)

// The fixed confidence-factor catalog. Handlers pick factors from this
// list based on the evidence in an observation; they never invent ad-hoc
// adjustments, which keeps reasoning strings comparable across protocols.
var (
	FactorCrossProtocol    = ConfidenceFactor{"cross-protocol correlation", 0.30}
	FactorPersistence      = ConfidenceFactor{"persistent across sightings", 0.20}
	FactorMultiIndicator   = ConfidenceFactor{"multiple confirming indicators", 0.20}
	FactorKnownSignature   = ConfidenceFactor{"exact known-signature match", 0.15}
	FactorStrongSignal     = ConfidenceFactor{"strong signal", 0.10}
	FactorBehavioralMatch  = ConfidenceFactor{"behavioral match", 0.10}
	FactorGoodSignal       = ConfidenceFactor{"good signal", 0.05}
	FactorWeakSignal       = ConfidenceFactor{"weak signal", -0.10}
	FactorVeryWeakSignal   = ConfidenceFactor{"very weak signal", -0.20}
	FactorBriefDetection   = ConfidenceFactor{"brief single sighting", -0.20}
	FactorConsumerDevice   = ConfidenceFactor{"common consumer device", -0.20}
	FactorSingleIndicator  = ConfidenceFactor{"single weak indicator", -0.30}
	FactorMultipathContext = ConfidenceFactor{"multipath-likely context", -0.30}
	FactorKnownBenign      = ConfidenceFactor{"known-benign pattern", -0.50}
)

// Signal strength breakpoints in dBm for the signal factors above.
const (
	StrongSignalDBm   = -50
	GoodSignalDBm     = -60
	WeakSignalDBm     = -80
	VeryWeakSignalDBm = -90
)

// SignalFactor classifies an RSSI reading into the matching confidence
// factor. The zero second return means the reading falls in the neutral
// band and contributes nothing.
func SignalFactor(rssi int) (ConfidenceFactor, bool) {
	switch {
	case rssi > StrongSignalDBm:
		return FactorStrongSignal, true
	case rssi > GoodSignalDBm:
		return FactorGoodSignal, true
	case rssi < VeryWeakSignalDBm:
		return FactorVeryWeakSignal, true
	case rssi < WeakSignalDBm:
		return FactorWeakSignal, true
	}
	return ConfidenceFactor{}, false
}

// MatchQuality grades how closely an observation matched a pattern.
type MatchQuality string

const (
	MatchExact     MatchQuality = "exact"
	MatchStrong    MatchQuality = "strong"
	MatchPartial   MatchQuality = "partial"
	MatchWeak      MatchQuality = "weak"
	MatchHeuristic MatchQuality = "heuristic"
)

// qualityFactors maps each match quality to its confidence contribution.
var qualityFactors = map[MatchQuality]ConfidenceFactor{
	MatchExact:     {"exact pattern match", 0.15},
	MatchStrong:    {"strong pattern match", 0.10},
	MatchPartial:   {"partial pattern match", 0.00},
	MatchWeak:      {"weak pattern match", -0.10},
	MatchHeuristic: {"heuristic-only match", -0.20},
}

// Factor returns the confidence contribution of the match quality.
// Unknown qualities behave like MatchPartial.
func (q MatchQuality) Factor() ConfidenceFactor {
	if f, ok := qualityFactors[q]; ok {
		return f
	}
	return qualityFactors[MatchPartial]
}
