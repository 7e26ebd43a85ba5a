// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package taxonomy

import "testing"

func TestImpactBounds(t *testing.T) {
	kinds := KnownKinds()
	if len(kinds) < 60 {
		t.Fatalf("expected at least 60 device kinds, got %d", len(kinds))
	}

	for _, kind := range kinds {
		impact, ok := Impact(kind)
		if !ok {
			t.Errorf("%s: known kind reported as miss", kind)
		}
		if impact < 0.5 || impact > 2.0 {
			t.Errorf("%s: impact %.2f outside [0.5, 2.0]", kind, impact)
		}
	}
}

func TestImpactUnknownKind(t *testing.T) {
	impact, ok := Impact(DeviceKind("quantum_listening_post"))
	if ok {
		t.Error("unknown kind reported as found")
	}
	if impact != NeutralImpact {
		t.Errorf("unknown kind impact = %.2f, want %.2f", impact, NeutralImpact)
	}
}

func TestFromScoreBoundaries(t *testing.T) {
	tests := []struct {
		score int
		want  ThreatLevel
	}{
		{0, ThreatInfo},
		{29, ThreatInfo},
		{30, ThreatLow},
		{49, ThreatLow},
		{50, ThreatMedium},
		{69, ThreatMedium},
		{70, ThreatHigh},
		{89, ThreatHigh},
		{90, ThreatCritical},
		{100, ThreatCritical},
	}

	for _, tt := range tests {
		if got := FromScore(tt.score); got != tt.want {
			t.Errorf("FromScore(%d) = %s, want %s", tt.score, got, tt.want)
		}
	}
}

func TestThreatLevelOrdering(t *testing.T) {
	ordered := []ThreatLevel{ThreatInfo, ThreatLow, ThreatMedium, ThreatHigh, ThreatCritical}
	for i := 1; i < len(ordered); i++ {
		if ordered[i].Rank() <= ordered[i-1].Rank() {
			t.Errorf("%s should rank above %s", ordered[i], ordered[i-1])
		}
	}

	if !ThreatHigh.AtLeast(ThreatHigh) {
		t.Error("AtLeast should be inclusive")
	}
	if ThreatLow.AtLeast(ThreatCritical) {
		t.Error("low should not be at least critical")
	}
}

func TestSignalFactor(t *testing.T) {
	tests := []struct {
		rssi    int
		want    ConfidenceFactor
		applies bool
	}{
		{-40, FactorStrongSignal, true},
		{-50, FactorGoodSignal, true}, // boundary: -50 is not > -50
		{-55, FactorGoodSignal, true},
		{-70, ConfidenceFactor{}, false}, // neutral band
		{-85, FactorWeakSignal, true},
		{-95, FactorVeryWeakSignal, true},
	}

	for _, tt := range tests {
		got, applies := SignalFactor(tt.rssi)
		if applies != tt.applies {
			t.Errorf("SignalFactor(%d) applies = %v, want %v", tt.rssi, applies, tt.applies)
			continue
		}
		if applies && got.Name != tt.want.Name {
			t.Errorf("SignalFactor(%d) = %s, want %s", tt.rssi, got.Name, tt.want.Name)
		}
	}
}

func TestMatchQualityFactors(t *testing.T) {
	tests := []struct {
		quality MatchQuality
		want    float64
	}{
		{MatchExact, 0.15},
		{MatchStrong, 0.10},
		{MatchPartial, 0.00},
		{MatchWeak, -0.10},
		{MatchHeuristic, -0.20},
		{MatchQuality("bogus"), 0.00},
	}

	for _, tt := range tests {
		if got := tt.quality.Factor().Adjustment; got != tt.want {
			t.Errorf("%s factor = %.2f, want %.2f", tt.quality, got, tt.want)
		}
	}
}

func TestProtocolValid(t *testing.T) {
	for _, p := range Protocols {
		if !p.Valid() {
			t.Errorf("%s should be valid", p)
		}
	}
	if Protocol("zigbee").Valid() {
		t.Error("zigbee is not a defined protocol")
	}
}
