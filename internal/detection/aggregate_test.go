// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"fmt"
	"math/rand"
	"reflect"
	"testing"
	"time"

	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// det builds a test detection with severity derived from the score.
func det(id string, ts time.Time, proto taxonomy.Protocol, kind taxonomy.DeviceKind,
	identity string, score int, lat, lon float64) *Detection {
	return &Detection{
		ID:        id,
		Timestamp: ts,
		Kind:      kind,
		Protocol:  proto,
		Method:    taxonomy.MethodTrackerSignature,
		Identity:  identity,
		Latitude:  lat,
		Longitude: lon,
		Score:     score,
		Severity:  taxonomy.FromScore(score),
		Reasoning: "test detection",
		Active:    true,
	}
}

func TestAggregateEmpty(t *testing.T) {
	now := time.Now()
	for _, input := range [][]*Detection{nil, {}} {
		agg := Aggregate(input, DefaultWindow, now)
		if agg.Severity != taxonomy.ThreatInfo {
			t.Errorf("Severity = %q, want info", agg.Severity)
		}
		if agg.Score != 0 || agg.IncidentCount != 0 || agg.DetectionCount != 0 {
			t.Errorf("empty aggregate = %+v, want zeros", agg)
		}
		if agg.Top != nil {
			t.Errorf("Top = %+v, want nil", agg.Top)
		}
	}
}

func TestAggregateWindowFilter(t *testing.T) {
	now := time.Now()
	input := []*Detection{
		det("a", now.Add(-2*time.Hour), taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "x", 80, 0, 0),
		det("b", now.Add(-10*time.Minute), taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "y", 40, 0, 0),
		det("c", now.Add(time.Hour), taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "z", 90, 0, 0),
	}

	agg := Aggregate(input, 30*time.Minute, now)
	if agg.DetectionCount != 1 {
		t.Fatalf("DetectionCount = %d, want 1 (stale and future excluded)", agg.DetectionCount)
	}
	if agg.Top == nil || agg.Top.ID != "b" {
		t.Errorf("Top = %+v, want detection b", agg.Top)
	}
	if agg.Score != 40 {
		t.Errorf("Score = %d, want unboosted 40", agg.Score)
	}
}

func TestAggregateOrderInvariance(t *testing.T) {
	now := time.Now()
	base := []*Detection{
		det("a", now.Add(-25*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.5000, -0.1200),
		det("b", now.Add(-23*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.5001, -0.1200),
		det("c", now.Add(-10*time.Minute), taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "bssid1", 70, 51.5100, -0.1300),
		det("d", now.Add(-2*time.Minute), taxonomy.ProtocolCellular, taxonomy.KindIMSICatcher, "cell1", 92, 51.5102, -0.1301),
	}

	want := Aggregate(base, DefaultWindow, now)

	rng := rand.New(rand.NewSource(1))
	for i := 0; i < 20; i++ {
		shuffled := append([]*Detection{}, base...)
		rng.Shuffle(len(shuffled), func(a, b int) {
			shuffled[a], shuffled[b] = shuffled[b], shuffled[a]
		})
		got := Aggregate(shuffled, DefaultWindow, now)
		if !reflect.DeepEqual(got, want) {
			t.Fatalf("aggregate differs after shuffle %d:\n got %+v\nwant %+v", i, got, want)
		}
	}
}

func TestAggregateIdempotentGrouping(t *testing.T) {
	now := time.Now()
	input := []*Detection{
		det("a", now.Add(-20*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 50, 51.5000, -0.1200),
		det("b", now.Add(-18*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 50, 51.5001, -0.1200),
		det("c", now.Add(-5*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 50, 51.6000, -0.1200),
	}

	first := Aggregate(input, DefaultWindow, now)
	second := Aggregate(input, DefaultWindow, now)
	if first.IncidentCount != second.IncidentCount {
		t.Errorf("incident count changed between runs: %d then %d",
			first.IncidentCount, second.IncidentCount)
	}
	if first.IncidentCount != 2 {
		t.Errorf("IncidentCount = %d, want 2 (a+b clustered, c apart)", first.IncidentCount)
	}
}

func TestAggregateCrossProtocolBoost(t *testing.T) {
	now := time.Now()
	mixed := []*Detection{
		det("a", now.Add(-20*time.Minute), taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "bssid1", 60, 0, 0),
		det("b", now.Add(-19*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 50, 0, 0),
	}

	agg := Aggregate(mixed, DefaultWindow, now)
	if !agg.CrossProtocol {
		t.Fatal("CrossProtocol = false with two protocols present")
	}
	if agg.Score != 72 { // 60 x 1.20
		t.Errorf("Score = %d, want 72", agg.Score)
	}
	if len(agg.Protocols) != 2 {
		t.Errorf("Protocols = %v, want two entries", agg.Protocols)
	}

	// Removing the second protocol turns the flag off and the score must
	// not increase.
	single := Aggregate(mixed[:1], DefaultWindow, now)
	if single.CrossProtocol {
		t.Error("CrossProtocol = true with one protocol")
	}
	if single.Score > agg.Score {
		t.Errorf("single-protocol score %d exceeds mixed %d", single.Score, agg.Score)
	}
	if single.Score != 60 {
		t.Errorf("Score = %d, want unboosted 60", single.Score)
	}
}

// Three sightings of the same tracker at one spot minutes apart, then a
// fourth at a different spot half an hour on: two incidents, recurring
// pattern, score boosted 55 x 1.15.
func TestAggregateRecurringTracker(t *testing.T) {
	start := time.Now().Add(-30 * time.Minute)
	now := start.Add(30 * time.Minute)

	input := []*Detection{
		det("d1", start, taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.5000, -0.1200),
		det("d2", start.Add(2*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.5001, -0.1200),
		det("d3", start.Add(4*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.5000, -0.1201),
		det("d4", start.Add(30*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.6000, -0.2000),
	}

	agg := Aggregate(input, DefaultWindow, now)
	if agg.DetectionCount != 4 {
		t.Fatalf("DetectionCount = %d, want 4", agg.DetectionCount)
	}
	if agg.IncidentCount != 2 {
		t.Fatalf("IncidentCount = %d, want 2", agg.IncidentCount)
	}
	if !agg.Recurring {
		t.Fatal("Recurring = false for a tracker seen across incidents")
	}
	if agg.CrossProtocol {
		t.Error("CrossProtocol = true with one protocol")
	}
	if agg.Score != 63 { // 55 x 1.15 rounded
		t.Errorf("Score = %d, want 63", agg.Score)
	}
	if agg.Severity != taxonomy.ThreatMedium {
		t.Errorf("Severity = %q, want medium", agg.Severity)
	}
}

func TestAggregateRecentSevereBoost(t *testing.T) {
	now := time.Now()

	recent := Aggregate([]*Detection{
		det("a", now.Add(-2*time.Minute), taxonomy.ProtocolCellular, taxonomy.KindIMSICatcher, "cell1", 75, 0, 0),
	}, DefaultWindow, now)
	if !recent.RecentSevere {
		t.Error("RecentSevere = false for a high detection two minutes old")
	}
	if recent.Score != 83 { // 75 x 1.10 = 82.5, rounded
		t.Errorf("Score = %d, want 83", recent.Score)
	}

	old := Aggregate([]*Detection{
		det("a", now.Add(-20*time.Minute), taxonomy.ProtocolCellular, taxonomy.KindIMSICatcher, "cell1", 75, 0, 0),
	}, DefaultWindow, now)
	if old.RecentSevere {
		t.Error("RecentSevere = true for a twenty-minute-old detection")
	}
	if old.Score != 75 {
		t.Errorf("Score = %d, want unboosted 75", old.Score)
	}
}

func TestAggregateBoostsClampAt100(t *testing.T) {
	now := time.Now()
	input := []*Detection{
		det("a", now.Add(-time.Minute), taxonomy.ProtocolCellular, taxonomy.KindIMSICatcher, "cell1", 95, 0, 0),
		det("b", now.Add(-20*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.5, -0.12),
		det("c", now.Add(-18*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.5, -0.12),
		det("d", now.Add(-2*time.Minute), taxonomy.ProtocolBLE, taxonomy.KindAirTag, "mac1", 55, 51.6, -0.20),
	}

	agg := Aggregate(input, DefaultWindow, now)
	if !agg.CrossProtocol || !agg.Recurring || !agg.RecentSevere {
		t.Fatalf("expected all boosts to fire: %+v", agg)
	}
	if agg.Score != 100 {
		t.Errorf("Score = %d, want clamped 100", agg.Score)
	}
	if agg.Severity != taxonomy.ThreatCritical {
		t.Errorf("Severity = %q, want critical", agg.Severity)
	}
	if agg.Reasoning == "" {
		t.Error("Reasoning must list the boosts that fired")
	}
}

func TestAggregateTopTieBreak(t *testing.T) {
	now := time.Now()
	early := now.Add(-10 * time.Minute)
	late := now.Add(-6 * time.Minute)

	input := []*Detection{
		det("z-late", late, taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "x", 70, 0, 0),
		det("b-early", early, taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "y", 70, 0, 0),
		det("a-early", early, taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "z", 70, 0, 0),
	}

	agg := Aggregate(input, DefaultWindow, now)
	if agg.Top == nil || agg.Top.ID != "a-early" {
		t.Errorf("Top = %+v, want earliest timestamp then smallest id", agg.Top)
	}
}

func TestAggregateNoLocationClustersOnTime(t *testing.T) {
	now := time.Now()
	input := []*Detection{
		det("a", now.Add(-10*time.Minute), taxonomy.ProtocolGNSS, taxonomy.KindGNSSSpoofer, "", 60, 0, 0),
		det("b", now.Add(-8*time.Minute), taxonomy.ProtocolGNSS, taxonomy.KindGNSSSpoofer, "", 60, 0, 0),
	}

	agg := Aggregate(input, DefaultWindow, now)
	if agg.IncidentCount != 1 {
		t.Errorf("IncidentCount = %d, want 1 (no fix means distance cannot separate)", agg.IncidentCount)
	}
}

func TestAggregateDefaultsWindowAndNow(t *testing.T) {
	now := time.Now()
	input := []*Detection{
		det("a", now.Add(-time.Minute), taxonomy.ProtocolWiFi, taxonomy.KindEvilTwinAP, "x", 40, 0, 0),
	}

	agg := Aggregate(input, 0, time.Time{})
	if agg.Window != DefaultWindow {
		t.Errorf("Window = %v, want %v", agg.Window, DefaultWindow)
	}
	if agg.DetectionCount != 1 {
		t.Errorf("DetectionCount = %d, want 1", agg.DetectionCount)
	}
}

func TestComputeStatistics(t *testing.T) {
	now := time.Now()
	var input []*Detection
	for i := 0; i < 3; i++ {
		input = append(input, det(fmt.Sprintf("w%d", i), now, taxonomy.ProtocolWiFi,
			taxonomy.KindEvilTwinAP, "x", 75, 0, 0))
	}
	input = append(input,
		det("b0", now, taxonomy.ProtocolBLE, taxonomy.KindAirTag, "m", 49, 0, 0),
		nil,
	)

	stats := ComputeStatistics(input)
	if stats.Total != 4 {
		t.Errorf("Total = %d, want 4 (nil entries skipped)", stats.Total)
	}
	if stats.ByProtocol[taxonomy.ProtocolWiFi] != 3 || stats.ByProtocol[taxonomy.ProtocolBLE] != 1 {
		t.Errorf("ByProtocol = %v", stats.ByProtocol)
	}
	if stats.BySeverity[taxonomy.ThreatHigh] != 3 || stats.BySeverity[taxonomy.ThreatLow] != 1 {
		t.Errorf("BySeverity = %v", stats.BySeverity)
	}
	if stats.ByKind[taxonomy.KindEvilTwinAP] != 3 || stats.ByKind[taxonomy.KindAirTag] != 1 {
		t.Errorf("ByKind = %v", stats.ByKind)
	}
}
