// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

const (
	// DefaultWindow is the rolling window Aggregate considers when the
	// caller does not specify one.
	DefaultWindow = 30 * time.Minute

	// Two detections belong to the same incident iff they are within
	// incidentTimeGap of each other and within incidentRadiusMeters.
	incidentTimeGap      = 5 * time.Minute
	incidentRadiusMeters = 50.0

	// Aggregate score boosts, applied at most once each, in this order.
	boostCrossProtocol = 1.20
	boostRecurring     = 1.15
	boostRecentSevere  = 1.10

	// recentSevereWindow bounds the "high/critical just happened" boost.
	recentSevereWindow = 5 * time.Minute

	// recurringMinDetections and recurringMinIncidents define a
	// recurring pattern: the same device kind and identity seen at
	// least three times, across at least two distinct incidents.
	recurringMinDetections = 3
	recurringMinIncidents  = 2
)

// Aggregate computes the combined incident view over the detections
// whose timestamp falls within window of now. It is a pure function of
// its inputs: order-independent, idempotent, and free of side effects.
// A zero window means DefaultWindow.
func (r *Registry) Aggregate(detections []*Detection, window time.Duration, now time.Time) AggregateIncident {
	return Aggregate(detections, window, now)
}

// Aggregate is the package-level form of Registry.Aggregate for callers
// that hold detections but no registry.
func Aggregate(detections []*Detection, window time.Duration, now time.Time) AggregateIncident {
	if window <= 0 {
		window = DefaultWindow
	}
	if now.IsZero() {
		now = time.Now()
	}

	agg := AggregateIncident{
		Severity:   taxonomy.ThreatInfo,
		Window:     window,
		ComputedAt: now,
		Reasoning:  "no detections in window",
	}

	cutoff := now.Add(-window)
	filtered := make([]*Detection, 0, len(detections))
	for _, d := range detections {
		if d == nil {
			continue
		}
		if d.Timestamp.Before(cutoff) || d.Timestamp.After(now) {
			continue
		}
		filtered = append(filtered, d)
	}
	if len(filtered) == 0 {
		return agg
	}

	// Canonical order makes clustering and tie-breaks independent of
	// input order.
	sort.Slice(filtered, func(i, j int) bool {
		if !filtered[i].Timestamp.Equal(filtered[j].Timestamp) {
			return filtered[i].Timestamp.Before(filtered[j].Timestamp)
		}
		return filtered[i].ID < filtered[j].ID
	})

	incidentOf := clusterIncidents(filtered)
	incidentCount := distinctInts(incidentOf)

	top := filtered[0]
	protocolSet := make(map[taxonomy.Protocol]struct{})
	for _, d := range filtered {
		protocolSet[d.Protocol] = struct{}{}
		if d.Score > top.Score {
			top = d
		}
	}

	protocols := make([]taxonomy.Protocol, 0, len(protocolSet))
	for _, p := range taxonomy.Protocols {
		if _, ok := protocolSet[p]; ok {
			protocols = append(protocols, p)
		}
	}

	crossProtocol := len(protocols) >= 2
	recurring := hasRecurringPattern(filtered, incidentOf)
	recentSevere := false
	severeCutoff := now.Add(-recentSevereWindow)
	for _, d := range filtered {
		if d.Severity.AtLeast(taxonomy.ThreatHigh) && !d.Timestamp.Before(severeCutoff) {
			recentSevere = true
			break
		}
	}

	score := float64(top.Score)
	var fired []string
	if crossProtocol {
		score *= boostCrossProtocol
		fired = append(fired, fmt.Sprintf("cross-protocol correlation across %d protocols (x%.2f)",
			len(protocols), boostCrossProtocol))
	}
	if recurring {
		score *= boostRecurring
		fired = append(fired, fmt.Sprintf("recurring device pattern across incidents (x%.2f)", boostRecurring))
	}
	if recentSevere {
		score *= boostRecentSevere
		fired = append(fired, fmt.Sprintf("high/critical detection within last %s (x%.2f)",
			recentSevereWindow, boostRecentSevere))
	}
	final := clampScore(int(math.Round(score)))

	reasoning := fmt.Sprintf("%d detections in %d incidents over %s; top score %d",
		len(filtered), incidentCount, window, top.Score)
	if len(fired) > 0 {
		reasoning += "; boosts: " + strings.Join(fired, ", ")
	} else {
		reasoning += "; no boosts applied"
	}
	reasoning += fmt.Sprintf("; aggregate %d (%s)", final, taxonomy.FromScore(final))

	agg.Score = final
	agg.Severity = taxonomy.FromScore(final)
	agg.IncidentCount = incidentCount
	agg.DetectionCount = len(filtered)
	agg.Top = top
	agg.Protocols = protocols
	agg.CrossProtocol = crossProtocol
	agg.Recurring = recurring
	agg.RecentSevere = recentSevere
	agg.Reasoning = reasoning
	return agg
}

// clusterIncidents assigns each detection an incident index via
// union-find. For each pair, same incident iff within incidentTimeGap
// and incidentRadiusMeters; detections with no location cluster on time
// alone. Input must already be in canonical order so resulting indices
// are deterministic.
func clusterIncidents(detections []*Detection) []int {
	parent := make([]int, len(detections))
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(i int) int {
		for parent[i] != i {
			parent[i] = parent[parent[i]]
			i = parent[i]
		}
		return i
	}
	union := func(a, b int) {
		ra, rb := find(a), find(b)
		if ra != rb {
			if rb < ra {
				ra, rb = rb, ra
			}
			parent[rb] = ra
		}
	}

	for i := 0; i < len(detections); i++ {
		for j := i + 1; j < len(detections); j++ {
			if sameIncident(detections[i], detections[j]) {
				union(i, j)
			}
		}
	}

	// Compact roots into dense indices ordered by first appearance.
	indexOf := make(map[int]int)
	out := make([]int, len(detections))
	for i := range detections {
		root := find(i)
		idx, ok := indexOf[root]
		if !ok {
			idx = len(indexOf)
			indexOf[root] = idx
		}
		out[i] = idx
	}
	return out
}

func sameIncident(a, b *Detection) bool {
	gap := a.Timestamp.Sub(b.Timestamp)
	if gap < 0 {
		gap = -gap
	}
	if gap > incidentTimeGap {
		return false
	}
	// Without a fix on either side distance cannot separate them.
	if !HasLocation(a.Latitude, a.Longitude) || !HasLocation(b.Latitude, b.Longitude) {
		return true
	}
	return haversineMeters(a.Latitude, a.Longitude, b.Latitude, b.Longitude) <= incidentRadiusMeters
}

// hasRecurringPattern reports whether any (kind, identity) pair was
// detected at least recurringMinDetections times spanning at least
// recurringMinIncidents distinct incidents.
func hasRecurringPattern(detections []*Detection, incidentOf []int) bool {
	type key struct {
		kind     taxonomy.DeviceKind
		identity string
	}
	counts := make(map[key]int)
	incidents := make(map[key]map[int]struct{})
	for i, d := range detections {
		if d.Identity == "" {
			continue
		}
		k := key{d.Kind, d.Identity}
		counts[k]++
		if incidents[k] == nil {
			incidents[k] = make(map[int]struct{})
		}
		incidents[k][incidentOf[i]] = struct{}{}
	}
	for k, n := range counts {
		if n >= recurringMinDetections && len(incidents[k]) >= recurringMinIncidents {
			return true
		}
	}
	return false
}

// ComputeStatistics tallies detections by severity, protocol, and
// device kind.
func ComputeStatistics(detections []*Detection) Statistics {
	stats := Statistics{
		BySeverity: make(map[taxonomy.ThreatLevel]int),
		ByProtocol: make(map[taxonomy.Protocol]int),
		ByKind:     make(map[taxonomy.DeviceKind]int),
	}
	for _, d := range detections {
		if d == nil {
			continue
		}
		stats.Total++
		stats.BySeverity[d.Severity]++
		stats.ByProtocol[d.Protocol]++
		stats.ByKind[d.Kind]++
	}
	return stats
}

func distinctInts(ids []int) int {
	seen := make(map[int]struct{}, len(ids))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	return len(seen)
}

func clampScore(s int) int {
	if s < 0 {
		return 0
	}
	if s > 100 {
		return 100
	}
	return s
}
