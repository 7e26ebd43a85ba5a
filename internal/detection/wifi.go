// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/scoring"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// WiFiSecurity is the link-layer security mode reported by the scanner.
type WiFiSecurity string

const (
	SecurityOpen WiFiSecurity = "open"
	SecurityWEP  WiFiSecurity = "wep"
	SecurityWPA  WiFiSecurity = "wpa"
	SecurityWPA2 WiFiSecurity = "wpa2"
	SecurityWPA3 WiFiSecurity = "wpa3"
)

// WiFiObservation is one access-point sighting plus the scan context the
// acquisition layer already has: other BSSIDs advertising the same SSID,
// deauth frame counts, and probe-response history for this BSSID.
type WiFiObservation struct {
	Timestamp time.Time    `json:"timestamp"`
	SSID      string       `json:"ssid"`
	BSSID     string       `json:"bssid"`
	RSSI      int          `json:"rssi"`
	Security  WiFiSecurity `json:"security"`
	Hidden    bool         `json:"hidden"`
	Channel   int          `json:"channel"`

	// Sighting history for this BSSID.
	SightingCount int       `json:"sighting_count"`
	FirstSeen     time.Time `json:"first_seen"`

	// SameSSIDBSSIDs lists other BSSIDs currently advertising the same
	// SSID (evil-twin evidence).
	SameSSIDBSSIDs []string `json:"same_ssid_bssids,omitempty"`

	// DeauthFrames counts deauthentication frames attributed to this
	// BSSID inside DeauthWindow.
	DeauthFrames int           `json:"deauth_frames,omitempty"`
	DeauthWindow time.Duration `json:"deauth_window,omitempty"`

	// ProbedSSIDs lists distinct SSIDs this BSSID has answered probe
	// requests for (karma evidence).
	ProbedSSIDs []string `json:"probed_ssids,omitempty"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Protocol implements Observation.
func (o *WiFiObservation) Protocol() taxonomy.Protocol { return taxonomy.ProtocolWiFi }

// ObservedAt implements Observation.
func (o *WiFiObservation) ObservedAt() time.Time { return o.Timestamp }

// Deauth-flood trigger: this many frames inside the window is an attack,
// not roaming churn.
const (
	deauthFloodFrames = 10
	deauthFloodWindow = 5 * time.Second
)

// karmaMinSSIDs is how many distinct probed SSIDs one BSSID must answer
// before it looks like a karma attack.
const karmaMinSSIDs = 3

// hiddenStrongRSSI: a hidden network heard above this level is close
// enough to be deliberate.
const hiddenStrongRSSI = -55

// suspiciousOpenWords are SSID substrings typical of honeypot open
// networks.
var suspiciousOpenWords = []string{
	"free", "public", "guest", "wifi", "open", "hotspot",
	"airport", "hotel", "starbucks", "mcdonald",
}

// ssidSignatures lists known attack-tool SSID fingerprints in priority
// order, most specific first.
var ssidSignatures = []struct {
	substr string
	kind   taxonomy.DeviceKind
}{
	{"pineapple", taxonomy.KindWiFiPineapple},
	{"wifiphisher", taxonomy.KindRogueAccessPoint},
	{"mana", taxonomy.KindRogueAccessPoint},
}

// WiFi base-likelihood catalog. Likelihood is protocol semantics, so it
// lives with the handler, not the scoring engine.
const (
	likelihoodDeauthFlood    = 85
	likelihoodKarma          = 80
	likelihoodSSIDSignature  = 75
	likelihoodEvilTwin       = 65
	likelihoodOpenHoneypot   = 45
	likelihoodHiddenStrong   = 40
	likelihoodWeakEncryption = 30
)

// WiFiHandler is the reference Handler implementation. It owns the WiFi
// pattern catalog: deauth floods, karma attacks, evil twins, known
// attack-tool SSIDs, open honeypots, strong hidden networks, and WEP.
type WiFiHandler struct {
	handlerCore
}

// NewWiFiHandler creates a WiFi handler with default thresholds.
// Monitoring starts stopped; call StartMonitoring.
func NewWiFiHandler() *WiFiHandler {
	return &WiFiHandler{handlerCore: newHandlerCore()}
}

// Protocol implements Handler.
func (h *WiFiHandler) Protocol() taxonomy.Protocol { return taxonomy.ProtocolWiFi }

// SupportedDeviceKinds implements Handler.
func (h *WiFiHandler) SupportedDeviceKinds() []taxonomy.DeviceKind {
	return []taxonomy.DeviceKind{
		taxonomy.KindDeauthAttacker,
		taxonomy.KindKarmaAP,
		taxonomy.KindEvilTwinAP,
		taxonomy.KindWiFiPineapple,
		taxonomy.KindRogueAccessPoint,
		taxonomy.KindHoneypotAP,
		taxonomy.KindHiddenStrongAP,
		taxonomy.KindLegacyWEPNetwork,
	}
}

// SupportedMethods implements Handler.
func (h *WiFiHandler) SupportedMethods() []taxonomy.DetectionMethod {
	return []taxonomy.DetectionMethod{
		taxonomy.MethodDeauthFlood,
		taxonomy.MethodKarmaProbe,
		taxonomy.MethodEvilTwin,
		taxonomy.MethodSSIDSignature,
		taxonomy.MethodOpenHoneypot,
		taxonomy.MethodHiddenStrong,
		taxonomy.MethodWeakEncryption,
	}
}

// wifiMatch is one pattern-catalog hit.
type wifiMatch struct {
	method     taxonomy.DetectionMethod
	kind       taxonomy.DeviceKind
	likelihood int
	quality    taxonomy.MatchQuality
	factors    []taxonomy.ConfidenceFactor
	detail     string
}

// Analyze implements Handler.
func (h *WiFiHandler) Analyze(ctx context.Context, obs Observation) (*Detection, error) {
	monitoring, thresholds, lat, lon := h.snapshot()
	if !monitoring {
		return nil, nil
	}

	wifi, ok := obs.(*WiFiObservation)
	if !ok {
		return nil, fmt.Errorf("wifi handler: unexpected observation type %T", obs)
	}
	if !validRSSI(wifi.RSSI) {
		logging.Ctx(ctx).Debug().Int("rssi", wifi.RSSI).Str("bssid", wifi.BSSID).
			Msg("rejecting wifi observation with implausible signal strength")
		return nil, nil
	}
	if wifi.RSSI != RSSIUnknown && wifi.RSSI < thresholds.MinRSSI {
		return nil, nil
	}
	if wifi.SightingCount < thresholds.MinSightings {
		return nil, nil
	}

	matches := h.matchPattern(wifi)
	if len(matches) == 0 {
		return nil, nil
	}

	// The strongest pattern drives the detection; additional hits count
	// as corroborating indicators.
	best := matches[0]
	factors := append([]taxonomy.ConfidenceFactor{}, best.factors...)
	if len(matches) > 1 {
		factors = append(factors, taxonomy.FactorMultiIndicator)
	}
	if f, applies := taxonomy.SignalFactor(wifi.RSSI); applies && wifi.RSSI != RSSIUnknown {
		factors = append(factors, f)
	}
	now := wifi.Timestamp
	if now.IsZero() {
		now = time.Now()
	}
	factors = append(factors, persistenceFactors(wifi.SightingCount, wifi.FirstSeen, now)...)

	result := scoring.Score(scoring.Input{
		BaseLikelihood: best.likelihood,
		Kind:           best.kind,
		Quality:        best.quality,
		Factors:        factors,
	})
	if !gate(thresholds, result) {
		return nil, nil
	}

	return newDetection(
		taxonomy.ProtocolWiFi, best.method, best.kind, wifi.BSSID,
		wifi.Timestamp, wifi.Latitude, wifi.Longitude, lat, lon,
		wifi.RSSI, best.detail, result,
	), nil
}

// matchPattern evaluates the catalog against one observation and
// returns all hits, strongest first.
func (h *WiFiHandler) matchPattern(wifi *WiFiObservation) []wifiMatch {
	var matches []wifiMatch

	if wifi.DeauthFrames >= deauthFloodFrames &&
		wifi.DeauthWindow > 0 && wifi.DeauthWindow <= deauthFloodWindow {
		matches = append(matches, wifiMatch{
			method:     taxonomy.MethodDeauthFlood,
			kind:       taxonomy.KindDeauthAttacker,
			likelihood: likelihoodDeauthFlood,
			quality:    taxonomy.MatchStrong,
			detail: fmt.Sprintf("deauth flood: %d frames in %s",
				wifi.DeauthFrames, wifi.DeauthWindow),
		})
	}

	if distinct := distinctStrings(wifi.ProbedSSIDs); distinct >= karmaMinSSIDs {
		matches = append(matches, wifiMatch{
			method:     taxonomy.MethodKarmaProbe,
			kind:       taxonomy.KindKarmaAP,
			likelihood: likelihoodKarma,
			quality:    taxonomy.MatchStrong,
			factors:    []taxonomy.ConfidenceFactor{taxonomy.FactorBehavioralMatch},
			detail:     fmt.Sprintf("AP answered probes for %d distinct SSIDs", distinct),
		})
	}

	if sig, kind := matchSSIDSignature(wifi.SSID); kind != "" {
		matches = append(matches, wifiMatch{
			method:     taxonomy.MethodSSIDSignature,
			kind:       kind,
			likelihood: likelihoodSSIDSignature,
			quality:    taxonomy.MatchExact,
			factors:    []taxonomy.ConfidenceFactor{taxonomy.FactorKnownSignature},
			detail:     fmt.Sprintf("SSID matches known attack-tool signature %q", sig),
		})
	}

	if len(wifi.SameSSIDBSSIDs) >= 1 && wifi.SSID != "" {
		matches = append(matches, wifiMatch{
			method:     taxonomy.MethodEvilTwin,
			kind:       taxonomy.KindEvilTwinAP,
			likelihood: likelihoodEvilTwin,
			quality:    taxonomy.MatchStrong,
			detail: fmt.Sprintf("%d APs advertising SSID %q",
				len(wifi.SameSSIDBSSIDs)+1, wifi.SSID),
		})
	}

	if wifi.Security == SecurityOpen && isSuspiciousOpenSSID(wifi.SSID) {
		matches = append(matches, wifiMatch{
			method:     taxonomy.MethodOpenHoneypot,
			kind:       taxonomy.KindHoneypotAP,
			likelihood: likelihoodOpenHoneypot,
			quality:    taxonomy.MatchPartial,
			detail:     fmt.Sprintf("suspicious open network %q, possible honeypot", wifi.SSID),
		})
	}

	if wifi.Hidden && wifi.RSSI != RSSIUnknown && wifi.RSSI > hiddenStrongRSSI {
		matches = append(matches, wifiMatch{
			method:     taxonomy.MethodHiddenStrong,
			kind:       taxonomy.KindHiddenStrongAP,
			likelihood: likelihoodHiddenStrong,
			quality:    taxonomy.MatchHeuristic,
			detail:     fmt.Sprintf("hidden network at %d dBm", wifi.RSSI),
		})
	}

	if wifi.Security == SecurityWEP {
		matches = append(matches, wifiMatch{
			method:     taxonomy.MethodWeakEncryption,
			kind:       taxonomy.KindLegacyWEPNetwork,
			likelihood: likelihoodWeakEncryption,
			quality:    taxonomy.MatchExact,
			detail:     "network uses deprecated WEP encryption",
		})
	}

	return matches
}

// matchSSIDSignature checks the SSID against the attack-tool signature
// table, case-insensitively. Returns the matched signature and kind, or
// ("", "").
func matchSSIDSignature(ssid string) (string, taxonomy.DeviceKind) {
	lower := strings.ToLower(ssid)
	for _, sig := range ssidSignatures {
		if strings.Contains(lower, sig.substr) {
			return sig.substr, sig.kind
		}
	}
	return "", ""
}

// isSuspiciousOpenSSID reports whether the SSID contains a honeypot
// keyword.
func isSuspiciousOpenSSID(ssid string) bool {
	lower := strings.ToLower(ssid)
	for _, word := range suspiciousOpenWords {
		if strings.Contains(lower, word) {
			return true
		}
	}
	return false
}

// validRSSI accepts the unknown sentinel and physically plausible dBm
// readings.
func validRSSI(rssi int) bool {
	return rssi == RSSIUnknown || (rssi >= -120 && rssi < 0)
}

// distinctStrings counts distinct non-empty values.
func distinctStrings(values []string) int {
	seen := make(map[string]struct{}, len(values))
	for _, v := range values {
		if v != "" {
			seen[v] = struct{}{}
		}
	}
	return len(seen)
}
