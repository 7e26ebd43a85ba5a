// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"testing"
	"time"

	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

func startedWiFiHandler(t *testing.T) *WiFiHandler {
	t.Helper()
	h := NewWiFiHandler()
	h.StartMonitoring()
	t.Cleanup(func() {
		if err := h.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return h
}

func TestWiFiHandlerPatterns(t *testing.T) {
	now := time.Now()
	base := WiFiObservation{
		Timestamp:     now,
		SSID:          "HomeNet",
		BSSID:         "aa:bb:cc:dd:ee:01",
		RSSI:          -65,
		Security:      SecurityWPA2,
		SightingCount: 3,
		FirstSeen:     now.Add(-10 * time.Minute),
	}

	tests := []struct {
		name       string
		mutate     func(*WiFiObservation)
		wantMethod taxonomy.DetectionMethod
		wantKind   taxonomy.DeviceKind
	}{
		{
			name: "deauth flood",
			mutate: func(o *WiFiObservation) {
				o.DeauthFrames = 25
				o.DeauthWindow = 3 * time.Second
			},
			wantMethod: taxonomy.MethodDeauthFlood,
			wantKind:   taxonomy.KindDeauthAttacker,
		},
		{
			name: "karma attack",
			mutate: func(o *WiFiObservation) {
				o.ProbedSSIDs = []string{"CoffeeShop", "HomeNet", "Office", "Airport"}
			},
			wantMethod: taxonomy.MethodKarmaProbe,
			wantKind:   taxonomy.KindKarmaAP,
		},
		{
			name: "attack tool ssid",
			mutate: func(o *WiFiObservation) {
				o.SSID = "Pineapple_5G"
			},
			wantMethod: taxonomy.MethodSSIDSignature,
			wantKind:   taxonomy.KindWiFiPineapple,
		},
		{
			name: "evil twin",
			mutate: func(o *WiFiObservation) {
				o.SameSSIDBSSIDs = []string{"aa:bb:cc:dd:ee:02"}
			},
			wantMethod: taxonomy.MethodEvilTwin,
			wantKind:   taxonomy.KindEvilTwinAP,
		},
		{
			name: "open honeypot",
			mutate: func(o *WiFiObservation) {
				o.SSID = "Free_Airport_WiFi"
				o.Security = SecurityOpen
				o.RSSI = -45
			},
			wantMethod: taxonomy.MethodOpenHoneypot,
			wantKind:   taxonomy.KindHoneypotAP,
		},
		{
			name: "hidden strong network",
			mutate: func(o *WiFiObservation) {
				o.SSID = ""
				o.Hidden = true
				o.RSSI = -42
			},
			wantMethod: taxonomy.MethodHiddenStrong,
			wantKind:   taxonomy.KindHiddenStrongAP,
		},
		{
			name: "wep network",
			mutate: func(o *WiFiObservation) {
				o.Security = SecurityWEP
				o.RSSI = -50
			},
			wantMethod: taxonomy.MethodWeakEncryption,
			wantKind:   taxonomy.KindLegacyWEPNetwork,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := startedWiFiHandler(t)
			// Widen the gate so low-likelihood patterns still surface.
			if err := h.SetThresholds(HighSensitivityThresholds()); err != nil {
				t.Fatal(err)
			}

			obs := base
			tt.mutate(&obs)

			det, err := h.Analyze(t.Context(), &obs)
			if err != nil {
				t.Fatalf("Analyze: %v", err)
			}
			if det == nil {
				t.Fatal("Analyze returned no detection")
			}
			if det.Method != tt.wantMethod {
				t.Errorf("Method = %q, want %q", det.Method, tt.wantMethod)
			}
			if det.Kind != tt.wantKind {
				t.Errorf("Kind = %q, want %q", det.Kind, tt.wantKind)
			}
			if det.Identity != obs.BSSID {
				t.Errorf("Identity = %q, want BSSID %q", det.Identity, obs.BSSID)
			}
			if det.Protocol != taxonomy.ProtocolWiFi {
				t.Errorf("Protocol = %q", det.Protocol)
			}
			if det.Score < 0 || det.Score > 100 {
				t.Errorf("Score = %d, out of range", det.Score)
			}
			if det.Reasoning == "" {
				t.Error("Reasoning must not be empty")
			}
		})
	}
}

func TestWiFiHandlerBenignObservation(t *testing.T) {
	h := startedWiFiHandler(t)

	det, err := h.Analyze(t.Context(), &WiFiObservation{
		Timestamp:     time.Now(),
		SSID:          "HomeNet",
		BSSID:         "aa:bb:cc:dd:ee:01",
		RSSI:          -65,
		Security:      SecurityWPA3,
		SightingCount: 3,
	})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if det != nil {
		t.Errorf("benign AP produced detection kind=%q method=%q", det.Kind, det.Method)
	}
}

func TestWiFiHandlerRejectsMalformed(t *testing.T) {
	h := startedWiFiHandler(t)

	// Malformed readings are dropped, never errors.
	for _, rssi := range []int{-200, 20} {
		det, err := h.Analyze(t.Context(), &WiFiObservation{
			Timestamp:     time.Now(),
			SSID:          "pineapple",
			BSSID:         "aa:bb:cc:dd:ee:01",
			RSSI:          rssi,
			SightingCount: 3,
		})
		if err != nil || det != nil {
			t.Errorf("rssi %d: got (%v, %v), want (nil, nil)", rssi, det, err)
		}
	}

	// Wrong observation type is the one analyze error.
	if _, err := h.Analyze(t.Context(), &BLEObservation{MAC: "x", Timestamp: time.Now()}); err == nil {
		t.Error("wrong observation type must error")
	}
}

func TestWiFiHandlerThresholdGates(t *testing.T) {
	now := time.Now()
	obs := &WiFiObservation{
		Timestamp:     now,
		SSID:          "pineapple",
		BSSID:         "aa:bb:cc:dd:ee:01",
		RSSI:          -85,
		Security:      SecurityWPA2,
		SightingCount: 1,
		FirstSeen:     now,
	}

	t.Run("weak signal dropped by min rssi", func(t *testing.T) {
		h := startedWiFiHandler(t)
		th := DefaultThresholds()
		th.MinRSSI = -70
		if err := h.SetThresholds(th); err != nil {
			t.Fatal(err)
		}
		if det, _ := h.Analyze(t.Context(), obs); det != nil {
			t.Errorf("observation below MinRSSI produced detection")
		}
	})

	t.Run("min sightings suppresses first contact", func(t *testing.T) {
		h := startedWiFiHandler(t)
		th := DefaultThresholds()
		th.MinSightings = 3
		if err := h.SetThresholds(th); err != nil {
			t.Fatal(err)
		}
		if det, _ := h.Analyze(t.Context(), obs); det != nil {
			t.Errorf("observation below MinSightings produced detection")
		}
	})

	t.Run("same observation passes default gates", func(t *testing.T) {
		h := startedWiFiHandler(t)
		det, err := h.Analyze(t.Context(), obs)
		if err != nil || det == nil {
			t.Fatalf("got (%v, %v), want detection", det, err)
		}
	})
}

func TestWiFiMultipleIndicatorsRaiseConfidence(t *testing.T) {
	now := time.Now()
	h := startedWiFiHandler(t)

	single := &WiFiObservation{
		Timestamp:     now,
		SSID:          "pineapple",
		BSSID:         "aa:bb:cc:dd:ee:01",
		RSSI:          -65,
		Security:      SecurityWPA2,
		SightingCount: 2,
		FirstSeen:     now.Add(-time.Minute),
	}
	multi := &WiFiObservation{
		Timestamp:      now,
		SSID:           "pineapple",
		BSSID:          "aa:bb:cc:dd:ee:01",
		RSSI:           -65,
		Security:       SecurityWPA2,
		SightingCount:  2,
		FirstSeen:      now.Add(-time.Minute),
		SameSSIDBSSIDs: []string{"aa:bb:cc:dd:ee:02"},
	}

	sDet, err := h.Analyze(t.Context(), single)
	if err != nil || sDet == nil {
		t.Fatalf("single indicator: (%v, %v)", sDet, err)
	}
	mDet, err := h.Analyze(t.Context(), multi)
	if err != nil || mDet == nil {
		t.Fatalf("multi indicator: (%v, %v)", mDet, err)
	}
	if mDet.Score < sDet.Score {
		t.Errorf("corroborated detection scored %d, below single-indicator %d", mDet.Score, sDet.Score)
	}
}

func TestMatchSSIDSignature(t *testing.T) {
	tests := []struct {
		ssid string
		want taxonomy.DeviceKind
	}{
		{"Pineapple_Setup", taxonomy.KindWiFiPineapple},
		{"WIFIPHISHER", taxonomy.KindRogueAccessPoint},
		{"mana-toolkit", taxonomy.KindRogueAccessPoint},
		{"HomeNet", ""},
		{"", ""},
	}
	for _, tt := range tests {
		if _, got := matchSSIDSignature(tt.ssid); got != tt.want {
			t.Errorf("matchSSIDSignature(%q) kind = %q, want %q", tt.ssid, got, tt.want)
		}
	}
}
