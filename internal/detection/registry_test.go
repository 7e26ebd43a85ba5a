// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

func newTestRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	for _, h := range []Handler{
		NewWiFiHandler(),
		NewBLEHandler(),
		NewCellularHandler(nil),
		NewGNSSHandler(),
		NewUltrasonicHandler(),
		NewRFHandler(),
	} {
		if err := r.Register(h); err != nil {
			t.Fatalf("Register(%s): %v", h.Protocol(), err)
		}
	}
	t.Cleanup(func() {
		if err := r.Close(); err != nil {
			t.Errorf("Close: %v", err)
		}
	})
	return r
}

func TestRegistryRegister(t *testing.T) {
	r := newTestRegistry(t)

	if err := r.Register(NewWiFiHandler()); err == nil {
		t.Error("duplicate protocol registration must fail")
	}
	if err := r.Register(nil); err == nil {
		t.Error("nil handler registration must fail")
	}

	if h, ok := r.HandlerFor(taxonomy.ProtocolWiFi); !ok || h.Protocol() != taxonomy.ProtocolWiFi {
		t.Errorf("HandlerFor(wifi) = (%v, %v)", h, ok)
	}
	if _, ok := r.HandlerFor(taxonomy.Protocol("sonar")); ok {
		t.Error("HandlerFor accepted an unregistered protocol")
	}

	if h, ok := r.HandlerForKind(taxonomy.KindAirTag); !ok || h.Protocol() != taxonomy.ProtocolBLE {
		t.Errorf("HandlerForKind(airtag) = (%v, %v)", h, ok)
	}
	if h, ok := r.HandlerForKind(taxonomy.KindIMSICatcher); !ok || h.Protocol() != taxonomy.ProtocolCellular {
		t.Errorf("HandlerForKind(imsi_catcher) = (%v, %v)", h, ok)
	}

	handlers := r.Handlers()
	if len(handlers) != 6 {
		t.Fatalf("Handlers() returned %d handlers, want 6", len(handlers))
	}
	for i := 1; i < len(handlers); i++ {
		// Stable protocol order, so repeated calls iterate identically.
		if handlers[i-1].Protocol() == handlers[i].Protocol() {
			t.Errorf("duplicate protocol at %d", i)
		}
	}
}

func TestRegistryDispatch(t *testing.T) {
	r := newTestRegistry(t)
	r.StartAll()

	now := time.Now()
	det, err := r.Dispatch(t.Context(), &WiFiObservation{
		Timestamp:     now,
		SSID:          "pineapple",
		BSSID:         "aa:bb:cc:dd:ee:01",
		RSSI:          -55,
		Security:      SecurityWPA2,
		SightingCount: 3,
		FirstSeen:     now.Add(-10 * time.Minute),
	})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if det == nil || det.Protocol != taxonomy.ProtocolWiFi {
		t.Fatalf("Dispatch = %+v, want wifi detection", det)
	}

	// Nothing suspicious: nil detection, nil error.
	det, err = r.Dispatch(t.Context(), &WiFiObservation{
		Timestamp:     now,
		SSID:          "HomeNet",
		BSSID:         "aa:bb:cc:dd:ee:02",
		RSSI:          -65,
		Security:      SecurityWPA3,
		SightingCount: 3,
	})
	if err != nil || det != nil {
		t.Errorf("benign dispatch = (%+v, %v), want (nil, nil)", det, err)
	}

	if _, err := r.Dispatch(t.Context(), nil); err == nil {
		t.Error("nil observation must error")
	}
}

type sonarObservation struct{ ts time.Time }

func (o *sonarObservation) Protocol() taxonomy.Protocol { return taxonomy.Protocol("sonar") }
func (o *sonarObservation) ObservedAt() time.Time       { return o.ts }

func TestRegistryDispatchUnknownProtocol(t *testing.T) {
	r := newTestRegistry(t)
	r.StartAll()

	_, err := r.Dispatch(t.Context(), &sonarObservation{ts: time.Now()})
	if !errors.Is(err, ErrNoHandler) {
		t.Errorf("Dispatch unknown protocol err = %v, want ErrNoHandler", err)
	}
}

func TestRegistryLifecycleFanout(t *testing.T) {
	r := newTestRegistry(t)

	r.StartAll()
	for _, h := range r.Handlers() {
		obsMonitoring(t, h, true)
	}

	r.UpdateLocation(48.85, 2.35)

	r.StopAll()
	for _, h := range r.Handlers() {
		obsMonitoring(t, h, false)
	}
}

// obsMonitoring probes the monitoring flag through Analyze with a
// wrong-typed observation: a monitoring handler rejects the type with an
// error, a stopped one returns (nil, nil) before looking at it.
func obsMonitoring(t *testing.T, h Handler, want bool) {
	t.Helper()
	_, err := h.Analyze(context.Background(), &sonarObservation{ts: time.Now()})
	if got := err != nil; got != want {
		t.Errorf("%s handler monitoring = %v, want %v", h.Protocol(), got, want)
	}
}

func TestRegistryConcurrentDispatch(t *testing.T) {
	r := newTestRegistry(t)
	r.StartAll()
	now := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := r.Dispatch(context.Background(), &WiFiObservation{
					Timestamp:     now,
					SSID:          "pineapple",
					BSSID:         "aa:bb:cc:dd:ee:01",
					RSSI:          -55,
					Security:      SecurityWPA2,
					SightingCount: 3,
					FirstSeen:     now.Add(-10 * time.Minute),
				}); err != nil {
					t.Errorf("wifi dispatch: %v", err)
					return
				}
			}
		}()
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if _, err := r.Dispatch(context.Background(), &BLEObservation{
					Timestamp:        now,
					MAC:              "d0:01:02:03:04:05",
					RSSI:             -58,
					ManufacturerID:   manufacturerApple,
					ManufacturerData: offlineFindingPayload(25),
					SightingCount:    6,
					FirstSeen:        now.Add(-20 * time.Minute),
				}); err != nil {
					t.Errorf("ble dispatch: %v", err)
					return
				}
			}
		}()
	}
	wg.Wait()
}
