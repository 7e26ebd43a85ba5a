// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"context"
	"fmt"
	"time"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/scoring"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// BLEObservation is one advertisement sighting with its parsed payload
// and the sighting history the scanner keeps per advertising MAC.
type BLEObservation struct {
	Timestamp        time.Time `json:"timestamp"`
	MAC              string    `json:"mac"`
	RSSI             int       `json:"rssi"`
	ManufacturerID   uint16    `json:"manufacturer_id,omitempty"`
	ManufacturerData []byte    `json:"manufacturer_data,omitempty"`
	ServiceUUIDs     []uint16  `json:"service_uuids,omitempty"`

	// AdvertisingIntervalMs is the observed mean advertising interval;
	// spam floods advertise far faster than legitimate devices.
	AdvertisingIntervalMs int `json:"advertising_interval_ms,omitempty"`

	SightingCount int       `json:"sighting_count"`
	FirstSeen     time.Time `json:"first_seen"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Protocol implements Observation.
func (o *BLEObservation) Protocol() taxonomy.Protocol { return taxonomy.ProtocolBLE }

// ObservedAt implements Observation.
func (o *BLEObservation) ObservedAt() time.Time { return o.Timestamp }

// Bluetooth SIG company identifiers.
const (
	manufacturerApple   uint16 = 0x004C
	manufacturerSamsung uint16 = 0x0075
)

// Apple manufacturer-data type bytes.
const (
	appleTypeProximityPairing = 0x07 // AirPods and friends
	appleTypeNearbyAction     = 0x0F
	appleTypeOfflineFinding   = 0x12 // FindMy / AirTag
)

// Tracker service UUIDs.
const (
	tileServiceUUIDFeed    uint16 = 0xFEED
	tileServiceUUIDFeec    uint16 = 0xFEEC
	chipoloServiceUUID     uint16 = 0xFE50
	smartThingsFindService uint16 = 0xFD5A
)

// spamAdvertisingIntervalMs: sustained advertising faster than this is
// flood behavior, not a real accessory.
const spamAdvertisingIntervalMs = 30

// BLE base-likelihood catalog.
const (
	likelihoodTrackerFollowing = 70
	likelihoodTrackerSignature = 50
	likelihoodBLESpam          = 35
)

// BLEHandler detects trackers (AirTag, FindMy accessories, Tile,
// SmartTag, Chipolo), tracker-following behavior, and popup-spam
// floods.
type BLEHandler struct {
	handlerCore
}

// NewBLEHandler creates a BLE handler with default thresholds.
func NewBLEHandler() *BLEHandler {
	return &BLEHandler{handlerCore: newHandlerCore()}
}

// Protocol implements Handler.
func (h *BLEHandler) Protocol() taxonomy.Protocol { return taxonomy.ProtocolBLE }

// SupportedDeviceKinds implements Handler.
func (h *BLEHandler) SupportedDeviceKinds() []taxonomy.DeviceKind {
	return []taxonomy.DeviceKind{
		taxonomy.KindAirTag,
		taxonomy.KindFindMyAccessory,
		taxonomy.KindTileTracker,
		taxonomy.KindSmartTag,
		taxonomy.KindChipoloTracker,
		taxonomy.KindUnknownBLETracker,
		taxonomy.KindBLESpamDevice,
	}
}

// SupportedMethods implements Handler.
func (h *BLEHandler) SupportedMethods() []taxonomy.DetectionMethod {
	return []taxonomy.DetectionMethod{
		taxonomy.MethodTrackerSignature,
		taxonomy.MethodTrackerFollowing,
		taxonomy.MethodBLESpam,
	}
}

// Analyze implements Handler.
func (h *BLEHandler) Analyze(ctx context.Context, obs Observation) (*Detection, error) {
	monitoring, thresholds, lat, lon := h.snapshot()
	if !monitoring {
		return nil, nil
	}

	ble, ok := obs.(*BLEObservation)
	if !ok {
		return nil, fmt.Errorf("ble handler: unexpected observation type %T", obs)
	}
	if !validRSSI(ble.RSSI) || ble.MAC == "" {
		logging.Ctx(ctx).Debug().Str("mac", ble.MAC).Int("rssi", ble.RSSI).
			Msg("rejecting malformed ble observation")
		return nil, nil
	}
	if ble.RSSI != RSSIUnknown && ble.RSSI < thresholds.MinRSSI {
		return nil, nil
	}
	if ble.SightingCount < thresholds.MinSightings {
		return nil, nil
	}

	now := ble.Timestamp
	if now.IsZero() {
		now = time.Now()
	}

	kind, quality, signature := identifyTracker(ble)
	var (
		method     taxonomy.DetectionMethod
		likelihood int
		factors    []taxonomy.ConfidenceFactor
		detail     string
	)

	switch {
	case kind != "" && isFollowing(ble, now):
		// The same tracker keeps showing up: following behavior, the
		// highest-value BLE pattern.
		method = taxonomy.MethodTrackerFollowing
		likelihood = likelihoodTrackerFollowing
		factors = append(factors, taxonomy.FactorBehavioralMatch)
		detail = fmt.Sprintf("%s seen %d times over %s, possible following",
			kind, ble.SightingCount, now.Sub(ble.FirstSeen).Round(time.Second))

	case kind != "":
		method = taxonomy.MethodTrackerSignature
		likelihood = likelihoodTrackerSignature
		detail = fmt.Sprintf("advertisement matches %s signature", kind)

	case isSpamFlood(ble):
		kind = taxonomy.KindBLESpamDevice
		method = taxonomy.MethodBLESpam
		likelihood = likelihoodBLESpam
		quality = taxonomy.MatchHeuristic
		detail = fmt.Sprintf("popup-spam flood, advertising every %dms",
			ble.AdvertisingIntervalMs)

	default:
		return nil, nil
	}

	if signature {
		factors = append(factors, taxonomy.FactorKnownSignature)
	}
	if f, applies := taxonomy.SignalFactor(ble.RSSI); applies && ble.RSSI != RSSIUnknown {
		factors = append(factors, f)
	}
	factors = append(factors, persistenceFactors(ble.SightingCount, ble.FirstSeen, now)...)

	result := scoring.Score(scoring.Input{
		BaseLikelihood: likelihood,
		Kind:           kind,
		Quality:        quality,
		Factors:        factors,
	})
	if !gate(thresholds, result) {
		return nil, nil
	}

	return newDetection(
		taxonomy.ProtocolBLE, method, kind, ble.MAC,
		ble.Timestamp, ble.Latitude, ble.Longitude, lat, lon,
		ble.RSSI, detail, result,
	), nil
}

// identifyTracker matches the advertisement against the known tracker
// signatures. The third return reports whether the match is an exact
// known signature (contributing the known-signature factor) rather than
// a family-level guess.
func identifyTracker(ble *BLEObservation) (taxonomy.DeviceKind, taxonomy.MatchQuality, bool) {
	// Service-UUID signatures are unambiguous.
	for _, u := range ble.ServiceUUIDs {
		switch u {
		case tileServiceUUIDFeed, tileServiceUUIDFeec:
			return taxonomy.KindTileTracker, taxonomy.MatchExact, true
		case chipoloServiceUUID:
			return taxonomy.KindChipoloTracker, taxonomy.MatchExact, true
		case smartThingsFindService:
			return taxonomy.KindSmartTag, taxonomy.MatchExact, true
		}
	}

	if len(ble.ManufacturerData) < 2 {
		return "", taxonomy.MatchPartial, false
	}

	switch ble.ManufacturerID {
	case manufacturerApple:
		if ble.ManufacturerData[0] == appleTypeOfflineFinding {
			// Full offline-finding payloads are AirTags; shorter ones are
			// other FindMy accessories.
			if len(ble.ManufacturerData) >= 25 {
				return taxonomy.KindAirTag, taxonomy.MatchExact, true
			}
			return taxonomy.KindFindMyAccessory, taxonomy.MatchStrong, false
		}
	case manufacturerSamsung:
		if len(ble.ManufacturerData) >= 4 {
			return taxonomy.KindSmartTag, taxonomy.MatchStrong, false
		}
	}

	return "", taxonomy.MatchPartial, false
}

// isFollowing reports whether the sighting history indicates the device
// is moving with the user rather than being passed once.
func isFollowing(ble *BLEObservation, now time.Time) bool {
	if ble.SightingCount < persistenceMinSightings {
		return false
	}
	return !ble.FirstSeen.IsZero() && now.Sub(ble.FirstSeen) >= persistenceMinElapsed
}

// isSpamFlood flags Apple proximity-pairing or nearby-action floods with
// implausibly fast advertising.
func isSpamFlood(ble *BLEObservation) bool {
	if ble.ManufacturerID != manufacturerApple || len(ble.ManufacturerData) < 1 {
		return false
	}
	t := ble.ManufacturerData[0]
	if t != appleTypeProximityPairing && t != appleTypeNearbyAction {
		return false
	}
	return ble.AdvertisingIntervalMs > 0 && ble.AdvertisingIntervalMs <= spamAdvertisingIntervalMs
}
