// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package taxonomy

// DetectionMethod identifies how a detection was produced. Each protocol
// handler owns a disjoint subset of methods; the groupings below mirror
// that ownership.
type DetectionMethod string

// WiFi methods.
const (
	MethodEvilTwin        DetectionMethod = "evil_twin"
	MethodDeauthFlood     DetectionMethod = "deauth_flood"
	MethodKarmaProbe      DetectionMethod = "karma_probe"
	MethodWeakEncryption  DetectionMethod = "weak_encryption"
	MethodOpenHoneypot    DetectionMethod = "open_honeypot"
	MethodHiddenStrong    DetectionMethod = "hidden_strong"
	MethodSSIDSignature   DetectionMethod = "ssid_signature"
)

// BLE methods.
const (
	MethodTrackerSignature DetectionMethod = "tracker_signature"
	MethodTrackerFollowing DetectionMethod = "tracker_following"
	MethodBLESpam          DetectionMethod = "ble_spam"
)

// Cellular methods.
const (
	MethodEncryptionDowngrade DetectionMethod = "encryption_downgrade"
	MethodCellAnomaly         DetectionMethod = "cell_anomaly"
	MethodUnknownNetworkCode  DetectionMethod = "unknown_network_code"
	MethodTowerSignalAnomaly  DetectionMethod = "tower_signal_anomaly"
)

// GNSS methods.
const (
	MethodFixDiscontinuity  DetectionMethod = "fix_discontinuity"
	MethodCN0Anomaly        DetectionMethod = "cn0_anomaly"
	MethodGNSSJamming       DetectionMethod = "gnss_jamming"
)

// Ultrasonic and generic RF methods.
const (
	MethodUltrasonicBeacon DetectionMethod = "ultrasonic_beacon"
	MethodRFSignature      DetectionMethod = "rf_signature"
	MethodRFAnomaly        DetectionMethod = "rf_anomaly"
)

// String implements fmt.Stringer.
func (m DetectionMethod) String() string {
	return string(m)
}
