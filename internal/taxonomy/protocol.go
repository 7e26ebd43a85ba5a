// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package taxonomy

// Protocol identifies the sensing protocol that produced an observation.
type Protocol string

const (
	ProtocolWiFi       Protocol = "wifi"
	ProtocolBLE        Protocol = "ble"
	ProtocolCellular   Protocol = "cellular"
	ProtocolGNSS       Protocol = "gnss"
	ProtocolUltrasonic Protocol = "ultrasonic"
	ProtocolRF         Protocol = "rf"
)

// Protocols lists every sensing protocol in a stable order.
var Protocols = []Protocol{
	ProtocolWiFi,
	ProtocolBLE,
	ProtocolCellular,
	ProtocolGNSS,
	ProtocolUltrasonic,
	ProtocolRF,
}

// Valid reports whether p is one of the defined protocols.
func (p Protocol) Valid() bool {
	switch p {
	case ProtocolWiFi, ProtocolBLE, ProtocolCellular, ProtocolGNSS, ProtocolUltrasonic, ProtocolRF:
		return true
	}
	return false
}

// String implements fmt.Stringer.
func (p Protocol) String() string {
	return string(p)
}
