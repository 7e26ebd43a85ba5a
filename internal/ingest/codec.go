// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package ingest

import (
	"fmt"

	"github.com/goccy/go-json"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// envelope carries one observation on the queue. The protocol field
// selects the concrete payload type on the way out.
type envelope struct {
	Protocol taxonomy.Protocol `json:"protocol"`
	Payload  json.RawMessage   `json:"payload"`
}

// EncodeObservation wraps an observation in its transport envelope.
func EncodeObservation(obs detection.Observation) ([]byte, error) {
	if obs == nil {
		return nil, fmt.Errorf("nil observation")
	}

	payload, err := json.Marshal(obs)
	if err != nil {
		return nil, fmt.Errorf("marshaling %s observation: %w", obs.Protocol(), err)
	}

	return json.Marshal(envelope{
		Protocol: obs.Protocol(),
		Payload:  payload,
	})
}

// DecodeObservation restores the concrete observation type from its
// transport envelope.
func DecodeObservation(raw []byte) (detection.Observation, error) {
	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("unmarshaling envelope: %w", err)
	}

	var obs detection.Observation
	switch env.Protocol {
	case taxonomy.ProtocolWiFi:
		obs = &detection.WiFiObservation{}
	case taxonomy.ProtocolBLE:
		obs = &detection.BLEObservation{}
	case taxonomy.ProtocolCellular:
		obs = &detection.CellularObservation{}
	case taxonomy.ProtocolGNSS:
		obs = &detection.GNSSObservation{}
	case taxonomy.ProtocolUltrasonic:
		obs = &detection.UltrasonicObservation{}
	case taxonomy.ProtocolRF:
		obs = &detection.RFObservation{}
	default:
		return nil, fmt.Errorf("unknown protocol %q in envelope", env.Protocol)
	}

	if err := json.Unmarshal(env.Payload, obs); err != nil {
		return nil, fmt.Errorf("unmarshaling %s payload: %w", env.Protocol, err)
	}
	return obs, nil
}
