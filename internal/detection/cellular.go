// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/scoring"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// CellularObservation is one serving-cell reading from the modem.
type CellularObservation struct {
	Timestamp time.Time `json:"timestamp"`
	CellID    string    `json:"cell_id"`
	LAC       int       `json:"lac"`
	MCC       string    `json:"mcc"`
	MNC       string    `json:"mnc"`
	RSSI      int       `json:"rssi"`

	// EncryptionDowngraded is set when the modem reports a cipher
	// downgrade (A5/0 or null cipher), the classic IMSI-catcher tell.
	EncryptionDowngraded bool `json:"encryption_downgraded,omitempty"`

	// NeighborCount is how many neighbor cells the modem reports. Real
	// towers advertise neighbors; simulators typically advertise none.
	NeighborCount int `json:"neighbor_count"`

	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

// Protocol implements Observation.
func (o *CellularObservation) Protocol() taxonomy.Protocol { return taxonomy.ProtocolCellular }

// ObservedAt implements Observation.
func (o *CellularObservation) ObservedAt() time.Time { return o.Timestamp }

// abnormallyStrongTower: a macro cell heard above this level at street
// level is suspiciously close.
const abnormallyStrongTower = -40

// strongForLACChange: a LAC change is only anomalous when the new cell
// is also loud, which is how simulators force reselection.
const strongForLACChange = -60

// Cellular base-likelihood catalog.
const (
	likelihoodEncryptionDowngrade = 75
	likelihoodUnknownNetworkCode  = 55
	likelihoodCellAnomaly         = 50
	likelihoodTowerSignal         = 40
)

// CellularHandler applies IMSI-catcher heuristics: cipher downgrades,
// unknown operator codes, abrupt LAC changes paired with a loud cell,
// and implausibly strong towers. It keeps the previous serving cell as
// per-protocol state, which is why cellular observations must arrive in
// delivery order.
type CellularHandler struct {
	handlerCore

	// knownOperators is the set of expected "mcc-mnc" codes for the
	// region, supplied at construction.
	knownOperators map[string]struct{}

	stateMu    sync.Mutex
	lastCellID string
	lastLAC    int
	hasPrev    bool
}

// NewCellularHandler creates a cellular handler. knownOperators lists
// the expected "mcc-mnc" codes (e.g. "310-260"); an empty list disables
// the unknown-network-code check.
func NewCellularHandler(knownOperators []string) *CellularHandler {
	known := make(map[string]struct{}, len(knownOperators))
	for _, op := range knownOperators {
		known[op] = struct{}{}
	}
	return &CellularHandler{
		handlerCore:    newHandlerCore(),
		knownOperators: known,
	}
}

// Protocol implements Handler.
func (h *CellularHandler) Protocol() taxonomy.Protocol { return taxonomy.ProtocolCellular }

// SupportedDeviceKinds implements Handler.
func (h *CellularHandler) SupportedDeviceKinds() []taxonomy.DeviceKind {
	return []taxonomy.DeviceKind{
		taxonomy.KindIMSICatcher,
		taxonomy.KindCellSiteSimulator,
		taxonomy.KindRogueBaseStation,
	}
}

// SupportedMethods implements Handler.
func (h *CellularHandler) SupportedMethods() []taxonomy.DetectionMethod {
	return []taxonomy.DetectionMethod{
		taxonomy.MethodEncryptionDowngrade,
		taxonomy.MethodUnknownNetworkCode,
		taxonomy.MethodCellAnomaly,
		taxonomy.MethodTowerSignalAnomaly,
	}
}

// Analyze implements Handler.
func (h *CellularHandler) Analyze(ctx context.Context, obs Observation) (*Detection, error) {
	monitoring, thresholds, lat, lon := h.snapshot()
	if !monitoring {
		return nil, nil
	}

	cell, ok := obs.(*CellularObservation)
	if !ok {
		return nil, fmt.Errorf("cellular handler: unexpected observation type %T", obs)
	}
	if cell.CellID == "" || !validRSSI(cell.RSSI) {
		logging.Ctx(ctx).Debug().Str("cell_id", cell.CellID).Int("rssi", cell.RSSI).
			Msg("rejecting malformed cellular observation")
		return nil, nil
	}

	lacChanged, cellChanged := h.rememberCell(cell)

	var (
		method     taxonomy.DetectionMethod
		kind       taxonomy.DeviceKind
		likelihood int
		quality    taxonomy.MatchQuality
		factors    []taxonomy.ConfidenceFactor
		detail     string
		indicators int
	)

	// Corroborating signals shared by all cellular patterns.
	if cell.NeighborCount == 0 {
		indicators++
	}
	if cell.RSSI != RSSIUnknown && cell.RSSI > abnormallyStrongTower {
		indicators++
	}

	switch {
	case cell.EncryptionDowngraded:
		method = taxonomy.MethodEncryptionDowngrade
		kind = taxonomy.KindIMSICatcher
		likelihood = likelihoodEncryptionDowngrade
		quality = taxonomy.MatchStrong
		detail = fmt.Sprintf("cipher downgrade on cell %s", cell.CellID)

	case h.unknownOperator(cell):
		method = taxonomy.MethodUnknownNetworkCode
		kind = taxonomy.KindRogueBaseStation
		likelihood = likelihoodUnknownNetworkCode
		quality = taxonomy.MatchPartial
		detail = fmt.Sprintf("unknown network code %s-%s", cell.MCC, cell.MNC)

	case lacChanged && cellChanged && cell.RSSI != RSSIUnknown && cell.RSSI > strongForLACChange:
		method = taxonomy.MethodCellAnomaly
		kind = taxonomy.KindCellSiteSimulator
		likelihood = likelihoodCellAnomaly
		quality = taxonomy.MatchHeuristic
		detail = fmt.Sprintf("abrupt LAC change to %d from loud cell %s (%d dBm)",
			cell.LAC, cell.CellID, cell.RSSI)

	case cell.RSSI != RSSIUnknown && cell.RSSI > abnormallyStrongTower:
		method = taxonomy.MethodTowerSignalAnomaly
		kind = taxonomy.KindRogueBaseStation
		likelihood = likelihoodTowerSignal
		quality = taxonomy.MatchHeuristic
		detail = fmt.Sprintf("tower at %d dBm, implausibly strong", cell.RSSI)

	default:
		return nil, nil
	}

	if indicators >= 2 {
		factors = append(factors, taxonomy.FactorMultiIndicator)
	}
	if f, applies := taxonomy.SignalFactor(cell.RSSI); applies && cell.RSSI != RSSIUnknown {
		factors = append(factors, f)
	}

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
		taxonomy.ProtocolCellular, method, kind, cell.CellID,
		cell.Timestamp, cell.Latitude, cell.Longitude, lat, lon,
		cell.RSSI, detail, result,
	), nil
}

// rememberCell updates the previous-cell state and reports whether the
// LAC or the serving cell changed since the last observation.
func (h *CellularHandler) rememberCell(cell *CellularObservation) (lacChanged, cellChanged bool) {
	h.stateMu.Lock()
	defer h.stateMu.Unlock()

	if h.hasPrev {
		lacChanged = cell.LAC != h.lastLAC
		cellChanged = cell.CellID != h.lastCellID
	}
	h.lastCellID = cell.CellID
	h.lastLAC = cell.LAC
	h.hasPrev = true
	return lacChanged, cellChanged
}

// unknownOperator reports whether the observation's network code is
// absent from the expected-operator set.
func (h *CellularHandler) unknownOperator(cell *CellularObservation) bool {
	if len(h.knownOperators) == 0 || cell.MCC == "" || cell.MNC == "" {
		return false
	}
	_, known := h.knownOperators[cell.MCC+"-"+cell.MNC]
	return !known
}

// Close implements Handler.
func (h *CellularHandler) Close() error {
	h.stateMu.Lock()
	h.hasPrev = false
	h.stateMu.Unlock()
	return h.handlerCore.Close()
}
