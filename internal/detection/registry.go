// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package detection

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// ErrNoHandler is returned by Dispatch when no handler is registered for
// the observation's protocol.
var ErrNoHandler = errors.New("no handler registered for protocol")

// Registry owns the per-protocol handlers, routes observations to them,
// and computes the aggregate incident view. Lookups vastly outnumber
// registrations, so the maps sit behind a reader-writer lock.
type Registry struct {
	mu         sync.RWMutex
	byProtocol map[taxonomy.Protocol]Handler
	byKind     map[taxonomy.DeviceKind]Handler
}

// NewRegistry creates an empty registry. One instance per process is the
// expected topology.
func NewRegistry() *Registry {
	return &Registry{
		byProtocol: make(map[taxonomy.Protocol]Handler),
		byKind:     make(map[taxonomy.DeviceKind]Handler),
	}
}

// Register adds a handler. A second handler for the same protocol is
// rejected; kind routing is first-registered-wins when capability
// declarations overlap.
func (r *Registry) Register(h Handler) error {
	if h == nil {
		return errors.New("registry: nil handler")
	}
	proto := h.Protocol()
	if !proto.Valid() {
		return fmt.Errorf("registry: invalid protocol %q", proto)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.byProtocol[proto]; exists {
		return fmt.Errorf("registry: handler already registered for protocol %q", proto)
	}
	r.byProtocol[proto] = h
	for _, kind := range h.SupportedDeviceKinds() {
		if _, exists := r.byKind[kind]; !exists {
			r.byKind[kind] = h
		}
	}

	logging.Debug().
		Str("protocol", string(proto)).
		Int("device_kinds", len(h.SupportedDeviceKinds())).
		Msg("Detection handler registered")
	return nil
}

// HandlerFor returns the handler for a protocol, if one is registered.
func (r *Registry) HandlerFor(proto taxonomy.Protocol) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byProtocol[proto]
	return h, ok
}

// HandlerForKind returns the handler that declared the given device
// kind, if any.
func (r *Registry) HandlerForKind(kind taxonomy.DeviceKind) (Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	h, ok := r.byKind[kind]
	return h, ok
}

// Handlers returns the registered handlers in stable protocol order.
func (r *Registry) Handlers() []Handler {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Handler, 0, len(r.byProtocol))
	for _, proto := range taxonomy.Protocols {
		if h, ok := r.byProtocol[proto]; ok {
			out = append(out, h)
		}
	}
	return out
}

// Dispatch routes an observation to its protocol's handler. A nil
// detection with a nil error means nothing cleared the thresholds.
func (r *Registry) Dispatch(ctx context.Context, obs Observation) (*Detection, error) {
	if obs == nil {
		return nil, errors.New("registry: nil observation")
	}
	h, ok := r.HandlerFor(obs.Protocol())
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNoHandler, obs.Protocol())
	}

	det, err := h.Analyze(ctx, obs)
	if err != nil {
		return nil, fmt.Errorf("registry: analyze %q: %w", obs.Protocol(), err)
	}
	if det != nil {
		logging.Info().
			Str("protocol", string(det.Protocol)).
			Str("device_kind", string(det.Kind)).
			Str("method", string(det.Method)).
			Int("score", det.Score).
			Str("severity", string(det.Severity)).
			Msg("Detection produced")
	}
	return det, nil
}

// StartAll starts monitoring on every registered handler.
func (r *Registry) StartAll() {
	for _, h := range r.Handlers() {
		h.StartMonitoring()
	}
}

// StopAll stops monitoring on every registered handler.
func (r *Registry) StopAll() {
	for _, h := range r.Handlers() {
		h.StopMonitoring()
	}
}

// UpdateLocation pushes the current position into every handler.
func (r *Registry) UpdateLocation(lat, lon float64) {
	for _, h := range r.Handlers() {
		h.UpdateLocation(lat, lon)
	}
}

// Close stops and closes every handler and empties the routing maps.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, proto := range taxonomy.Protocols {
		h, ok := r.byProtocol[proto]
		if !ok {
			continue
		}
		h.StopMonitoring()
		if err := h.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close %q handler: %w", proto, err))
		}
	}
	r.byProtocol = make(map[taxonomy.Protocol]Handler)
	r.byKind = make(map[taxonomy.DeviceKind]Handler)
	return errors.Join(errs...)
}
