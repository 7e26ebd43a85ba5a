// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package api

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/goccy/go-json"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/store"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// maxListLimit caps one detections page.
const maxListLimit = 1000

// parseFilter builds a store filter from list query parameters.
func parseFilter(r *http.Request) (store.Filter, error) {
	var f store.Filter
	q := r.URL.Query()

	if v := q.Get("protocol"); v != "" {
		p := taxonomy.Protocol(v)
		if !p.Valid() {
			return f, fmt.Errorf("unknown protocol %q", v)
		}
		f.Protocol = p
	}

	if v := q.Get("min_severity"); v != "" {
		level := taxonomy.ThreatLevel(v)
		if level.Rank() == 0 {
			return f, fmt.Errorf("unknown severity %q", v)
		}
		f.MinSeverity = level
	}

	if v := q.Get("since"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("since must be RFC3339: %w", err)
		}
		f.Since = ts
	}

	if v := q.Get("active"); v != "" {
		active, err := strconv.ParseBool(v)
		if err != nil {
			return f, fmt.Errorf("active must be a boolean: %w", err)
		}
		f.ActiveOnly = active
	}

	f.Limit = maxListLimit
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 1 {
			return f, fmt.Errorf("limit must be a positive integer")
		}
		if limit < maxListLimit {
			f.Limit = limit
		}
	}

	return f, nil
}

// parseWindow reads the window query parameter, falling back to the
// default aggregation window.
func parseWindow(r *http.Request) (time.Duration, error) {
	v := r.URL.Query().Get("window")
	if v == "" {
		return detection.DefaultWindow, nil
	}

	window, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("window must be a duration like 30m: %w", err)
	}
	if window <= 0 {
		return 0, fmt.Errorf("window must be positive")
	}
	return window, nil
}

// ListDetections returns stored detections, newest first.
func (s *Server) ListDetections(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	f, err := parseFilter(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	detections, err := s.store.List(r.Context(), f)
	if err != nil {
		rw.StoreError(err)
		return
	}

	rw.SuccessWithCount(detections, len(detections))
}

// GetDetection returns one detection by id.
func (s *Server) GetDetection(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)
	id := chi.URLParam(r, "id")

	det, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			rw.NotFound("no detection with id " + id)
			return
		}
		rw.StoreError(err)
		return
	}

	rw.Success(det)
}

// Aggregate computes the combined incident assessment over the window.
func (s *Server) Aggregate(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	window, err := parseWindow(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	now := time.Now().UTC()
	detections, err := s.store.List(r.Context(), store.Filter{Since: now.Add(-window)})
	if err != nil {
		rw.StoreError(err)
		return
	}

	agg := s.registry.Aggregate(detections, window, now)
	rw.Success(agg)
}

// Statistics returns detection count projections over the window.
func (s *Server) Statistics(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	window, err := parseWindow(r)
	if err != nil {
		rw.BadRequest(err.Error())
		return
	}

	detections, err := s.store.List(r.Context(), store.Filter{Since: time.Now().UTC().Add(-window)})
	if err != nil {
		rw.StoreError(err)
		return
	}

	rw.Success(detection.ComputeStatistics(detections))
}

// HandlerInfo describes one registered protocol handler.
type HandlerInfo struct {
	Protocol   taxonomy.Protocol          `json:"protocol"`
	Kinds      []taxonomy.DeviceKind      `json:"device_kinds"`
	Methods    []taxonomy.DetectionMethod `json:"methods"`
	Thresholds detection.Thresholds       `json:"thresholds"`
}

// ListHandlers enumerates the registered handlers in protocol order.
func (s *Server) ListHandlers(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	handlers := s.registry.Handlers()
	infos := make([]HandlerInfo, 0, len(handlers))
	for _, h := range handlers {
		infos = append(infos, HandlerInfo{
			Protocol:   h.Protocol(),
			Kinds:      h.SupportedDeviceKinds(),
			Methods:    h.SupportedMethods(),
			Thresholds: h.Thresholds(),
		})
	}

	rw.SuccessWithCount(infos, len(infos))
}

// handlerFromPath resolves the {protocol} URL parameter to a handler.
func (s *Server) handlerFromPath(rw *ResponseWriter, r *http.Request) (detection.Handler, bool) {
	proto := taxonomy.Protocol(chi.URLParam(r, "protocol"))
	if !proto.Valid() {
		rw.BadRequest(fmt.Sprintf("unknown protocol %q", proto))
		return nil, false
	}

	h, ok := s.registry.HandlerFor(proto)
	if !ok {
		rw.NotFound(fmt.Sprintf("no handler registered for protocol %q", proto))
		return nil, false
	}
	return h, true
}

// GetThresholds returns the current threshold profile of one handler.
func (s *Server) GetThresholds(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	h, ok := s.handlerFromPath(rw, r)
	if !ok {
		return
	}

	rw.Success(h.Thresholds())
}

// ThresholdsUpdateRequest reconfigures one handler. Exactly one of
// Preset and Thresholds must be set.
type ThresholdsUpdateRequest struct {
	Preset     string                `json:"preset,omitempty"`
	Thresholds *detection.Thresholds `json:"thresholds,omitempty"`
}

// UpdateThresholds applies a preset or an explicit threshold profile to
// one handler. Contradictory values are rejected before anything is
// applied, so a failed update leaves the handler unchanged.
func (s *Server) UpdateThresholds(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	h, ok := s.handlerFromPath(rw, r)
	if !ok {
		return
	}

	var req ThresholdsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		rw.BadRequest("invalid request body: " + err.Error())
		return
	}

	var t detection.Thresholds
	switch {
	case req.Preset != "" && req.Thresholds != nil:
		rw.BadRequest("preset and thresholds are mutually exclusive")
		return
	case req.Preset != "":
		var err error
		t, err = detection.PresetThresholds(req.Preset)
		if err != nil {
			rw.BadRequest(err.Error())
			return
		}
	case req.Thresholds != nil:
		t = *req.Thresholds
	default:
		rw.BadRequest("either preset or thresholds is required")
		return
	}

	if err := h.SetThresholds(t); err != nil {
		rw.ValidationError("thresholds rejected", err.Error())
		return
	}

	rw.Success(h.Thresholds())
}
