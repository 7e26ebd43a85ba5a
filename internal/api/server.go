// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	gorillaws "github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/store"
	"github.com/kestrelsec/kestrel/internal/websocket"
)

// Config holds the HTTP surface configuration.
type Config struct {
	// CORSOrigins lists origins allowed for browser clients. Empty means
	// no browser origin is accepted.
	CORSOrigins []string

	// RateLimitRequests and RateLimitWindow bound requests per client IP.
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// RateLimitDisabled turns rate limiting off, for tests and local use.
	RateLimitDisabled bool
}

// Server wires the detection core, the detection store and the
// websocket hub into one HTTP handler.
type Server struct {
	store    store.DetectionStore
	registry *detection.Registry
	hub      *websocket.Hub
	cfg      Config
	mw       *ChiMiddleware
	started  time.Time
}

// NewServer creates the HTTP server surface. The hub may be nil when
// live streaming is disabled.
func NewServer(st store.DetectionStore, reg *detection.Registry, hub *websocket.Hub, cfg Config) *Server {
	mwCfg := DefaultChiMiddlewareConfig()
	mwCfg.CORSAllowedOrigins = cfg.CORSOrigins
	if cfg.RateLimitRequests > 0 {
		mwCfg.RateLimitRequests = cfg.RateLimitRequests
	}
	if cfg.RateLimitWindow > 0 {
		mwCfg.RateLimitWindow = cfg.RateLimitWindow
	}
	mwCfg.RateLimitDisabled = cfg.RateLimitDisabled

	return &Server{
		store:    st,
		registry: reg,
		hub:      hub,
		cfg:      cfg,
		mw:       NewChiMiddleware(mwCfg),
		started:  time.Now(),
	}
}

// Routes builds the chi router for the full API surface.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()

	r.Use(CorrelationIDMiddleware())
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.mw.CORS())

	r.With(s.mw.RateLimitCustom(RateLimitHealth)).Get("/healthz", s.Health)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", s.WebSocket)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.mw.RateLimit())
		r.Use(SecurityHeaders())
		r.Use(PrometheusMetrics())

		r.Get("/detections", s.ListDetections)
		r.Get("/detections/{id}", s.GetDetection)
		r.Get("/aggregate", s.Aggregate)
		r.Get("/statistics", s.Statistics)

		r.Get("/handlers", s.ListHandlers)
		r.Get("/handlers/{protocol}/thresholds", s.GetThresholds)
		r.With(s.mw.RateLimitCustom(RateLimitWrite)).Put("/handlers/{protocol}/thresholds", s.UpdateThresholds)
	})

	return r
}

// Health reports liveness plus a few cheap gauges for probes.
func (s *Server) Health(w http.ResponseWriter, r *http.Request) {
	rw := NewResponseWriter(w, r)

	clients := 0
	if s.hub != nil {
		clients = s.hub.GetClientCount()
	}

	rw.Success(map[string]interface{}{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(s.started).Seconds()),
		"handlers":       len(s.registry.Handlers()),
		"ws_clients":     clients,
	})
}

// upgrader accepts non-browser clients (no Origin header) outright;
// browser connections must match a configured CORS origin.
func (s *Server) upgrader() gorillaws.Upgrader {
	return gorillaws.Upgrader{
		ReadBufferSize:   1024,
		WriteBufferSize:  1024,
		HandshakeTimeout: 10 * time.Second,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, allowed := range s.cfg.CORSOrigins {
				if allowed == "*" || allowed == origin {
					return true
				}
			}
			logging.Warn().Str("origin", origin).Msg("websocket connection rejected from unauthorized origin")
			return false
		},
	}
}

// WebSocket upgrades the connection and attaches the client to the hub.
func (s *Server) WebSocket(w http.ResponseWriter, r *http.Request) {
	if s.hub == nil {
		NewResponseWriter(w, r).ServiceUnavailable("websocket streaming is disabled")
		return
	}

	up := s.upgrader()
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		logging.Error().Err(err).Msg("websocket upgrade error")
		return
	}

	client := websocket.NewClient(s.hub, conn)
	s.hub.Register <- client
	client.Start()
}
