// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/metrics"
)

// ChiMiddlewareConfig holds configuration for the middleware factories.
type ChiMiddlewareConfig struct {
	// CORS configuration
	CORSAllowedOrigins   []string
	CORSAllowedMethods   []string
	CORSAllowedHeaders   []string
	CORSAllowCredentials bool
	CORSMaxAge           int // seconds

	// Rate limiting configuration
	RateLimitRequests int
	RateLimitWindow   time.Duration
	RateLimitDisabled bool
}

// DefaultChiMiddlewareConfig returns a secure default configuration.
// CORS origins default to empty, requiring explicit configuration.
func DefaultChiMiddlewareConfig() *ChiMiddlewareConfig {
	return &ChiMiddlewareConfig{
		CORSAllowedOrigins:   []string{},
		CORSAllowedMethods:   []string{"GET", "PUT", "OPTIONS"},
		CORSAllowedHeaders:   []string{"Content-Type", "X-Correlation-ID"},
		CORSAllowCredentials: false,
		CORSMaxAge:           86400,

		RateLimitRequests: 100,
		RateLimitWindow:   time.Minute,
		RateLimitDisabled: false,
	}
}

// ChiMiddleware provides chi-compatible middleware factories built on
// production-hardened implementations from the chi ecosystem.
type ChiMiddleware struct {
	config *ChiMiddlewareConfig
	cors   func(http.Handler) http.Handler
}

// NewChiMiddleware creates a new middleware factory with the given
// configuration.
func NewChiMiddleware(config *ChiMiddlewareConfig) *ChiMiddleware {
	if config == nil {
		config = DefaultChiMiddlewareConfig()
	}

	corsHandler := cors.Handler(cors.Options{
		AllowedOrigins:   config.CORSAllowedOrigins,
		AllowedMethods:   config.CORSAllowedMethods,
		AllowedHeaders:   config.CORSAllowedHeaders,
		AllowCredentials: config.CORSAllowCredentials,
		MaxAge:           config.CORSMaxAge,
	})

	return &ChiMiddleware{
		config: config,
		cors:   corsHandler,
	}
}

// CORS returns the go-chi/cors middleware.
func (m *ChiMiddleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the default IP-based rate limiter.
func (m *ChiMiddleware) RateLimit() func(http.Handler) http.Handler {
	return m.RateLimitCustom(RateLimitConfig{
		Requests: m.config.RateLimitRequests,
		Window:   m.config.RateLimitWindow,
	})
}

// RateLimitConfig defines rate limit parameters for an endpoint group.
type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

// Endpoint-group rate limits. Health stays permissive so monitoring
// probes never trip it; threshold writes are limited harder.
var (
	RateLimitHealth = RateLimitConfig{Requests: 1000, Window: time.Minute}
	RateLimitWrite  = RateLimitConfig{Requests: 30, Window: time.Minute}
)

// RateLimitCustom returns an IP-based rate limiter for one endpoint group.
func (m *ChiMiddleware) RateLimitCustom(config RateLimitConfig) func(http.Handler) http.Handler {
	if m.config.RateLimitDisabled {
		return func(next http.Handler) http.Handler {
			return next
		}
	}

	return httprate.LimitByIP(config.Requests, config.Window)
}

// CorrelationIDMiddleware attaches a correlation ID to the request
// context so log lines and responses for one request can be tied
// together. An X-Correlation-ID header from the client is honored,
// otherwise a new ID is generated, and either way the value is echoed
// back on the response.
func CorrelationIDMiddleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := r.Header.Get("X-Correlation-ID")
			if id == "" {
				id = logging.NewCorrelationID()
			}

			w.Header().Set("X-Correlation-ID", id)
			ctx := logging.WithCorrelationID(r.Context(), id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SecurityHeaders adds standard security headers to API responses.
func SecurityHeaders() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

			if r.TLS != nil || r.Header.Get("X-Forwarded-Proto") == "https" {
				w.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}

			next.ServeHTTP(w, r)
		})
	}
}

// PrometheusMetrics records request counts and latency per route
// pattern. The chi route pattern is resolved after the handler runs so
// parameterized paths collapse into one series.
func PrometheusMetrics() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			pattern := chi.RouteContext(r.Context()).RoutePattern()
			if pattern == "" {
				pattern = "unmatched"
			}
			metrics.RecordAPIRequest(r.Method, pattern, strconv.Itoa(ww.Status()), time.Since(start))
		})
	}
}
