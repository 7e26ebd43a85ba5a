// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package notify delivers detection alerts to external webhook
// endpoints. Delivery is wrapped in a circuit breaker so a dead
// endpoint cannot back-pressure the detection pipeline, and rate
// limited so a noisy environment cannot flood the receiver.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/taxonomy"
)

// ErrSuppressed is returned when a notification is dropped by the
// severity filter or the rate limiter. Callers may treat it as success.
var ErrSuppressed = errors.New("notification suppressed")

// Notifier is the alert delivery contract.
type Notifier interface {
	NotifyDetection(ctx context.Context, det *detection.Detection) error
	NotifyAggregate(ctx context.Context, agg detection.AggregateIncident) error
}

// Config controls webhook delivery.
type Config struct {
	// URL is the webhook endpoint. Empty disables the notifier.
	URL string

	// Headers are added to every request, e.g. an Authorization token.
	Headers map[string]string

	// MinSeverity drops detection notifications below this level.
	// Aggregate notifications are always delivered.
	MinSeverity taxonomy.ThreatLevel

	// RatePerMinute caps outgoing notifications. Zero means 30.
	RatePerMinute int

	// Timeout bounds one delivery attempt. Zero means 10s.
	Timeout time.Duration
}

// payload is the wire format posted to the webhook.
type payload struct {
	Type      string                       `json:"type"` // "detection" or "aggregate"
	Timestamp time.Time                    `json:"timestamp"`
	Detection *detection.Detection         `json:"detection,omitempty"`
	Aggregate *detection.AggregateIncident `json:"aggregate,omitempty"`
}

// WebhookNotifier posts JSON alerts to a configured endpoint.
type WebhookNotifier struct {
	cfg     Config
	client  *http.Client
	limiter *rate.Limiter
	cb      *gobreaker.CircuitBreaker[struct{}]
	name    string
}

// NewWebhookNotifier creates a webhook notifier. The circuit breaker
// opens after a 60% failure rate over at least 5 requests and probes
// again after 30 seconds.
func NewWebhookNotifier(cfg Config) *WebhookNotifier {
	if cfg.RatePerMinute <= 0 {
		cfg.RatePerMinute = 30
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	name := "webhook"
	metrics.SetCircuitBreakerState(name, 0)

	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:     name,
		Interval: time.Minute,
		Timeout:  30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 5 {
				return false
			}
			return float64(counts.TotalFailures)/float64(counts.Requests) >= 0.6
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().
				Str("breaker", name).
				Str("from", from.String()).
				Str("to", to.String()).
				Msg("Webhook circuit breaker state change")
			metrics.SetCircuitBreakerState(name, stateToInt(to))
		},
	})

	return &WebhookNotifier{
		cfg:     cfg,
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(rate.Limit(float64(cfg.RatePerMinute)/60.0), cfg.RatePerMinute),
		cb:      cb,
		name:    name,
	}
}

// NotifyDetection delivers one detection alert, subject to the severity
// filter and rate limit.
func (n *WebhookNotifier) NotifyDetection(ctx context.Context, det *detection.Detection) error {
	if n.cfg.URL == "" || det == nil {
		return nil
	}
	if n.cfg.MinSeverity != "" && !det.Severity.AtLeast(n.cfg.MinSeverity) {
		return ErrSuppressed
	}
	if !n.limiter.Allow() {
		logging.Debug().Str("detection_id", det.ID).Msg("Notification rate limited")
		return ErrSuppressed
	}
	return n.post(ctx, payload{
		Type:      "detection",
		Timestamp: time.Now().UTC(),
		Detection: det,
	})
}

// NotifyAggregate delivers the current aggregate incident view.
func (n *WebhookNotifier) NotifyAggregate(ctx context.Context, agg detection.AggregateIncident) error {
	if n.cfg.URL == "" {
		return nil
	}
	if !n.limiter.Allow() {
		return ErrSuppressed
	}
	return n.post(ctx, payload{
		Type:      "aggregate",
		Timestamp: time.Now().UTC(),
		Aggregate: &agg,
	})
}

func (n *WebhookNotifier) post(ctx context.Context, p payload) error {
	body, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	_, err = n.cb.Execute(func() (struct{}, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.cfg.URL, bytes.NewReader(body))
		if err != nil {
			return struct{}{}, fmt.Errorf("build request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, v := range n.cfg.Headers {
			req.Header.Set(k, v)
		}

		resp, err := n.client.Do(req)
		if err != nil {
			return struct{}{}, fmt.Errorf("post webhook: %w", err)
		}
		defer resp.Body.Close()
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			return struct{}{}, fmt.Errorf("webhook returned status %d", resp.StatusCode)
		}
		return struct{}{}, nil
	})

	switch {
	case err == nil:
		metrics.RecordNotification("success")
		return nil
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		metrics.RecordNotification("rejected")
		logging.Warn().Err(err).Msg("Notification rejected by circuit breaker")
		return err
	default:
		metrics.RecordNotification("failure")
		logging.Error().Err(err).Str("url", n.cfg.URL).Msg("Notification delivery failed")
		return err
	}
}

func stateToInt(s gobreaker.State) int {
	switch s {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	default:
		return 2
	}
}
