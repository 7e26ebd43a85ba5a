// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package metrics exposes Prometheus instrumentation for the detection
// pipeline: observation throughput, detection and incident counts, API
// latency, WebSocket fan-out, and the notifier circuit breaker.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Detection Pipeline Metrics
	ObservationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observations_total",
			Help: "Total number of observations dispatched to handlers",
		},
		[]string{"protocol"},
	)

	ObservationsRejected = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "observations_rejected_total",
			Help: "Total number of observations that failed dispatch",
		},
		[]string{"protocol", "reason"}, // "no_handler", "malformed", "analyze"
	)

	DetectionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "detections_total",
			Help: "Total number of detections produced",
		},
		[]string{"protocol", "severity"},
	)

	DetectionScore = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "detection_score",
			Help:    "Distribution of detection scores",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		},
		[]string{"protocol"},
	)

	AnalyzeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "analyze_duration_seconds",
			Help:    "Duration of handler analyze calls in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
		[]string{"protocol"},
	)

	// Aggregation Metrics
	AggregateDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "aggregate_duration_seconds",
			Help:    "Duration of incident aggregation in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	AggregateIncidents = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aggregate_incidents",
			Help: "Incident count from the most recent aggregation",
		},
	)

	AggregateScore = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "aggregate_score",
			Help: "Aggregate score from the most recent aggregation",
		},
	)

	// Store Metrics
	StoreWrites = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_writes_total",
			Help: "Total number of detections written to the store",
		},
	)

	StoreWriteErrors = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "store_write_errors_total",
			Help: "Total number of failed store writes",
		},
	)

	DetectionsRetired = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "detections_retired_total",
			Help: "Total number of detections marked inactive by the sweeper",
		},
	)

	// API Endpoint Metrics
	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "endpoint"},
	)

	// WebSocket Metrics
	WSConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "websocket_connections",
			Help: "Current number of active WebSocket connections",
		},
	)

	WSMessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_sent_total",
			Help: "Total number of WebSocket messages sent",
		},
	)

	WSDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "websocket_messages_dropped_total",
			Help: "Total number of WebSocket messages dropped on slow clients",
		},
	)

	// Notifier Metrics
	NotificationsSent = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "notifications_sent_total",
			Help: "Total number of webhook notifications sent",
		},
		[]string{"result"}, // "success", "failure", "rejected"
	)

	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)
)

// RecordObservation counts one dispatched observation.
func RecordObservation(protocol string) {
	ObservationsTotal.WithLabelValues(protocol).Inc()
}

// RecordObservationRejected counts a dispatch that produced an error.
func RecordObservationRejected(protocol, reason string) {
	ObservationsRejected.WithLabelValues(protocol, reason).Inc()
}

// RecordDetection counts a produced detection and its score.
func RecordDetection(protocol, severity string, score int) {
	DetectionsTotal.WithLabelValues(protocol, severity).Inc()
	DetectionScore.WithLabelValues(protocol).Observe(float64(score))
}

// RecordAnalyze records one analyze call's duration.
func RecordAnalyze(protocol string, duration time.Duration) {
	AnalyzeDuration.WithLabelValues(protocol).Observe(duration.Seconds())
}

// RecordAggregate records the outcome of one aggregation pass.
func RecordAggregate(duration time.Duration, incidents, score int) {
	AggregateDuration.Observe(duration.Seconds())
	AggregateIncidents.Set(float64(incidents))
	AggregateScore.Set(float64(score))
}

// RecordStoreWrite counts one store write and whether it failed.
func RecordStoreWrite(err error) {
	if err != nil {
		StoreWriteErrors.Inc()
		return
	}
	StoreWrites.Inc()
}

// RecordDetectionsRetired counts detections retired by the sweeper.
func RecordDetectionsRetired(n int) {
	DetectionsRetired.Add(float64(n))
}

// RecordAPIRequest records one completed API request.
func RecordAPIRequest(method, endpoint, statusCode string, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordNotification counts one webhook delivery attempt by result.
func RecordNotification(result string) {
	NotificationsSent.WithLabelValues(result).Inc()
}

// SetCircuitBreakerState publishes a breaker's state gauge.
func SetCircuitBreakerState(name string, state int) {
	CircuitBreakerState.WithLabelValues(name).Set(float64(state))
}
