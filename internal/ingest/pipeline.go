// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package ingest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"golang.org/x/time/rate"

	"github.com/kestrelsec/kestrel/internal/detection"
	"github.com/kestrelsec/kestrel/internal/logging"
	"github.com/kestrelsec/kestrel/internal/metrics"
	"github.com/kestrelsec/kestrel/internal/notify"
	"github.com/kestrelsec/kestrel/internal/store"
	"github.com/kestrelsec/kestrel/internal/websocket"
)

// observationsTopic is the in-process queue topic for sensor readings.
const observationsTopic = "kestrel.observations"

// Config sizes the pipeline.
type Config struct {
	// BufferSize bounds the in-flight observation queue.
	BufferSize int

	// Workers is the number of concurrent dispatch workers.
	Workers int

	// AggregateWindow is the rolling window for incident aggregation.
	AggregateWindow time.Duration

	// AggregatesPerMinute bounds how often a fresh aggregate assessment
	// is computed after new detections.
	AggregatesPerMinute int
}

// DefaultConfig returns the pipeline defaults.
func DefaultConfig() Config {
	return Config{
		BufferSize:          1024,
		Workers:             4,
		AggregateWindow:     detection.DefaultWindow,
		AggregatesPerMinute: 12,
	}
}

// Pipeline moves observations from sensors through the handler registry
// and fans resulting detections out to the store, websocket clients and
// the webhook notifier. It implements suture.Service.
type Pipeline struct {
	cfg      Config
	pubsub   *gochannel.GoChannel
	messages <-chan *message.Message
	registry *detection.Registry
	store    store.DetectionStore
	hub      *websocket.Hub
	notifier notify.Notifier
	limiter  *rate.Limiter
}

// NewPipeline builds the pipeline and opens its observation
// subscription, so observations submitted before Serve starts are
// queued rather than dropped. The hub and notifier may be nil when
// streaming or webhooks are disabled.
func NewPipeline(cfg Config, reg *detection.Registry, st store.DetectionStore, hub *websocket.Hub, notifier notify.Notifier) (*Pipeline, error) {
	def := DefaultConfig()
	if cfg.BufferSize < 1 {
		cfg.BufferSize = def.BufferSize
	}
	if cfg.Workers < 1 {
		cfg.Workers = def.Workers
	}
	if cfg.AggregateWindow <= 0 {
		cfg.AggregateWindow = def.AggregateWindow
	}
	if cfg.AggregatesPerMinute < 1 {
		cfg.AggregatesPerMinute = def.AggregatesPerMinute
	}

	pubsub := gochannel.NewGoChannel(gochannel.Config{
		OutputChannelBuffer: int64(cfg.BufferSize),
	}, NewWatermillLogger())

	// The subscription lives for the pipeline's lifetime; Close tears it
	// down. Subscribing here keeps Serve restartable under supervision
	// without stacking subscribers.
	messages, err := pubsub.Subscribe(context.Background(), observationsTopic)
	if err != nil {
		_ = pubsub.Close()
		return nil, err
	}

	return &Pipeline{
		cfg:      cfg,
		pubsub:   pubsub,
		messages: messages,
		registry: reg,
		store:    st,
		hub:      hub,
		notifier: notifier,
		limiter:  rate.NewLimiter(rate.Limit(cfg.AggregatesPerMinute)/60, 1),
	}, nil
}

// Submit enqueues one observation for analysis. It returns quickly; the
// worker pool does the dispatching.
func (p *Pipeline) Submit(_ context.Context, obs detection.Observation) error {
	raw, err := EncodeObservation(obs)
	if err != nil {
		metrics.RecordObservationRejected("unknown", "encode")
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), raw)
	if err := p.pubsub.Publish(observationsTopic, msg); err != nil {
		metrics.RecordObservationRejected(string(obs.Protocol()), "enqueue")
		return err
	}
	return nil
}

// Serve subscribes to the observation topic and runs the worker pool
// until the context is canceled.
func (p *Pipeline) Serve(ctx context.Context) error {
	logging.Info().
		Int("workers", p.cfg.Workers).
		Int("buffer", p.cfg.BufferSize).
		Msg("ingest pipeline started")

	var wg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-ctx.Done():
					return
				case msg, ok := <-p.messages:
					if !ok {
						return
					}
					p.handle(ctx, msg)
				}
			}
		}()
	}

	<-ctx.Done()
	wg.Wait()
	logging.Info().Msg("ingest pipeline stopped")
	return ctx.Err()
}

// String identifies the pipeline in supervisor logs.
func (p *Pipeline) String() string {
	return "ingest-pipeline"
}

// Close releases the underlying queue. Call only after Serve returned.
func (p *Pipeline) Close() error {
	return p.pubsub.Close()
}

// handle processes one queued observation. Every path acks: a message
// that failed to decode or analyze will fail identically on redelivery.
func (p *Pipeline) handle(ctx context.Context, msg *message.Message) {
	defer msg.Ack()

	obs, err := DecodeObservation(msg.Payload)
	if err != nil {
		metrics.RecordObservationRejected("unknown", "decode")
		logging.Warn().Err(err).Str("message_uuid", msg.UUID).Msg("dropping undecodable observation")
		return
	}

	proto := string(obs.Protocol())
	metrics.RecordObservation(proto)

	start := time.Now()
	det, err := p.registry.Dispatch(ctx, obs)
	metrics.RecordAnalyze(proto, time.Since(start))
	if err != nil {
		reason := "analyze_error"
		if errors.Is(err, detection.ErrNoHandler) {
			reason = "no_handler"
		}
		metrics.RecordObservationRejected(proto, reason)
		logging.Warn().Err(err).Str("protocol", proto).Msg("observation dispatch failed")
		return
	}
	if det == nil {
		// Benign or below thresholds.
		return
	}

	metrics.RecordDetection(proto, string(det.Severity), det.Score)

	if err := p.store.Save(ctx, det); err != nil {
		metrics.RecordStoreWrite(err)
		logging.Error().Err(err).Str("detection_id", det.ID).Msg("failed to persist detection")
	} else {
		metrics.RecordStoreWrite(nil)
	}

	if p.hub != nil {
		p.hub.BroadcastDetection(det)
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyDetection(ctx, det); err != nil && !errors.Is(err, notify.ErrSuppressed) {
			logging.Warn().Err(err).Str("detection_id", det.ID).Msg("webhook delivery failed")
		}
	}

	if p.limiter.Allow() {
		p.refreshAggregate(ctx)
	}
}

// refreshAggregate recomputes the incident assessment over the window
// and fans it out.
func (p *Pipeline) refreshAggregate(ctx context.Context) {
	now := time.Now().UTC()
	start := time.Now()

	detections, err := p.store.List(ctx, store.Filter{Since: now.Add(-p.cfg.AggregateWindow)})
	if err != nil {
		logging.Error().Err(err).Msg("listing detections for aggregation")
		return
	}

	agg := p.registry.Aggregate(detections, p.cfg.AggregateWindow, now)
	metrics.RecordAggregate(time.Since(start), agg.IncidentCount, agg.Score)

	if p.hub != nil {
		p.hub.BroadcastAggregate(agg)
		p.hub.BroadcastStatistics(detection.ComputeStatistics(detections))
	}

	if p.notifier != nil {
		if err := p.notifier.NotifyAggregate(ctx, agg); err != nil && !errors.Is(err, notify.ErrSuppressed) {
			logging.Warn().Err(err).Msg("aggregate webhook delivery failed")
		}
	}
}
