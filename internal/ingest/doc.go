// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package ingest is the observation pipeline between sensors and the
// detection core.
//
// Sensor observations enter through Pipeline.Submit, travel over an
// in-process watermill pub/sub queue, and are dispatched to the
// protocol handler registry by a bounded worker pool. Every detection
// that clears its handler's thresholds is persisted, broadcast to
// websocket clients, and forwarded to the webhook notifier. A rate
// limiter bounds how often a fresh aggregate assessment is recomputed
// and fanned out after new detections.
//
// Malformed or unroutable observations are acknowledged and counted,
// never retried: an observation that cannot be decoded today will not
// decode tomorrow either.
package ingest
