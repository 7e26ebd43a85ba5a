// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package logging

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type contextKey string

// correlationIDKey carries the per-observation correlation ID so every
// log line produced while processing one observation can be tied together.
const correlationIDKey contextKey = "correlation_id"

// NewCorrelationID returns a short unique correlation ID. The first
// 8 characters of a UUID are enough for log correlation and keep the
// output readable.
func NewCorrelationID() string {
	return uuid.New().String()[:8]
}

// WithCorrelationID returns a context carrying the given correlation ID.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID retrieves the correlation ID from the context, or ""
// if none is set.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok {
		return id
	}
	return ""
}

// Ctx returns a logger that includes the context's correlation ID, when
// present. This is the recommended way to log on the observation path.
func Ctx(ctx context.Context) *zerolog.Logger {
	logger := Logger()
	if id := CorrelationID(ctx); id != "" {
		logger = logger.With().Str("correlation_id", id).Logger()
	}
	return &logger
}
