// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package ingest

import (
	"github.com/ThreeDotsLabs/watermill"
	"github.com/rs/zerolog"

	"github.com/kestrelsec/kestrel/internal/logging"
)

// watermillLogger adapts the zerolog-backed logging package to the
// watermill.LoggerAdapter interface so pub/sub internals log through
// the same sink as everything else.
type watermillLogger struct {
	fields watermill.LogFields
}

// NewWatermillLogger returns a watermill logger writing to the global
// zerolog logger.
func NewWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{}
}

func (l *watermillLogger) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range l.fields {
		ev = ev.Interface(k, v)
	}
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(logging.Error().Err(err), msg, fields)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(logging.Info(), msg, fields)
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), msg, fields)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(logging.Trace(), msg, fields)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	return &watermillLogger{fields: l.fields.Add(fields)}
}
