// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

package logging

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rs/zerolog"
)

// slogHandler adapts the global zerolog logger to the slog.Handler
// interface. The supervision layer (sutureslog) speaks slog; everything
// else in the process speaks zerolog, so the adapter keeps supervisor
// events in the same output stream with the same formatting.
type slogHandler struct {
	logger zerolog.Logger
	attrs  []slog.Attr
	group  string
}

// NewSlogLogger returns an *slog.Logger backed by the global zerolog
// logger. Intended for libraries that require slog, such as sutureslog.
func NewSlogLogger() *slog.Logger {
	return slog.New(&slogHandler{logger: Logger()})
}

// Enabled reports whether events at the given level would be emitted.
func (h *slogHandler) Enabled(_ context.Context, level slog.Level) bool {
	return h.logger.GetLevel() <= slogToZerologLevel(level)
}

// Handle forwards the slog record to zerolog.
//
//nolint:gocritic // slog.Record is passed by value per the interface
func (h *slogHandler) Handle(_ context.Context, record slog.Record) error {
	var event *zerolog.Event
	switch {
	case record.Level >= slog.LevelError:
		event = h.logger.Error()
	case record.Level >= slog.LevelWarn:
		event = h.logger.Warn()
	case record.Level >= slog.LevelInfo:
		event = h.logger.Info()
	default:
		event = h.logger.Debug()
	}

	for _, attr := range h.attrs {
		event = h.addAttr(event, attr)
	}
	record.Attrs(func(attr slog.Attr) bool {
		event = h.addAttr(event, attr)
		return true
	})

	event.Msg(record.Message)
	return nil
}

// WithAttrs returns a handler that includes the given attributes.
func (h *slogHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	merged := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	merged = append(merged, h.attrs...)
	merged = append(merged, attrs...)
	return &slogHandler{logger: h.logger, attrs: merged, group: h.group}
}

// WithGroup returns a handler that prefixes attribute keys with name.
func (h *slogHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	group := name
	if h.group != "" {
		group = h.group + "." + name
	}
	return &slogHandler{logger: h.logger, attrs: h.attrs, group: group}
}

// addAttr appends one slog attribute to a zerolog event.
func (h *slogHandler) addAttr(event *zerolog.Event, attr slog.Attr) *zerolog.Event {
	key := attr.Key
	if h.group != "" {
		key = h.group + "." + key
	}

	value := attr.Value.Resolve()
	switch value.Kind() {
	case slog.KindString:
		return event.Str(key, value.String())
	case slog.KindInt64:
		return event.Int64(key, value.Int64())
	case slog.KindUint64:
		return event.Uint64(key, value.Uint64())
	case slog.KindFloat64:
		return event.Float64(key, value.Float64())
	case slog.KindBool:
		return event.Bool(key, value.Bool())
	case slog.KindDuration:
		return event.Dur(key, value.Duration())
	case slog.KindTime:
		return event.Time(key, value.Time())
	default:
		return event.Str(key, fmt.Sprint(value.Any()))
	}
}

// slogToZerologLevel maps slog levels onto zerolog levels.
func slogToZerologLevel(level slog.Level) zerolog.Level {
	switch {
	case level >= slog.LevelError:
		return zerolog.ErrorLevel
	case level >= slog.LevelWarn:
		return zerolog.WarnLevel
	case level >= slog.LevelInfo:
		return zerolog.InfoLevel
	default:
		return zerolog.DebugLevel
	}
}
