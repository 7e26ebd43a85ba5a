// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package api exposes the detection core over HTTP.
//
// The surface is read-mostly: listing and fetching stored detections,
// computing the aggregate incident assessment and statistics over a
// window, and inspecting per-protocol handlers. The one write path is
// threshold reconfiguration, which accepts either a named preset or an
// explicit profile and validates it before applying.
//
// Routing uses chi with the usual middleware stack: correlation IDs,
// panic recovery, CORS, per-group rate limits, security headers, and a
// Prometheus request recorder. Live detection events stream over the
// /ws endpoint via the websocket hub.
package api
