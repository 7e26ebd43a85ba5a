// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

// Package websocket pushes live detection events to connected clients.
//
// The Hub fans out three message types: "detection" for every scored
// observation that clears its handler's thresholds, "aggregate" for
// refreshed incident assessments, and "statistics" for dashboard count
// projections. Clients may send "ping" messages and receive "pong"
// replies; everything else a client sends is ignored.
//
// The hub runs as a suture.Service and processes events with a fixed
// priority: shutdown, then client register/unregister, then broadcasts.
// Fan-out walks clients in ID order so delivery is reproducible, and a
// client whose send buffer is full is disconnected rather than allowed
// to stall the others.
package websocket
