// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

/*
Package detection contains the protocol handlers, the handler registry,
and the incident-aggregation algorithm.

# Handlers

One Handler exists per sensing protocol. A handler owns its protocol's
pattern catalog and base-likelihood table, gathers confidence evidence
from the observation (signal strength, persistence, corroborating
indicators), and calls the scoring engine to produce a Detection. A
handler that finds nothing, or whose finding does not clear the
configured thresholds, returns (nil, nil): no detection is not an error.

Handlers are safe for concurrent use. A scanner may deliver a new
observation while a previous Analyze is still running, and
StopMonitoring may be called at any time; a stopped handler is inert
until restarted.

# Registry

The Registry routes observations to handlers by protocol and coordinates
handler lifecycle. Its maps are read-mostly: registration happens at
startup, lookups happen on every observation, so readers share an RLock.

# Aggregation

Aggregate correlates a window of detections into spatiotemporal
incidents and computes the combined severity with the fixed boost
ladder. It is a pure function of its input set: order-independent,
idempotent, and well-defined on empty input. Its incident grouping is
O(n^2) in the number of detections in the window, so callers are
expected to invoke it on a cadence rather than per observation.
*/
package detection
