// Kestrel - Surveillance Device Detection and Threat Analysis
// Copyright 2026 Kestrel Security Project
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/kestrelsec/kestrel

/*
Package taxonomy defines the closed enumerations shared by every detection
component: device kinds with their impact factors, detection methods,
sensing protocols, threat levels, and the confidence-factor catalog.

The package is pure data. Nothing here performs I/O, holds state, or is
mutated at runtime; all tables are compiled in. The scoring engine and the
protocol handlers both depend on this package and on nothing else inside
the repository, which keeps the dependency graph acyclic:

	taxonomy <- scoring <- detection <- (store, ingest, api, ...)

# Impact factors

Every DeviceKind carries a fixed impact factor in [0.5, 2.0]. The maximum
is reserved for devices that intercept all communication (IMSI catchers,
cell-site simulators) or cause physical harm; the minimum for passive
infrastructure. Unknown kinds fall back to a neutral 1.0 so that a lookup
miss can never abort scoring.

# Threat levels

ThreatLevel is totally ordered and derived exclusively from a numeric
score via FromScore. Boundaries are inclusive on the lower bound: a score
of exactly 70 is high, not medium.
*/
package taxonomy
