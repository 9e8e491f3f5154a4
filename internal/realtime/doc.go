// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package realtime implements the server-authoritative state
// synchronization protocol: sequence-stamped envelopes fanned out to
// room subscribers, per-session bounded delivery queues, at-most-once
// client operations, and the resync procedure clients use to recover a
// consistent baseline after (re)connecting.
//
// Ordering guarantees: within one scope, every subscriber observes
// broadcasts in the same relative order; across scopes only the global
// sequence's total order holds, usable for staleness detection but not
// causal inference.
package realtime
