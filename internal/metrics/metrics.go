// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package metrics provides Prometheus instrumentation for the control
// plane: session fan-out, operation deduplication, association outcomes,
// and transfer sessions. Collectors are registered via promauto at
// package load and exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SessionsConnected is the current number of attached sessions.
	SessionsConnected = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "boxwire_sessions_connected",
			Help: "Current number of connected WebSocket sessions",
		},
	)

	// RoomMembers tracks membership per room.
	RoomMembers = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "boxwire_room_members",
			Help: "Current number of sessions subscribed to each room",
		},
		[]string{"room"},
	)

	// EnvelopesBroadcast counts stamped envelopes by event type.
	EnvelopesBroadcast = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxwire_envelopes_broadcast_total",
			Help: "Total number of state envelopes broadcast",
		},
		[]string{"event_type"},
	)

	// SendQueueDrops counts sessions disconnected because their bounded
	// outbound queue overflowed.
	SendQueueDrops = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxwire_send_queue_drops_total",
			Help: "Total number of sessions dropped due to send queue overflow",
		},
	)

	// OpsExecuted counts client operations by action and outcome.
	OpsExecuted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxwire_operations_total",
			Help: "Total number of client operations executed",
		},
		[]string{"action", "outcome"}, // outcome: success, failure
	)

	// OpDedupHits counts operations answered from the dedup window
	// without re-execution.
	OpDedupHits = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "boxwire_operation_dedup_hits_total",
			Help: "Total number of replayed acknowledgments for duplicate client_op_ids",
		},
	)

	// ResyncRequests counts sync:request commands by scope.
	ResyncRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxwire_resync_requests_total",
			Help: "Total number of resync requests",
		},
		[]string{"scope"},
	)

	// AssociationOutcomes counts association sessions reaching each
	// terminal state.
	AssociationOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxwire_association_outcomes_total",
			Help: "Total number of tag association sessions by terminal state",
		},
		[]string{"state"}, // success, duplicate, timeout, cancelled, error
	)

	// TransferOutcomes counts transfer sessions by terminal state.
	TransferOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "boxwire_transfer_outcomes_total",
			Help: "Total number of transfer sessions by terminal state",
		},
		[]string{"state"}, // complete, error, expired, cancelled
	)
)
