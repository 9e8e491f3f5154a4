// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import (
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// Canonical event types carried by state envelopes. The set is closed:
// every broadcast in the system uses one of these names.
const (
	EventCatalogSnapshot  = "state:catalog-snapshot"
	EventPlaylistCreated  = "state:playlist-created"
	EventPlaylistUpdated  = "state:playlist-updated"
	EventPlaylistDeleted  = "state:playlist-deleted"
	EventTrackAdded       = "state:track-added"
	EventTrackRemoved     = "state:track-removed"
	EventPlayerState      = "state:player"
	EventPlayerPosition   = "state:position"
	EventAssociation      = "state:association"
	EventTransferProgress = "state:transfer-progress"
	EventTransferComplete = "state:transfer-complete"
	EventTransferError    = "state:transfer-error"
)

// Well-known room names. Per-playlist rooms use RoomForEntity.
const (
	RoomCatalog      = "catalog"
	RoomPlayer       = "player"
	RoomAssociations = "associations"
	RoomTransfers    = "transfers"
)

// RoomForEntity returns the room name for a single aggregate's updates.
func RoomForEntity(scopeID string) string {
	return scopeID
}

// Envelope is the stamped, immutable unit of broadcast state change.
//
// ServerSeq increases on every broadcast of any kind and is never reused.
// ScopeSeq is present only for envelopes that mutate a single aggregate;
// it lets a client subscribed to that aggregate detect gaps cheaply. A
// receiver seeing a non-increasing sequence must discard the envelope as
// stale.
type Envelope struct {
	EventType string `json:"event_type"`
	ServerSeq uint64 `json:"server_seq"`
	Data      any    `json:"data"`
	Timestamp int64  `json:"timestamp"` // epoch milliseconds
	EventID   string `json:"event_id"`
	ScopeID   string `json:"scope_id,omitempty"`
	ScopeSeq  uint64 `json:"scope_seq,omitempty"`
}

// newEnvelope builds an unstamped envelope; the hub fills the sequence
// fields while holding the broadcast serialization.
func newEnvelope(eventType string, data any) *Envelope {
	return &Envelope{
		EventType: eventType,
		Data:      data,
		Timestamp: time.Now().UnixMilli(),
		EventID:   uuid.NewString(),
	}
}

// Marshal encodes the envelope for the wire.
func (e *Envelope) Marshal() ([]byte, error) {
	return json.Marshal(e)
}
