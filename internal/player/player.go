// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package player owns the playback state aggregate. The controller is
// the single mutation path: client operations, tag-triggered playback,
// and engine events all funnel through it, so subscribers of the player
// room observe one consistent ordered state timeline.
//
// The audio engine itself is an external capability consumed through the
// Engine interface; Boxwire never touches codec or device internals.
package player

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/boxwire/boxwire/internal/models"
)

// Status is the closed set of playback statuses.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusPlaying Status = "playing"
	StatusPaused  Status = "paused"
)

// Engine drives the audio hardware. Implementations block only as long
// as command submission takes; playback progress comes back
// asynchronously as engine events on the hardware bus.
type Engine interface {
	Play(ctx context.Context, track models.Track) error
	Pause(ctx context.Context) error
	Resume(ctx context.Context) error
	Seek(ctx context.Context, positionMs int64) error
	Stop(ctx context.Context) error
}

// State is the authoritative playback aggregate broadcast to the player
// room and served by the "player" resync scope.
type State struct {
	Status       Status        `json:"status"`
	PlaylistID   *uuid.UUID    `json:"playlist_id,omitempty"`
	PlaylistName string        `json:"playlist_name,omitempty"`
	TrackIndex   int           `json:"track_index"`
	TrackCount   int           `json:"track_count"`
	Track        *models.Track `json:"track,omitempty"`
	PositionMs   int64         `json:"position_ms"`
	UpdatedAt    time.Time     `json:"updated_at"`
}

// Position is the lightweight tick payload. It deliberately omits the
// full aggregate; clients needing more resync the player scope.
type Position struct {
	PlaylistID *uuid.UUID `json:"playlist_id,omitempty"`
	TrackIndex int        `json:"track_index"`
	PositionMs int64      `json:"position_ms"`
}
