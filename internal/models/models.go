// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package models defines the catalog entities shared across Boxwire.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Track is a single playable item inside a playlist.
type Track struct {
	ID         uuid.UUID `json:"id"`
	Title      string    `json:"title"`
	Artist     string    `json:"artist,omitempty"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	Path       string    `json:"path"`
	AddedAt    time.Time `json:"added_at"`
}

// Playlist is the mutable aggregate at the heart of the catalog. Each
// playlist is its own broadcast scope: every committed mutation bumps its
// Revision, and the scope sequence clients observe tracks that revision.
type Playlist struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	Tracks    []Track   `json:"tracks"`
	Revision  uint64    `json:"revision"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ScopeID returns the broadcast scope identifier for this playlist.
func (p *Playlist) ScopeID() string {
	return "entity:" + p.ID.String()
}

// TrackIndex returns the position of the track with the given id, or -1.
func (p *Playlist) TrackIndex(trackID uuid.UUID) int {
	for i := range p.Tracks {
		if p.Tracks[i].ID == trackID {
			return i
		}
	}
	return -1
}

// TagLink binds an externally detected proximity-tag identifier to a
// playlist. A tag links to at most one playlist at a time.
type TagLink struct {
	TagID      string    `json:"tag_id"`
	PlaylistID uuid.UUID `json:"playlist_id"`
	LinkedAt   time.Time `json:"linked_at"`
}
