// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package catalog persists the appliance's playlists, tracks, and
// tag-to-playlist links. The store is the only durable state in the
// process; sequence counters, rooms, and sessions are rebuilt from zero
// on restart.
//
// Two implementations exist: a BadgerDB-backed store for production and
// an in-memory store for tests. Both serialize mutations per entity, so
// association commits and ordinary CRUD on the same playlist are mutually
// exclusive.
package catalog

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/boxwire/boxwire/internal/models"
)

// Sentinel errors returned by Store implementations.
var (
	// ErrNotFound indicates the requested playlist, track, or tag link
	// does not exist.
	ErrNotFound = errors.New("catalog: not found")

	// ErrNameRequired indicates a playlist create/rename with an empty name.
	ErrNameRequired = errors.New("catalog: playlist name required")
)

// Store is the catalog repository consumed by the control plane.
//
// Every mutation returns the post-commit state of the affected playlist
// so callers can broadcast it without a second read racing a concurrent
// writer. Each committed mutation increments the playlist's Revision.
type Store interface {
	CreatePlaylist(ctx context.Context, name string) (*models.Playlist, error)
	GetPlaylist(ctx context.Context, id uuid.UUID) (*models.Playlist, error)
	ListPlaylists(ctx context.Context) ([]*models.Playlist, error)
	RenamePlaylist(ctx context.Context, id uuid.UUID, name string) (*models.Playlist, error)
	DeletePlaylist(ctx context.Context, id uuid.UUID) error

	AddTrack(ctx context.Context, playlistID uuid.UUID, track models.Track) (*models.Playlist, error)
	RemoveTrack(ctx context.Context, playlistID, trackID uuid.UUID) (*models.Playlist, error)
	// MoveTrack repositions a track within its playlist. The new index is
	// clamped to the playlist bounds.
	MoveTrack(ctx context.Context, playlistID, trackID uuid.UUID, newIndex int) (*models.Playlist, error)

	// LinkTag binds tagID to playlistID, replacing any previous link for
	// that tag. The playlist must exist.
	LinkTag(ctx context.Context, tagID string, playlistID uuid.UUID) (*models.TagLink, error)
	UnlinkTag(ctx context.Context, tagID string) error
	// LookupTag returns the current link for tagID, or ErrNotFound.
	LookupTag(ctx context.Context, tagID string) (*models.TagLink, error)
	ListTagLinks(ctx context.Context) ([]*models.TagLink, error)

	Close() error
}

// moveTrack is the reorder shared by both store implementations. The
// destination index is clamped to the playlist bounds.
func moveTrack(p *models.Playlist, trackID uuid.UUID, newIndex int) error {
	idx := p.TrackIndex(trackID)
	if idx < 0 {
		return ErrNotFound
	}
	if newIndex < 0 {
		newIndex = 0
	}
	if newIndex >= len(p.Tracks) {
		newIndex = len(p.Tracks) - 1
	}
	track := p.Tracks[idx]
	p.Tracks = append(p.Tracks[:idx], p.Tracks[idx+1:]...)
	p.Tracks = append(p.Tracks[:newIndex], append([]models.Track{track}, p.Tracks[newIndex:]...)...)
	return nil
}

// Snapshot is the full catalog state delivered during resync.
type Snapshot struct {
	Playlists []*models.Playlist `json:"playlists"`
	TagLinks  []*models.TagLink  `json:"tag_links"`
}

// TakeSnapshot reads the complete catalog state from the store.
func TakeSnapshot(ctx context.Context, s Store) (*Snapshot, error) {
	playlists, err := s.ListPlaylists(ctx)
	if err != nil {
		return nil, err
	}
	links, err := s.ListTagLinks(ctx)
	if err != nil {
		return nil, err
	}
	return &Snapshot{Playlists: playlists, TagLinks: links}, nil
}
