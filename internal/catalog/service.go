// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package catalog

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/boxwire/boxwire/internal/models"
	"github.com/boxwire/boxwire/internal/realtime"
	"github.com/boxwire/boxwire/internal/validation"
)

// Operation actions registered with the tracker.
const (
	ActionPlaylistCreate = "playlist.create"
	ActionPlaylistRename = "playlist.rename"
	ActionPlaylistDelete = "playlist.delete"
	ActionTrackAdd       = "track.add"
	ActionTrackRemove    = "track.remove"
	ActionTrackMove      = "track.move"
	ActionTagUnlink      = "tag.unlink"
)

// Service executes catalog operations: commit to the store, then stamp
// and broadcast the post-commit state. A per-playlist lock holds across
// commit+broadcast, so the scope sequence subscribers observe always
// agrees with the playlist revision it carries.
type Service struct {
	hub   *realtime.Hub
	store Store

	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

// NewService wires a catalog service over the hub and store.
func NewService(hub *realtime.Hub, store Store) *Service {
	return &Service{
		hub:   hub,
		store: store,
		locks: make(map[uuid.UUID]*sync.Mutex),
	}
}

// lockEntity acquires the playlist's serialization and returns its
// release. Association commits go through the store as well, but they
// only touch tag keys, never playlist bodies, so this lock covers every
// writer of playlist state.
func (s *Service) lockEntity(id uuid.UUID) func() {
	s.mu.Lock()
	l, ok := s.locks[id]
	if !ok {
		l = &sync.Mutex{}
		s.locks[id] = l
	}
	s.mu.Unlock()

	l.Lock()
	return l.Unlock
}

func (s *Service) forgetEntity(id uuid.UUID) {
	s.mu.Lock()
	delete(s.locks, id)
	s.mu.Unlock()
}

// RegisterHandlers binds the catalog actions to the operation tracker.
func (s *Service) RegisterHandlers(t *realtime.Tracker) {
	t.Register(ActionPlaylistCreate, s.handlePlaylistCreate)
	t.Register(ActionPlaylistRename, s.handlePlaylistRename)
	t.Register(ActionPlaylistDelete, s.handlePlaylistDelete)
	t.Register(ActionTrackAdd, s.handleTrackAdd)
	t.Register(ActionTrackRemove, s.handleTrackRemove)
	t.Register(ActionTrackMove, s.handleTrackMove)
	t.Register(ActionTagUnlink, s.handleTagUnlink)
}

// RegisterSync binds the "catalog" scope and the "entity:<id>" scope
// family to their snapshot producers.
func (s *Service) RegisterSync(sr *realtime.SyncRegistry) {
	sr.RegisterScope("catalog", func(ctx context.Context) (any, error) {
		return TakeSnapshot(ctx, s.store)
	})
	sr.RegisterEntityScope(func(ctx context.Context, scopeID string) (any, error) {
		raw, _ := strings.CutPrefix(scopeID, "entity:")
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, realtime.NewProtoError(realtime.ErrTypeValidation, "entity scope id is not a valid uuid")
		}
		pl, err := s.store.GetPlaylist(ctx, id)
		if err != nil {
			return nil, classify(err)
		}
		return pl, nil
	})
}

type playlistCreateParams struct {
	Name string `json:"name" validate:"required,max=200"`
}

type playlistRenameParams struct {
	PlaylistID string `json:"playlist_id" validate:"required,uuid4"`
	Name       string `json:"name" validate:"required,max=200"`
}

type playlistIDParams struct {
	PlaylistID string `json:"playlist_id" validate:"required,uuid4"`
}

type trackAddParams struct {
	PlaylistID string `json:"playlist_id" validate:"required,uuid4"`
	Title      string `json:"title" validate:"required,max=300"`
	Artist     string `json:"artist,omitempty" validate:"max=300"`
	DurationMs int64  `json:"duration_ms,omitempty" validate:"min=0"`
	Path       string `json:"path" validate:"required,max=1024"`
}

type trackRemoveParams struct {
	PlaylistID string `json:"playlist_id" validate:"required,uuid4"`
	TrackID    string `json:"track_id" validate:"required,uuid4"`
}

type trackMoveParams struct {
	PlaylistID string `json:"playlist_id" validate:"required,uuid4"`
	TrackID    string `json:"track_id" validate:"required,uuid4"`
	NewIndex   int    `json:"new_index" validate:"min=0"`
}

type tagUnlinkParams struct {
	TagID string `json:"tag_id" validate:"required,max=128"`
}

func (s *Service) handlePlaylistCreate(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p playlistCreateParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}

	pl, err := s.store.CreatePlaylist(ctx, p.Name)
	if err != nil {
		return nil, 0, classify(err)
	}

	env := s.hub.BroadcastToRooms(
		[]string{realtime.RoomCatalog},
		realtime.EventPlaylistCreated, pl, pl.ScopeID(),
	)
	return pl, env.ServerSeq, nil
}

func (s *Service) handlePlaylistRename(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p playlistRenameParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	id := mustUUID(p.PlaylistID)

	unlock := s.lockEntity(id)
	defer unlock()

	pl, err := s.store.RenamePlaylist(ctx, id, p.Name)
	if err != nil {
		return nil, 0, classify(err)
	}
	env := s.broadcastPlaylist(realtime.EventPlaylistUpdated, pl)
	return pl, env.ServerSeq, nil
}

func (s *Service) handlePlaylistDelete(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p playlistIDParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	id := mustUUID(p.PlaylistID)

	unlock := s.lockEntity(id)
	defer unlock()

	if err := s.store.DeletePlaylist(ctx, id); err != nil {
		return nil, 0, classify(err)
	}

	scopeID := "entity:" + id.String()
	env := s.hub.BroadcastToRooms(
		[]string{realtime.RoomCatalog, scopeID},
		realtime.EventPlaylistDeleted,
		map[string]string{"playlist_id": id.String()},
		scopeID,
	)

	s.forgetEntity(id)
	s.hub.Sequences().Forget(scopeID)
	return map[string]string{"playlist_id": id.String()}, env.ServerSeq, nil
}

func (s *Service) handleTrackAdd(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p trackAddParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	id := mustUUID(p.PlaylistID)

	unlock := s.lockEntity(id)
	defer unlock()

	pl, err := s.store.AddTrack(ctx, id, models.Track{
		Title:      p.Title,
		Artist:     p.Artist,
		DurationMs: p.DurationMs,
		Path:       p.Path,
	})
	if err != nil {
		return nil, 0, classify(err)
	}
	env := s.broadcastPlaylist(realtime.EventTrackAdded, pl)
	return pl, env.ServerSeq, nil
}

func (s *Service) handleTrackRemove(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p trackRemoveParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	id := mustUUID(p.PlaylistID)

	unlock := s.lockEntity(id)
	defer unlock()

	pl, err := s.store.RemoveTrack(ctx, id, mustUUID(p.TrackID))
	if err != nil {
		return nil, 0, classify(err)
	}
	env := s.broadcastPlaylist(realtime.EventTrackRemoved, pl)
	return pl, env.ServerSeq, nil
}

func (s *Service) handleTrackMove(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p trackMoveParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	id := mustUUID(p.PlaylistID)

	unlock := s.lockEntity(id)
	defer unlock()

	pl, err := s.store.MoveTrack(ctx, id, mustUUID(p.TrackID), p.NewIndex)
	if err != nil {
		return nil, 0, classify(err)
	}
	env := s.broadcastPlaylist(realtime.EventPlaylistUpdated, pl)
	return pl, env.ServerSeq, nil
}

// handleTagUnlink removes a tag binding. Tag links are catalog-wide
// state, so the broadcast refreshes the link list for catalog room
// subscribers.
func (s *Service) handleTagUnlink(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p tagUnlinkParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}

	if err := s.store.UnlinkTag(ctx, p.TagID); err != nil {
		return nil, 0, classify(err)
	}
	links, err := s.store.ListTagLinks(ctx)
	if err != nil {
		return nil, 0, classify(err)
	}

	env := s.hub.Broadcast(realtime.RoomCatalog, realtime.EventCatalogSnapshot, map[string]any{
		"tag_links": links,
	})
	return map[string]any{"tag_id": p.TagID}, env.ServerSeq, nil
}

// broadcastPlaylist emits a playlist mutation to the catalog room and
// the playlist's own room, stamped once against the playlist scope.
func (s *Service) broadcastPlaylist(eventType string, pl *models.Playlist) *realtime.Envelope {
	return s.hub.BroadcastToRooms(
		[]string{realtime.RoomCatalog, pl.ScopeID()},
		eventType, pl, pl.ScopeID(),
	)
}

// mustUUID parses an id already vetted by the uuid4 validation tag.
func mustUUID(raw string) uuid.UUID {
	id, err := uuid.Parse(raw)
	if err != nil {
		panic("catalog: validated uuid failed to parse: " + raw)
	}
	return id
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		raw = json.RawMessage("{}")
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return realtime.NewProtoError(realtime.ErrTypeValidation, "malformed params: "+err.Error())
	}
	if err := validation.ValidateStruct(dst); err != nil {
		return realtime.NewProtoError(realtime.ErrTypeValidation, err.Error())
	}
	return nil
}

// classify maps store errors onto the acknowledgment taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return realtime.WrapProtoError(realtime.ErrTypeNotFound, err)
	case errors.Is(err, ErrNameRequired):
		return realtime.WrapProtoError(realtime.ErrTypeValidation, err)
	default:
		return realtime.WrapProtoError(realtime.ErrTypeInternal, err)
	}
}
