// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package player

import (
	"context"
	"errors"

	"github.com/goccy/go-json"
	"github.com/google/uuid"

	"github.com/boxwire/boxwire/internal/catalog"
	"github.com/boxwire/boxwire/internal/realtime"
	"github.com/boxwire/boxwire/internal/validation"
)

// Operation actions registered with the tracker.
const (
	ActionPlay     = "player.play"
	ActionPause    = "player.pause"
	ActionResume   = "player.resume"
	ActionSeek     = "player.seek"
	ActionStop     = "player.stop"
	ActionNext     = "player.next"
	ActionPrevious = "player.previous"
)

type playParams struct {
	PlaylistID string `json:"playlist_id" validate:"required,uuid4"`
	TrackIndex *int   `json:"track_index,omitempty"`
}

type seekParams struct {
	PositionMs int64 `json:"position_ms" validate:"min=0"`
}

// RegisterHandlers binds the playback actions to the operation tracker.
func (c *Controller) RegisterHandlers(t *realtime.Tracker) {
	t.Register(ActionPlay, c.handlePlay)
	t.Register(ActionPause, c.stateOp(c.Pause))
	t.Register(ActionResume, c.stateOp(c.Resume))
	t.Register(ActionSeek, c.handleSeek)
	t.Register(ActionStop, c.stateOp(c.Stop))
	t.Register(ActionNext, c.stateOp(c.Next))
	t.Register(ActionPrevious, c.stateOp(c.Previous))
}

// RegisterSync binds the "player" resync scope.
func (c *Controller) RegisterSync(sr *realtime.SyncRegistry) {
	sr.RegisterScope("player", func(ctx context.Context) (any, error) {
		return c.Snapshot(), nil
	})
}

func (c *Controller) handlePlay(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p playParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	id, err := uuid.Parse(p.PlaylistID)
	if err != nil {
		return nil, 0, realtime.NewProtoError(realtime.ErrTypeValidation, "playlist_id is not a valid uuid")
	}
	index := -1
	if p.TrackIndex != nil {
		index = *p.TrackIndex
	}

	state, env, err := c.Play(ctx, id, index)
	if err != nil {
		return nil, 0, classify(err)
	}
	return state, env.ServerSeq, nil
}

func (c *Controller) handleSeek(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p seekParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	state, env, err := c.Seek(ctx, p.PositionMs)
	if err != nil {
		return nil, 0, classify(err)
	}
	return state, env.ServerSeq, nil
}

// stateOp adapts a parameterless controller mutation to an op handler.
func (c *Controller) stateOp(fn func(context.Context) (State, *realtime.Envelope, error)) realtime.OpHandler {
	return func(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
		state, env, err := fn(ctx)
		if err != nil {
			return nil, 0, classify(err)
		}
		return state, env.ServerSeq, nil
	}
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

// classify maps controller errors onto the acknowledgment taxonomy.
func classify(err error) error {
	switch {
	case errors.Is(err, ErrNothingPlaying):
		return realtime.WrapProtoError(realtime.ErrTypeConflict, err)
	case errors.Is(err, ErrEmptyPlaylist):
		return realtime.WrapProtoError(realtime.ErrTypeConflict, err)
	case errors.Is(err, catalog.ErrNotFound):
		return realtime.WrapProtoError(realtime.ErrTypeNotFound, err)
	default:
		return realtime.WrapProtoError(realtime.ErrTypeInternal, err)
	}
}
