// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package player

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/boxwire/boxwire/internal/catalog"
	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/realtime"
)

// tickRate bounds how often position ticks reach the player room. The
// engine may emit far more often; excess ticks update the aggregate but
// produce no broadcast.
const tickRate = 2 // per second

// Errors callers branch on.
var (
	// ErrNothingPlaying indicates a pause/resume/seek/skip with no
	// playlist loaded.
	ErrNothingPlaying = errors.New("player: nothing playing")

	// ErrEmptyPlaylist indicates a play request for a playlist with no
	// tracks.
	ErrEmptyPlaylist = errors.New("player: playlist has no tracks")
)

// Controller serializes every playback mutation behind one lock and
// broadcasts the resulting state to the player room.
type Controller struct {
	hub    *realtime.Hub
	store  catalog.Store
	engine Engine

	mu    sync.Mutex
	state State

	ticks *rate.Limiter
}

// NewController creates an idle controller.
func NewController(hub *realtime.Hub, store catalog.Store, engine Engine) *Controller {
	return &Controller{
		hub:    hub,
		store:  store,
		engine: engine,
		state:  State{Status: StatusIdle, TrackIndex: -1},
		ticks:  rate.NewLimiter(rate.Limit(tickRate), 1),
	}
}

// Play loads a playlist and starts it at trackIndex (clamped to the
// first track when negative). Any current playback is replaced.
func (c *Controller) Play(ctx context.Context, playlistID uuid.UUID, trackIndex int) (State, *realtime.Envelope, error) {
	pl, err := c.store.GetPlaylist(ctx, playlistID)
	if err != nil {
		return State{}, nil, fmt.Errorf("load playlist: %w", err)
	}
	if len(pl.Tracks) == 0 {
		return State{}, nil, ErrEmptyPlaylist
	}
	if trackIndex < 0 || trackIndex >= len(pl.Tracks) {
		trackIndex = 0
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	track := pl.Tracks[trackIndex]
	if err := c.engine.Play(ctx, track); err != nil {
		return State{}, nil, fmt.Errorf("engine play: %w", err)
	}

	id := pl.ID
	c.state = State{
		Status:       StatusPlaying,
		PlaylistID:   &id,
		PlaylistName: pl.Name,
		TrackIndex:   trackIndex,
		TrackCount:   len(pl.Tracks),
		Track:        &track,
		PositionMs:   0,
		UpdatedAt:    time.Now(),
	}
	env := c.broadcastLocked()
	logging.Info().
		Str("playlist_id", pl.ID.String()).
		Str("track", track.Title).
		Int("track_index", trackIndex).
		Msg("playback started")
	return c.state, env, nil
}

// Pause suspends playback.
func (c *Controller) Pause(ctx context.Context) (State, *realtime.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusPlaying {
		return State{}, nil, ErrNothingPlaying
	}
	if err := c.engine.Pause(ctx); err != nil {
		return State{}, nil, fmt.Errorf("engine pause: %w", err)
	}
	c.state.Status = StatusPaused
	c.state.UpdatedAt = time.Now()
	return c.state, c.broadcastLocked(), nil
}

// Resume continues paused playback.
func (c *Controller) Resume(ctx context.Context) (State, *realtime.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status != StatusPaused {
		return State{}, nil, ErrNothingPlaying
	}
	if err := c.engine.Resume(ctx); err != nil {
		return State{}, nil, fmt.Errorf("engine resume: %w", err)
	}
	c.state.Status = StatusPlaying
	c.state.UpdatedAt = time.Now()
	return c.state, c.broadcastLocked(), nil
}

// Seek jumps inside the current track.
func (c *Controller) Seek(ctx context.Context, positionMs int64) (State, *realtime.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status == StatusIdle {
		return State{}, nil, ErrNothingPlaying
	}
	if err := c.engine.Seek(ctx, positionMs); err != nil {
		return State{}, nil, fmt.Errorf("engine seek: %w", err)
	}
	c.state.PositionMs = positionMs
	c.state.UpdatedAt = time.Now()
	return c.state, c.broadcastLocked(), nil
}

// Stop unloads the playlist and returns the player to idle.
func (c *Controller) Stop(ctx context.Context) (State, *realtime.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopLocked(ctx)
}

func (c *Controller) stopLocked(ctx context.Context) (State, *realtime.Envelope, error) {
	if c.state.Status == StatusIdle {
		return State{}, nil, ErrNothingPlaying
	}
	if err := c.engine.Stop(ctx); err != nil {
		return State{}, nil, fmt.Errorf("engine stop: %w", err)
	}
	c.state = State{Status: StatusIdle, TrackIndex: -1, UpdatedAt: time.Now()}
	logging.Info().Msg("playback stopped")
	return c.state, c.broadcastLocked(), nil
}

// Next skips to the following track; past the last track it stops.
func (c *Controller) Next(ctx context.Context) (State, *realtime.Envelope, error) {
	return c.skip(ctx, 1)
}

// Previous returns to the preceding track; on the first track it
// restarts it.
func (c *Controller) Previous(ctx context.Context) (State, *realtime.Envelope, error) {
	return c.skip(ctx, -1)
}

func (c *Controller) skip(ctx context.Context, delta int) (State, *realtime.Envelope, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status == StatusIdle || c.state.PlaylistID == nil {
		return State{}, nil, ErrNothingPlaying
	}

	pl, err := c.store.GetPlaylist(ctx, *c.state.PlaylistID)
	if err != nil {
		return State{}, nil, fmt.Errorf("load playlist: %w", err)
	}
	if len(pl.Tracks) == 0 {
		return c.stopLocked(ctx)
	}

	next := c.state.TrackIndex + delta
	if next >= len(pl.Tracks) {
		return c.stopLocked(ctx)
	}
	if next < 0 {
		next = 0
	}

	track := pl.Tracks[next]
	if err := c.engine.Play(ctx, track); err != nil {
		return State{}, nil, fmt.Errorf("engine play: %w", err)
	}
	c.state.Status = StatusPlaying
	c.state.TrackIndex = next
	c.state.TrackCount = len(pl.Tracks)
	c.state.Track = &track
	c.state.PositionMs = 0
	c.state.UpdatedAt = time.Now()
	return c.state, c.broadcastLocked(), nil
}

// Tick records engine playback progress. The aggregate always advances;
// the broadcast is rate-limited so a chatty engine cannot flood every
// room subscriber.
func (c *Controller) Tick(positionMs int64) {
	c.mu.Lock()
	if c.state.Status != StatusPlaying {
		c.mu.Unlock()
		return
	}
	c.state.PositionMs = positionMs
	pos := Position{
		PlaylistID: c.state.PlaylistID,
		TrackIndex: c.state.TrackIndex,
		PositionMs: positionMs,
	}
	c.mu.Unlock()

	if !c.ticks.Allow() {
		return
	}
	c.hub.Broadcast(realtime.RoomPlayer, realtime.EventPlayerPosition, pos)
}

// TrackEnded advances to the next track when the engine reports the
// current one finished, stopping at the end of the playlist.
func (c *Controller) TrackEnded(ctx context.Context) {
	if _, _, err := c.Next(ctx); err != nil && !errors.Is(err, ErrNothingPlaying) {
		logging.Error().Err(err).Msg("failed to advance after track end")
	}
}

// Fault forces the player to idle after an engine fault.
func (c *Controller) Fault(message string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state.Status == StatusIdle {
		return
	}
	c.state = State{Status: StatusIdle, TrackIndex: -1, UpdatedAt: time.Now()}
	c.broadcastLocked()
	logging.Error().Str("message", message).Msg("playback engine fault")
}

// Snapshot returns the current aggregate for the "player" resync scope.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// broadcastLocked emits the current state to the player room. Caller
// holds c.mu, so state mutation and broadcast order always agree.
func (c *Controller) broadcastLocked() *realtime.Envelope {
	return c.hub.Broadcast(realtime.RoomPlayer, realtime.EventPlayerState, c.state)
}
