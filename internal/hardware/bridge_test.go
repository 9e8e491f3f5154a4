// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package hardware

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/boxwire/boxwire/internal/association"
	"github.com/boxwire/boxwire/internal/catalog"
	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/models"
	"github.com/boxwire/boxwire/internal/player"
	"github.com/boxwire/boxwire/internal/realtime"
	"github.com/boxwire/boxwire/internal/sequence"
)

//nolint:gochecknoinits // init ensures consistent logging for tests
func init() {
	logging.Init(logging.Config{Level: "info", Output: io.Discard})
}

type noopEngine struct{}

func (noopEngine) Play(ctx context.Context, track models.Track) error { return nil }
func (noopEngine) Pause(ctx context.Context) error                    { return nil }
func (noopEngine) Resume(ctx context.Context) error                   { return nil }
func (noopEngine) Seek(ctx context.Context, positionMs int64) error   { return nil }
func (noopEngine) Stop(ctx context.Context) error                     { return nil }

type bridgeFixture struct {
	bus          *Bus
	bridge       *Bridge
	store        catalog.Store
	associations *association.Manager
	controller   *player.Controller
	playlist     *models.Playlist
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	hub := realtime.NewHub(sequence.NewAuthority())
	store := catalog.NewMemoryStore()
	pl, err := store.CreatePlaylist(context.Background(), "Tagged Mix")
	if err != nil {
		t.Fatalf("create playlist: %v", err)
	}
	pl, err = store.AddTrack(context.Background(), pl.ID, models.Track{Title: "Opener", Path: "/music/opener.flac"})
	if err != nil {
		t.Fatalf("add track: %v", err)
	}

	bus := NewBus()
	t.Cleanup(func() { _ = bus.Close() })

	assoc := association.NewManager(hub, store, time.Minute)
	ctrl := player.NewController(hub, store, noopEngine{})
	return &bridgeFixture{
		bus:          bus,
		bridge:       NewBridge(bus, assoc, ctrl, store),
		store:        store,
		associations: assoc,
		controller:   ctrl,
		playlist:     pl,
	}
}

func (f *bridgeFixture) run(t *testing.T) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = f.bridge.Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	// Yield until Serve's subscriptions are in place: the gochannel bus
	// drops messages published while a topic has no subscriber.
	time.Sleep(50 * time.Millisecond)
	return cancel
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestDetectionOfLinkedTagStartsPlayback(t *testing.T) {
	f := newBridgeFixture(t)
	if _, err := f.store.LinkTag(context.Background(), "tag-1", f.playlist.ID); err != nil {
		t.Fatalf("link tag: %v", err)
	}
	f.run(t)

	if err := f.bus.PublishTagDetected(TagDetected{TagID: "tag-1"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool {
		return f.controller.Snapshot().Status == player.StatusPlaying
	}, "playback to start")

	state := f.controller.Snapshot()
	if state.PlaylistID == nil || *state.PlaylistID != f.playlist.ID {
		t.Errorf("playing playlist = %v, want %s", state.PlaylistID, f.playlist.ID)
	}
}

func TestDetectionOfUnlinkedTagIsIgnored(t *testing.T) {
	f := newBridgeFixture(t)
	f.run(t)

	if err := f.bus.PublishTagDetected(TagDetected{TagID: "mystery"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	// Give the bridge a moment; the player must stay idle.
	time.Sleep(50 * time.Millisecond)
	if got := f.controller.Snapshot().Status; got != player.StatusIdle {
		t.Errorf("status = %s, want idle", got)
	}
}

func TestDetectionFeedsWaitingNegotiation(t *testing.T) {
	f := newBridgeFixture(t)
	f.run(t)

	sess, _, err := f.associations.Start(context.Background(), f.playlist.ScopeID())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.bus.PublishTagDetected(TagDetected{TagID: "tag-new"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool {
		return sess.State() == association.StateSuccess
	}, "association success")

	// The negotiation consumed the detection; nothing started playing.
	if got := f.controller.Snapshot().Status; got != player.StatusIdle {
		t.Errorf("status = %s, want idle", got)
	}
	link, err := f.store.LookupTag(context.Background(), "tag-new")
	if err != nil {
		t.Fatalf("LookupTag: %v", err)
	}
	if link.PlaylistID != f.playlist.ID {
		t.Errorf("tag linked to %s", link.PlaylistID)
	}
}

func TestReaderFaultFailsNegotiation(t *testing.T) {
	f := newBridgeFixture(t)
	f.run(t)

	sess, _, err := f.associations.Start(context.Background(), f.playlist.ScopeID())
	if err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.bus.PublishReaderFault(ReaderFault{Message: "antenna offline"}); err != nil {
		t.Fatalf("publish: %v", err)
	}

	waitFor(t, func() bool {
		return sess.State() == association.StateError
	}, "association error")
}

func TestEngineEventsDriveController(t *testing.T) {
	f := newBridgeFixture(t)
	f.run(t)

	if _, _, err := f.controller.Play(context.Background(), f.playlist.ID, 0); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if err := f.bus.PublishEngineEvent(EngineEvent{Kind: EngineKindTick, PositionMs: 1500}); err != nil {
		t.Fatalf("publish tick: %v", err)
	}
	waitFor(t, func() bool {
		return f.controller.Snapshot().PositionMs == 1500
	}, "tick to land")

	// Single-track playlist: track end stops playback.
	if err := f.bus.PublishEngineEvent(EngineEvent{Kind: EngineKindTrackEnded}); err != nil {
		t.Fatalf("publish end: %v", err)
	}
	waitFor(t, func() bool {
		return f.controller.Snapshot().Status == player.StatusIdle
	}, "playback to stop")
}

func TestReaderPumpPublishesDetections(t *testing.T) {
	f := newBridgeFixture(t)
	if _, err := f.store.LinkTag(context.Background(), "tag-pump", f.playlist.ID); err != nil {
		t.Fatalf("link tag: %v", err)
	}
	f.run(t)

	reader := &scriptedReader{tags: []string{"tag-pump"}}
	pump := NewReaderPump(f.bus, reader)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	pumpDone := make(chan struct{})
	go func() {
		defer close(pumpDone)
		_ = pump.Serve(ctx)
	}()

	waitFor(t, func() bool {
		return f.controller.Snapshot().Status == player.StatusPlaying
	}, "pumped detection to start playback")

	cancel()
	<-pumpDone
}

// scriptedReader yields its tags once, then blocks until cancellation.
type scriptedReader struct {
	tags []string
	next int
}

func (r *scriptedReader) Next(ctx context.Context) (TagDetected, error) {
	if r.next < len(r.tags) {
		tag := r.tags[r.next]
		r.next++
		return TagDetected{TagID: tag, DetectedAt: time.Now()}, nil
	}
	<-ctx.Done()
	return TagDetected{}, ctx.Err()
}
