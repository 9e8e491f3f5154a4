// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package catalog

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/goccy/go-json"

	"github.com/boxwire/boxwire/internal/models"
	"github.com/boxwire/boxwire/internal/realtime"
	"github.com/boxwire/boxwire/internal/sequence"
)

func newTestService(t *testing.T) (*Service, *realtime.Hub, Store) {
	t.Helper()
	hub := realtime.NewHub(sequence.NewAuthority())
	store := NewMemoryStore()
	return NewService(hub, store), hub, store
}

func rawParams(t *testing.T, v any) json.RawMessage {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return data
}

func TestPlaylistCreateOp(t *testing.T) {
	svc, _, store := newTestService(t)

	data, seq, err := svc.handlePlaylistCreate(context.Background(), nil,
		rawParams(t, map[string]string{"name": "Road Trip"}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if seq == 0 {
		t.Error("create broadcast not stamped")
	}

	pl := data.(*models.Playlist)
	stored, err := store.GetPlaylist(context.Background(), pl.ID)
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if stored.Name != "Road Trip" {
		t.Errorf("stored name = %q", stored.Name)
	}
}

func TestPlaylistCreateValidation(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, seq, err := svc.handlePlaylistCreate(context.Background(), nil, rawParams(t, map[string]string{}))
	if err == nil {
		t.Fatal("create without name succeeded")
	}
	if realtime.ErrorType(err) != realtime.ErrTypeValidation {
		t.Errorf("error type = %s", realtime.ErrorType(err))
	}
	// A failed mutation consumes no sequence number.
	if seq != 0 {
		t.Errorf("failed op returned seq %d", seq)
	}
}

func TestTrackOpsRoundTrip(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	pl, err := store.CreatePlaylist(ctx, "Mix")
	if err != nil {
		t.Fatalf("CreatePlaylist: %v", err)
	}

	data, _, err := svc.handleTrackAdd(ctx, nil, rawParams(t, map[string]any{
		"playlist_id": pl.ID.String(),
		"title":       "Opener",
		"path":        "/music/opener.flac",
	}))
	if err != nil {
		t.Fatalf("track.add: %v", err)
	}
	withTrack := data.(*models.Playlist)
	if len(withTrack.Tracks) != 1 {
		t.Fatalf("track count = %d", len(withTrack.Tracks))
	}

	data, _, err = svc.handleTrackRemove(ctx, nil, rawParams(t, map[string]string{
		"playlist_id": pl.ID.String(),
		"track_id":    withTrack.Tracks[0].ID.String(),
	}))
	if err != nil {
		t.Fatalf("track.remove: %v", err)
	}
	if got := data.(*models.Playlist); len(got.Tracks) != 0 {
		t.Errorf("track count after remove = %d", len(got.Tracks))
	}
}

func TestTrackMoveOp(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	pl, _ := store.CreatePlaylist(ctx, "Mix")
	for _, title := range []string{"a", "b", "c"} {
		var err error
		if pl, err = store.AddTrack(ctx, pl.ID, models.Track{Title: title, Path: "/" + title}); err != nil {
			t.Fatalf("AddTrack: %v", err)
		}
	}

	data, _, err := svc.handleTrackMove(ctx, nil, rawParams(t, map[string]any{
		"playlist_id": pl.ID.String(),
		"track_id":    pl.Tracks[0].ID.String(),
		"new_index":   2,
	}))
	if err != nil {
		t.Fatalf("track.move: %v", err)
	}
	moved := data.(*models.Playlist)
	if moved.Tracks[2].Title != "a" {
		t.Errorf("order after move = %v", moved.Tracks)
	}
}

func TestPlaylistDeleteOpForgetsScope(t *testing.T) {
	svc, hub, store := newTestService(t)
	ctx := context.Background()
	pl, _ := store.CreatePlaylist(ctx, "Doomed")

	// Stamp the scope once so there is a counter to forget.
	hub.BroadcastScoped(pl.ScopeID(), realtime.EventPlaylistUpdated, nil, pl.ScopeID())
	if hub.Sequences().CurrentScoped(pl.ScopeID()) == 0 {
		t.Fatal("scope counter not primed")
	}

	if _, _, err := svc.handlePlaylistDelete(ctx, nil, rawParams(t, map[string]string{
		"playlist_id": pl.ID.String(),
	})); err != nil {
		t.Fatalf("playlist.delete: %v", err)
	}

	if hub.Sequences().CurrentScoped(pl.ScopeID()) != 0 {
		t.Error("deleted playlist's scope counter not forgotten")
	}
	if _, err := store.GetPlaylist(ctx, pl.ID); err == nil {
		t.Error("playlist still present after delete")
	}
}

func TestOpsOnUnknownPlaylistAreNotFound(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()
	params := rawParams(t, map[string]string{
		"playlist_id": "8e5cbc2e-6a1f-4b6e-9a3c-2f61e3b9b001",
		"name":        "x",
	})

	if _, _, err := svc.handlePlaylistRename(ctx, nil, params); realtime.ErrorType(err) != realtime.ErrTypeNotFound {
		t.Errorf("rename error type = %s", realtime.ErrorType(err))
	}
	if _, _, err := svc.handlePlaylistDelete(ctx, nil, params); realtime.ErrorType(err) != realtime.ErrTypeNotFound {
		t.Errorf("delete error type = %s", realtime.ErrorType(err))
	}
}

func TestTagUnlinkOp(t *testing.T) {
	svc, _, store := newTestService(t)
	ctx := context.Background()
	pl, _ := store.CreatePlaylist(ctx, "Tagged")
	if _, err := store.LinkTag(ctx, "tag-1", pl.ID); err != nil {
		t.Fatalf("LinkTag: %v", err)
	}

	if _, _, err := svc.handleTagUnlink(ctx, nil, rawParams(t, map[string]string{"tag_id": "tag-1"})); err != nil {
		t.Fatalf("tag.unlink: %v", err)
	}
	if _, err := store.LookupTag(ctx, "tag-1"); err == nil {
		t.Error("tag still linked after unlink")
	}

	if _, _, err := svc.handleTagUnlink(ctx, nil, rawParams(t, map[string]string{"tag_id": "tag-1"})); realtime.ErrorType(err) != realtime.ErrTypeNotFound {
		t.Errorf("second unlink error type = %s", realtime.ErrorType(err))
	}
}

// TestConcurrentMutationsKeepRevisionAndScopeSeqAligned drives parallel
// renames of one playlist and checks that every broadcastable result is
// committed: the final revision equals the initial one plus the number
// of successful mutations.
func TestConcurrentMutationsKeepRevisionAndScopeSeqAligned(t *testing.T) {
	svc, hub, store := newTestService(t)
	ctx := context.Background()
	pl, _ := store.CreatePlaylist(ctx, "Contended")

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, _, err := svc.handlePlaylistRename(ctx, nil, rawParams(t, map[string]string{
				"playlist_id": pl.ID.String(),
				"name":        fmt.Sprintf("name-%d", i),
			}))
			if err != nil {
				t.Errorf("rename %d: %v", i, err)
			}
		}(i)
	}
	wg.Wait()

	final, err := store.GetPlaylist(ctx, pl.ID)
	if err != nil {
		t.Fatalf("GetPlaylist: %v", err)
	}
	if final.Revision != 1+workers {
		t.Errorf("final revision = %d, want %d", final.Revision, 1+workers)
	}
	if got := hub.Sequences().CurrentScoped(pl.ScopeID()); got != workers {
		t.Errorf("scope seq = %d, want %d", got, workers)
	}
}
