// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import (
	"context"
	"testing"
)

func TestSyncServesRegisteredScope(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	sr := NewSyncRegistry(h)
	sr.RegisterScope("catalog", func(ctx context.Context) (any, error) {
		return map[string]int{"playlists": 3}, nil
	})

	h.Broadcast(RoomCatalog, EventPlaylistCreated, nil)

	sr.Serve(context.Background(), s, "catalog")

	msg := recvFrame(t, s)
	if msg["type"] != "sync:complete" {
		t.Fatalf("type = %v, want sync:complete", msg["type"])
	}
	if msg["scope"] != "catalog" {
		t.Errorf("scope = %v", msg["scope"])
	}
	if seq := uint64(msg["server_seq"].(float64)); seq != 1 {
		t.Errorf("server_seq = %d, want 1", seq)
	}
	data := msg["data"].(map[string]any)
	if data["playlists"] != float64(3) {
		t.Errorf("data = %v", data)
	}
	if s.LastSeq() != 1 {
		t.Errorf("session last seq = %d, want 1 after resync", s.LastSeq())
	}
}

func TestSyncEntityScopeReportsScopeSeq(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	sr := NewSyncRegistry(h)
	sr.RegisterEntityScope(func(ctx context.Context, scopeID string) (any, error) {
		return map[string]string{"scope": scopeID}, nil
	})

	for i := 0; i < 3; i++ {
		h.BroadcastScoped("entity:p1", EventPlaylistUpdated, nil, "entity:p1")
	}

	sr.Serve(context.Background(), s, "entity:p1")

	msg := recvFrame(t, s)
	if msg["type"] != "sync:complete" {
		t.Fatalf("type = %v, want sync:complete", msg["type"])
	}
	if seq := uint64(msg["scope_seq"].(float64)); seq != 3 {
		t.Errorf("scope_seq = %d, want 3", seq)
	}
}

func TestSyncAllCombinesScopes(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	sr := NewSyncRegistry(h)
	sr.RegisterScope("catalog", func(ctx context.Context) (any, error) { return "c", nil })
	sr.RegisterScope("player", func(ctx context.Context) (any, error) { return "p", nil })

	sr.Serve(context.Background(), s, ScopeAll)

	msg := recvFrame(t, s)
	if msg["type"] != "sync:complete" {
		t.Fatalf("type = %v, want sync:complete", msg["type"])
	}
	data := msg["data"].(map[string]any)
	if data["catalog"] != "c" || data["player"] != "p" {
		t.Errorf("combined data = %v", data)
	}
}

func TestSyncUnknownScopeIsNotFound(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	sr := NewSyncRegistry(h)

	sr.Serve(context.Background(), s, "nope")

	msg := recvFrame(t, s)
	if msg["type"] != "sync:error" {
		t.Fatalf("type = %v, want sync:error", msg["type"])
	}
	if msg["error_type"] != ErrTypeNotFound {
		t.Errorf("error_type = %v, want %s", msg["error_type"], ErrTypeNotFound)
	}
}

func TestSyncSnapshotFailureSurfacesErrorType(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	sr := NewSyncRegistry(h)
	sr.RegisterScope("catalog", func(ctx context.Context) (any, error) {
		return nil, NewProtoError(ErrTypeInternal, "store unavailable")
	})

	sr.Serve(context.Background(), s, "catalog")

	msg := recvFrame(t, s)
	if msg["type"] != "sync:error" {
		t.Fatalf("type = %v, want sync:error", msg["type"])
	}
	if msg["error_type"] != ErrTypeInternal {
		t.Errorf("error_type = %v, want %s", msg["error_type"], ErrTypeInternal)
	}
}
