// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import (
	"context"
	"testing"

	"github.com/goccy/go-json"
)

func newTestRouter(h *Hub) (*Router, *Tracker, *SyncRegistry) {
	ops := NewTracker()
	sr := NewSyncRegistry(h)
	return NewRouter(h, ops, sr), ops, sr
}

func TestDispatchJoinAndLeave(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	r, _, _ := newTestRouter(h)

	r.Dispatch(s, []byte(`{"type":"join","room":"catalog"}`))

	msg := recvFrame(t, s)
	if msg["type"] != "ack:join" || msg["room"] != "catalog" {
		t.Fatalf("join ack = %v", msg)
	}
	if !h.InRoom(s, RoomCatalog) {
		t.Error("session not in room after join")
	}

	r.Dispatch(s, []byte(`{"type":"leave","room":"catalog"}`))

	msg = recvFrame(t, s)
	if msg["type"] != "ack:leave" {
		t.Fatalf("leave ack = %v", msg)
	}
	if h.InRoom(s, RoomCatalog) {
		t.Error("session still in room after leave")
	}
}

func TestDispatchRejectsInvalidRoomName(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	r, _, _ := newTestRouter(h)

	r.Dispatch(s, []byte(`{"type":"join","room":"../etc"}`))

	msg := recvFrame(t, s)
	if msg["type"] != "err:op" {
		t.Fatalf("type = %v, want err:op", msg["type"])
	}
	if h.RoomCount() != 0 {
		t.Error("invalid room was created")
	}
}

func TestDispatchMalformedJSON(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	r, _, _ := newTestRouter(h)

	r.Dispatch(s, []byte(`{not json`))

	msg := recvFrame(t, s)
	if msg["type"] != "err:op" {
		t.Fatalf("type = %v, want err:op", msg["type"])
	}
	if msg["error_type"] != ErrTypeValidation {
		t.Errorf("error_type = %v", msg["error_type"])
	}
}

func TestDispatchUnknownCommandType(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	r, _, _ := newTestRouter(h)

	r.Dispatch(s, []byte(`{"type":"teleport"}`))

	msg := recvFrame(t, s)
	if msg["type"] != "err:op" {
		t.Fatalf("type = %v, want err:op", msg["type"])
	}
}

func TestDispatchOpRoutesToTracker(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	r, ops, _ := newTestRouter(h)

	var gotParams string
	ops.Register("playlist.create", func(ctx context.Context, sess *Session, params json.RawMessage) (any, uint64, error) {
		gotParams = string(params)
		return nil, 7, nil
	})

	r.Dispatch(s, []byte(`{"type":"op","client_op_id":"c1","action":"playlist.create","params":{"name":"Morning"}}`))

	msg := recvFrame(t, s)
	if msg["type"] != "ack:op" {
		t.Fatalf("type = %v, want ack:op", msg["type"])
	}
	if gotParams != `{"name":"Morning"}` {
		t.Errorf("params = %s", gotParams)
	}
}

func TestDispatchAssociationCommandsMapToActions(t *testing.T) {
	h := newTestHub()
	r, ops, _ := newTestRouter(h)

	executed := make(map[string]bool)
	for _, action := range []string{ActionAssocStart, ActionAssocCancel, ActionAssocOverride} {
		action := action
		ops.Register(action, func(ctx context.Context, sess *Session, params json.RawMessage) (any, uint64, error) {
			executed[action] = true
			return nil, 0, nil
		})
	}

	cases := []struct {
		cmd    string
		action string
	}{
		{CmdAssocStart, ActionAssocStart},
		{CmdAssocCancel, ActionAssocCancel},
		{CmdAssocOverride, ActionAssocOverride},
	}
	for _, tc := range cases {
		t.Run(tc.cmd, func(t *testing.T) {
			s := newTestSession(h)
			r.Dispatch(s, []byte(`{"type":"`+tc.cmd+`","client_op_id":"`+tc.cmd+`-1"}`))
			msg := recvFrame(t, s)
			if msg["type"] != "ack:op" {
				t.Fatalf("type = %v, want ack:op", msg["type"])
			}
			if !executed[tc.action] {
				t.Errorf("action %s not executed", tc.action)
			}
		})
	}
}

func TestDispatchOpRequiresClientOpID(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	r, _, _ := newTestRouter(h)

	r.Dispatch(s, []byte(`{"type":"op","action":"playlist.create"}`))

	msg := recvFrame(t, s)
	if msg["type"] != "err:op" {
		t.Fatalf("type = %v, want err:op", msg["type"])
	}
}

func TestDispatchPing(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	r, _, _ := newTestRouter(h)

	r.Dispatch(s, []byte(`{"type":"ping","timestamp":12345}`))

	msg := recvFrame(t, s)
	if msg["type"] != "pong" {
		t.Fatalf("type = %v, want pong", msg["type"])
	}
	if msg["timestamp"] != float64(12345) {
		t.Errorf("timestamp echo = %v", msg["timestamp"])
	}
	if msg["server_time"] == nil {
		t.Error("server_time missing")
	}
}

func TestDispatchSyncRequest(t *testing.T) {
	h := newTestHub()
	s := newTestSession(h)
	r, _, sr := newTestRouter(h)
	sr.RegisterScope("player", func(ctx context.Context) (any, error) { return "idle", nil })

	r.Dispatch(s, []byte(`{"type":"sync:request","scope":"player"}`))

	msg := recvFrame(t, s)
	if msg["type"] != "sync:complete" {
		t.Fatalf("type = %v, want sync:complete", msg["type"])
	}
	if msg["data"] != "idle" {
		t.Errorf("data = %v", msg["data"])
	}
}
