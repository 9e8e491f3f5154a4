// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import (
	"context"
	"time"

	"github.com/goccy/go-json"

	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/validation"
)

// Client command types.
const (
	CmdJoin          = "join"
	CmdLeave         = "leave"
	CmdSyncRequest   = "sync:request"
	CmdOp            = "op"
	CmdAssocStart    = "association:start"
	CmdAssocCancel   = "association:cancel"
	CmdAssocOverride = "association:override"
	CmdPing          = "ping"
)

// Association actions the association manager registers with the tracker.
// The dedicated association:* command types are translated onto these so
// negotiation requests get the same idempotency guarantees as any op.
const (
	ActionAssocStart    = "association.start"
	ActionAssocCancel   = "association.cancel"
	ActionAssocOverride = "association.override"
)

// Command is the decoded shape of every inbound client frame.
type Command struct {
	Type       string          `json:"type"`
	Room       string          `json:"room,omitempty"`
	Scope      string          `json:"scope,omitempty"`
	ClientOpID string          `json:"client_op_id,omitempty"`
	Action     string          `json:"action,omitempty"`
	Params     json.RawMessage `json:"params,omitempty"`
	Timestamp  int64           `json:"timestamp,omitempty"`
}

type joinCommand struct {
	Room string `validate:"required,roomname"`
}

type syncCommand struct {
	Scope string `validate:"required,max=128"`
}

type opCommand struct {
	ClientOpID string `validate:"required,max=128"`
	Action     string `validate:"required,max=64"`
}

// Router dispatches inbound client frames to the hub, the operation
// tracker, and the resync machinery. One Dispatch call runs per frame on
// the session's read pump, so each session's commands are handled
// strictly in order.
type Router struct {
	hub  *Hub
	ops  *Tracker
	sync *SyncRegistry
}

// NewRouter wires a router over the hub, tracker, and sync registry.
func NewRouter(hub *Hub, ops *Tracker, sync *SyncRegistry) *Router {
	return &Router{hub: hub, ops: ops, sync: sync}
}

// Dispatch handles one raw inbound frame. A malformed frame is answered
// with a structured validation error; one session's bad input never
// affects any other session.
func (r *Router) Dispatch(sess *Session, raw []byte) {
	var cmd Command
	if err := json.Unmarshal(raw, &cmd); err != nil {
		r.pushError(sess, "", "malformed command: not valid JSON")
		return
	}

	switch cmd.Type {
	case CmdJoin:
		r.handleJoin(sess, cmd)
	case CmdLeave:
		r.handleLeave(sess, cmd)
	case CmdSyncRequest:
		r.handleSync(sess, cmd)
	case CmdOp:
		r.handleOp(sess, cmd, cmd.Action)
	case CmdAssocStart:
		r.handleOp(sess, cmd, ActionAssocStart)
	case CmdAssocCancel:
		r.handleOp(sess, cmd, ActionAssocCancel)
	case CmdAssocOverride:
		r.handleOp(sess, cmd, ActionAssocOverride)
	case CmdPing:
		r.handlePing(sess, cmd)
	default:
		r.pushError(sess, cmd.ClientOpID, "unknown command type: "+cmd.Type)
	}
}

func (r *Router) handleJoin(sess *Session, cmd Command) {
	if err := validation.ValidateStruct(&joinCommand{Room: cmd.Room}); err != nil {
		r.pushError(sess, "", err.Error())
		return
	}

	serverSeq := r.hub.Join(sess, cmd.Room)
	r.push(sess, map[string]any{
		"type":       "ack:join",
		"room":       cmd.Room,
		"success":    true,
		"server_seq": serverSeq,
	})
}

func (r *Router) handleLeave(sess *Session, cmd Command) {
	if err := validation.ValidateStruct(&joinCommand{Room: cmd.Room}); err != nil {
		r.pushError(sess, "", err.Error())
		return
	}

	r.hub.Leave(sess, cmd.Room)
	r.push(sess, map[string]any{
		"type":    "ack:leave",
		"room":    cmd.Room,
		"success": true,
	})
}

func (r *Router) handleSync(sess *Session, cmd Command) {
	if err := validation.ValidateStruct(&syncCommand{Scope: cmd.Scope}); err != nil {
		r.push(sess, map[string]any{
			"type":       "sync:error",
			"scope":      cmd.Scope,
			"error":      err.Error(),
			"error_type": ErrTypeValidation,
		})
		return
	}
	r.sync.Serve(context.Background(), sess, cmd.Scope)
}

func (r *Router) handleOp(sess *Session, cmd Command, action string) {
	if err := validation.ValidateStruct(&opCommand{ClientOpID: cmd.ClientOpID, Action: action}); err != nil {
		r.pushError(sess, cmd.ClientOpID, err.Error())
		return
	}
	r.ops.Execute(context.Background(), sess, cmd.ClientOpID, action, cmd.Params)
}

// handlePing answers the application-level liveness probe, echoing the
// client timestamp so the client can measure round trips.
func (r *Router) handlePing(sess *Session, cmd Command) {
	r.push(sess, map[string]any{
		"type":        "pong",
		"timestamp":   cmd.Timestamp,
		"server_time": time.Now().UnixMilli(),
	})
}

func (r *Router) push(sess *Session, msg any) {
	if !sess.push(mustMarshal(msg)) {
		logging.Warn().Str("session_id", sess.id).Msg("reply dropped, session queue full")
		r.hub.Detach(sess)
	}
}

func (r *Router) pushError(sess *Session, clientOpID, message string) {
	frame := opAck{
		Type:       "err:op",
		ClientOpID: clientOpID,
		Success:    false,
		Error:      message,
		ErrorType:  ErrTypeValidation,
	}
	r.push(sess, frame)
}
