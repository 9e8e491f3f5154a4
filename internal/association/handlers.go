// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package association

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/boxwire/boxwire/internal/catalog"
	"github.com/boxwire/boxwire/internal/realtime"
	"github.com/boxwire/boxwire/internal/validation"
)

type startParams struct {
	TargetScopeID string `json:"target_scope_id" validate:"required,max=128"`
	TagID         string `json:"tag_id,omitempty" validate:"max=128"`
}

type sessionParams struct {
	SessionID string `json:"session_id,omitempty" validate:"omitempty,uuid4"`
}

// RegisterHandlers binds the association actions to the operation
// tracker so negotiation requests get the same at-most-once semantics as
// catalog mutations.
func (m *Manager) RegisterHandlers(t *realtime.Tracker) {
	t.Register(realtime.ActionAssocStart, m.handleStart)
	t.Register(realtime.ActionAssocCancel, m.handleCancel)
	t.Register(realtime.ActionAssocOverride, m.handleOverride)
}

// RegisterSync binds the "associations" resync scope.
func (m *Manager) RegisterSync(sr *realtime.SyncRegistry) {
	sr.RegisterScope("associations", func(ctx context.Context) (any, error) {
		return m.Snapshot(), nil
	})
}

// handleStart opens a negotiation. A pre-supplied tag id (from a client
// that already knows the tag) resolves immediately through the same path
// a hardware detection would take.
func (m *Manager) handleStart(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p startParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}

	asess, env, err := m.Start(ctx, p.TargetScopeID)
	if err != nil {
		return nil, 0, classify(err)
	}

	if p.TagID != "" {
		if _, derr := m.HandleDetection(ctx, p.TagID); derr != nil {
			return nil, 0, classify(derr)
		}
	}

	return asess.payload(), env.ServerSeq, nil
}

func (m *Manager) handleCancel(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p sessionParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}

	env, err := m.Cancel(ctx, p.SessionID)
	if err != nil {
		return nil, 0, classify(err)
	}
	return nil, env.ServerSeq, nil
}

func (m *Manager) handleOverride(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p sessionParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}

	payload, env, err := m.Override(ctx, p.SessionID)
	if err != nil {
		return nil, 0, classify(err)
	}
	return payload, env.ServerSeq, nil
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

// classify maps manager errors onto the acknowledgment taxonomy.
func classify(err error) error {
	var pe *realtime.ProtoError
	switch {
	case errors.As(err, &pe):
		return err
	case errors.Is(err, ErrActiveSession):
		return realtime.WrapProtoError(realtime.ErrTypeConflict, err)
	case errors.Is(err, ErrNotOverridable):
		return realtime.WrapProtoError(realtime.ErrTypeConflict, err)
	case errors.Is(err, ErrNoSession):
		return realtime.WrapProtoError(realtime.ErrTypeNotFound, err)
	case errors.Is(err, catalog.ErrNotFound):
		return realtime.WrapProtoError(realtime.ErrTypeNotFound, err)
	default:
		return realtime.WrapProtoError(realtime.ErrTypeInternal, err)
	}
}
