// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package transfer

import (
	"context"
	"errors"

	"github.com/goccy/go-json"

	"github.com/boxwire/boxwire/internal/realtime"
	"github.com/boxwire/boxwire/internal/validation"
)

// Operation actions registered with the tracker.
const (
	ActionCreate   = "transfer.create"
	ActionProgress = "transfer.progress"
	ActionComplete = "transfer.complete"
	ActionFail     = "transfer.fail"
	ActionCancel   = "transfer.cancel"
)

type createParams struct {
	Filename string `json:"filename" validate:"required,max=255"`
	Size     int64  `json:"size" validate:"required,min=1"`
}

type progressParams struct {
	TransferID string `json:"transfer_id" validate:"required,uuid4"`
	Received   int64  `json:"received" validate:"min=0"`
}

type finishParams struct {
	TransferID string `json:"transfer_id" validate:"required,uuid4"`
	Message    string `json:"message,omitempty" validate:"max=512"`
}

// RegisterHandlers binds the transfer actions to the operation tracker.
func (m *Manager) RegisterHandlers(t *realtime.Tracker) {
	t.Register(ActionCreate, m.handleCreate)
	t.Register(ActionProgress, m.handleProgress)
	t.Register(ActionComplete, m.handleComplete)
	t.Register(ActionFail, m.handleFail)
	t.Register(ActionCancel, m.handleCancel)
}

// RegisterSync binds the "transfers" resync scope.
func (m *Manager) RegisterSync(sr *realtime.SyncRegistry) {
	sr.RegisterScope("transfers", func(ctx context.Context) (any, error) {
		return m.Snapshot(), nil
	})
}

func (m *Manager) handleCreate(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p createParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	snap, env := m.Create(p.Filename, p.Size)
	return snap, env.ServerSeq, nil
}

func (m *Manager) handleProgress(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p progressParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	snap, env, err := m.Progress(p.TransferID, p.Received)
	if err != nil {
		return nil, 0, classify(err)
	}
	return snap, env.ServerSeq, nil
}

func (m *Manager) handleComplete(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p finishParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	snap, env, err := m.Complete(p.TransferID)
	if err != nil {
		return nil, 0, classify(err)
	}
	return snap, env.ServerSeq, nil
}

func (m *Manager) handleFail(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p finishParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	snap, env, err := m.Fail(p.TransferID, p.Message)
	if err != nil {
		return nil, 0, classify(err)
	}
	return snap, env.ServerSeq, nil
}

func (m *Manager) handleCancel(ctx context.Context, sess *realtime.Session, params json.RawMessage) (any, uint64, error) {
	var p finishParams
	if err := unmarshalParams(params, &p); err != nil {
		return nil, 0, err
	}
	snap, env, err := m.Cancel(p.TransferID)
	if err != nil {
		return nil, 0, classify(err)
	}
	return snap, env.ServerSeq, nil
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
	switch {
	case errors.Is(err, ErrUnknownTransfer):
		return realtime.WrapProtoError(realtime.ErrTypeNotFound, err)
	case errors.Is(err, ErrFinished):
		return realtime.WrapProtoError(realtime.ErrTypeConflict, err)
	case errors.Is(err, ErrProgressBounds):
		return realtime.WrapProtoError(realtime.ErrTypeValidation, err)
	default:
		return realtime.WrapProtoError(realtime.ErrTypeInternal, err)
	}
}
