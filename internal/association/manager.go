// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package association

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boxwire/boxwire/internal/catalog"
	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/metrics"
	"github.com/boxwire/boxwire/internal/models"
	"github.com/boxwire/boxwire/internal/realtime"
)

// defaultTimeout is how long a negotiation waits for a tag detection.
const defaultTimeout = 30 * time.Second

// Errors callers branch on. The op handlers wrap them with the matching
// taxonomy type before they reach a client.
var (
	// ErrActiveSession indicates a start request while a negotiation is
	// already waiting.
	ErrActiveSession = errors.New("association: negotiation already active")

	// ErrNoSession indicates a cancel or override with no live negotiation.
	ErrNoSession = errors.New("association: no active negotiation")

	// ErrNotOverridable indicates an override on a session not in the
	// duplicate state.
	ErrNotOverridable = errors.New("association: session is not in duplicate state")
)

// Manager owns the single live negotiation session and drives its state
// machine from three independent event sources: client commands, tag
// detections, and the expiry sweeper.
//
// At most one negotiation is live at a time. Detections are matched to
// the currently waiting session; a detection with no waiting session is
// not an association event and is left to the raw tag playback path.
type Manager struct {
	hub     *realtime.Hub
	store   catalog.Store
	timeout time.Duration

	mu     sync.Mutex
	active *Session

	// commitMu serializes the commit+transition step of the success path
	// so two concurrent triggers never interleave a catalog mutation with
	// the state decision. Cancellation and expiry do not take it; the
	// compare-and-swap on session state resolves those races, with the
	// commit rolled back when it loses.
	commitMu sync.Mutex

	wake chan struct{}
}

// NewManager creates a manager broadcasting through hub and committing
// links to store. A non-positive timeout selects the default.
func NewManager(hub *realtime.Hub, store catalog.Store, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Manager{
		hub:     hub,
		store:   store,
		timeout: timeout,
		wake:    make(chan struct{}, 1),
	}
}

// Start opens a negotiation for the playlist behind targetScopeID and
// broadcasts the waiting state. It fails fast with ErrActiveSession when
// another negotiation is live, and with catalog.ErrNotFound when the
// target does not exist.
func (m *Manager) Start(ctx context.Context, targetScopeID string) (*Session, *realtime.Envelope, error) {
	targetID, err := parseEntityScope(targetScopeID)
	if err != nil {
		return nil, nil, err
	}
	if _, err := m.store.GetPlaylist(ctx, targetID); err != nil {
		return nil, nil, fmt.Errorf("resolve association target: %w", err)
	}

	m.mu.Lock()
	if m.active != nil && !m.active.State().Terminal() {
		m.mu.Unlock()
		return nil, nil, ErrActiveSession
	}
	sess := newSession(targetID, targetScopeID, m.timeout)
	payload, ok := sess.begin()
	if !ok {
		m.mu.Unlock()
		return nil, nil, fmt.Errorf("association: session %s not idle", sess.ID)
	}
	m.active = sess
	m.mu.Unlock()

	m.signalSweeper()
	env := m.hub.Broadcast(realtime.RoomAssociations, realtime.EventAssociation, payload)
	logging.Info().
		Str("session_id", sess.ID).
		Str("target", targetScopeID).
		Time("expires_at", sess.ExpiresAt()).
		Msg("association waiting")
	return sess, env, nil
}

// Cancel ends the live negotiation on explicit client request. An empty
// sessionID cancels whichever session is live.
func (m *Manager) Cancel(ctx context.Context, sessionID string) (*realtime.Envelope, error) {
	sess := m.liveSession(sessionID)
	if sess == nil {
		return nil, ErrNoSession
	}

	payload, ok := sess.cancel()
	if !ok {
		// A detection, fault, or the sweeper won the race.
		return nil, fmt.Errorf("association: session already %s: %w", sess.State(), ErrNoSession)
	}
	metrics.AssociationOutcomes.WithLabelValues(StateCancelled.String()).Inc()
	env := m.hub.Broadcast(realtime.RoomAssociations, realtime.EventAssociation, payload)
	logging.Info().Str("session_id", sess.ID).Msg("association cancelled")
	return env, nil
}

// Override reopens a duplicate session and immediately commits the
// previously detected tag to the original target, replacing the
// conflicting link.
func (m *Manager) Override(ctx context.Context, sessionID string) (Payload, *realtime.Envelope, error) {
	sess := m.liveSession(sessionID)
	if sess == nil {
		return Payload{}, nil, ErrNoSession
	}

	waiting, ok := sess.reopen(m.timeout)
	if !ok {
		return Payload{}, nil, fmt.Errorf("association: session is %s: %w", sess.State(), ErrNotOverridable)
	}
	m.signalSweeper()
	m.hub.Broadcast(realtime.RoomAssociations, realtime.EventAssociation, waiting)

	tagID := sess.DetectedTag()
	if tagID == "" {
		return m.faultSession(sess, "override without a detected tag")
	}
	return m.commit(ctx, sess, tagID, true)
}

// HandleDetection routes a detected tag into the live negotiation. It
// reports false when no session is waiting, in which case the tag is raw
// playback input, not an association event.
func (m *Manager) HandleDetection(ctx context.Context, tagID string) (bool, error) {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()
	if sess == nil || sess.State() != StateWaiting {
		return false, nil
	}

	link, err := m.store.LookupTag(ctx, tagID)
	switch {
	case err != nil && !errors.Is(err, catalog.ErrNotFound):
		_, _, ferr := m.faultSession(sess, "tag lookup failed: "+err.Error())
		return true, ferr

	case err == nil && link.PlaylistID != sess.TargetID:
		conflictScope := "entity:" + link.PlaylistID.String()
		payload, ok := sess.markDuplicate(tagID, conflictScope)
		if !ok {
			return true, nil
		}
		metrics.AssociationOutcomes.WithLabelValues(StateDuplicate.String()).Inc()
		m.hub.Broadcast(realtime.RoomAssociations, realtime.EventAssociation, payload)
		logging.Info().
			Str("session_id", sess.ID).
			Str("tag_id", tagID).
			Str("conflict", conflictScope).
			Msg("association duplicate")
		return true, nil

	default:
		_, _, cerr := m.commit(ctx, sess, tagID, false)
		return true, cerr
	}
}

// Fault moves the live negotiation to error on a hardware or read fault.
func (m *Manager) Fault(message string) {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()
	if sess == nil || sess.State().Terminal() {
		return
	}
	_, _, _ = m.faultSession(sess, message)
}

// commit links the tag to the session's target and resolves the success
// transition. The link is committed first and rolled back if a cancel,
// fault, or expiry won the state race in the meantime; a losing commit
// never produces a broadcast.
func (m *Manager) commit(ctx context.Context, sess *Session, tagID string, force bool) (Payload, *realtime.Envelope, error) {
	m.commitMu.Lock()
	defer m.commitMu.Unlock()

	if sess.State() != StateWaiting {
		return Payload{}, nil, fmt.Errorf("association: session already %s: %w", sess.State(), ErrNoSession)
	}

	prev, err := m.store.LookupTag(ctx, tagID)
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		return m.faultSession(sess, "tag lookup failed: "+err.Error())
	}
	if !force && prev != nil && prev.PlaylistID != sess.TargetID {
		return m.faultSession(sess, "tag linked to another target")
	}

	if prev == nil || prev.PlaylistID != sess.TargetID {
		if _, err := m.store.LinkTag(ctx, tagID, sess.TargetID); err != nil {
			return m.faultSession(sess, "link commit failed: "+err.Error())
		}
	}

	payload, ok := sess.succeed(tagID)
	if !ok {
		m.rollback(ctx, tagID, prev)
		return Payload{}, nil, fmt.Errorf("association: session already %s: %w", sess.State(), ErrNoSession)
	}

	metrics.AssociationOutcomes.WithLabelValues(StateSuccess.String()).Inc()
	env := m.hub.Broadcast(realtime.RoomAssociations, realtime.EventAssociation, payload)
	logging.Info().
		Str("session_id", sess.ID).
		Str("tag_id", tagID).
		Str("target", sess.TargetScopeID).
		Msg("association committed")
	return payload, env, nil
}

// rollback restores the tag's pre-commit link state.
func (m *Manager) rollback(ctx context.Context, tagID string, prev *models.TagLink) {
	var err error
	if prev == nil {
		err = m.store.UnlinkTag(ctx, tagID)
	} else {
		_, err = m.store.LinkTag(ctx, tagID, prev.PlaylistID)
	}
	if err != nil {
		logging.Error().Err(err).Str("tag_id", tagID).Msg("association rollback failed")
		return
	}
	logging.Warn().Str("tag_id", tagID).Msg("association commit rolled back, lost the state race")
}

func (m *Manager) faultSession(sess *Session, message string) (Payload, *realtime.Envelope, error) {
	payload, ok := sess.fail(message)
	if !ok {
		return Payload{}, nil, fmt.Errorf("association: session already %s: %w", sess.State(), ErrNoSession)
	}
	metrics.AssociationOutcomes.WithLabelValues(StateError.String()).Inc()
	env := m.hub.Broadcast(realtime.RoomAssociations, realtime.EventAssociation, payload)
	logging.Error().Str("session_id", sess.ID).Str("message", message).Msg("association failed")
	return payload, env, realtime.NewProtoError(realtime.ErrTypeInternal, message)
}

// liveSession returns the active session when it is live and matches
// sessionID (empty matches any).
func (m *Manager) liveSession(sessionID string) *Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == nil || m.active.State().Terminal() {
		return nil
	}
	if sessionID != "" && m.active.ID != sessionID {
		return nil
	}
	return m.active
}

// Snapshot returns the live negotiation's payload for the "associations"
// resync scope, or nil when none is live.
func (m *Manager) Snapshot() *Payload {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()
	if sess == nil {
		return nil
	}
	p := sess.payload()
	return &p
}

// parseEntityScope extracts the playlist id from an "entity:<id>" scope.
func parseEntityScope(scopeID string) (uuid.UUID, error) {
	raw, ok := strings.CutPrefix(scopeID, "entity:")
	if !ok {
		return uuid.Nil, realtime.NewProtoError(realtime.ErrTypeValidation, "target scope must be entity:<id>")
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return uuid.Nil, realtime.NewProtoError(realtime.ErrTypeValidation, "target scope id is not a valid uuid")
	}
	return id, nil
}
