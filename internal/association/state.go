// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package association implements the timed negotiation that links an
// externally detected proximity tag to a playlist. A negotiation session
// waits for a tag detection, racing against client cancellation, the
// expiry sweeper, and hardware faults; the first transition out of
// waiting wins, decided by compare-and-swap on the session state.
package association

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// State is the closed set of negotiation states.
type State int32

const (
	StateIdle State = iota
	StateWaiting
	StateSuccess
	StateDuplicate
	StateTimeout
	StateCancelled
	StateError
)

var stateNames = map[State]string{
	StateIdle:      "idle",
	StateWaiting:   "waiting",
	StateSuccess:   "success",
	StateDuplicate: "duplicate",
	StateTimeout:   "timeout",
	StateCancelled: "cancelled",
	StateError:     "error",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return "unknown"
}

// MarshalJSON encodes the state by name for wire payloads.
func (s State) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// Terminal reports whether no further transition can leave s. Duplicate
// is not terminal: an override reopens the negotiation.
func (s State) Terminal() bool {
	switch s {
	case StateSuccess, StateTimeout, StateCancelled, StateError:
		return true
	}
	return false
}

// Payload is the data carried by every state:association broadcast and
// by the "associations" resync scope.
type Payload struct {
	SessionID       string `json:"session_id"`
	State           State  `json:"state"`
	TargetScopeID   string `json:"target_scope_id"`
	TagID           string `json:"tag_id,omitempty"`
	ConflictScopeID string `json:"conflict_scope_id,omitempty"`
	Message         string `json:"message,omitempty"`
	ExpiresAt       int64  `json:"expires_at,omitempty"` // epoch milliseconds
}

// Session is one tag negotiation. The state field is the single source
// of truth for liveness: every transition is a compare-and-swap, so
// concurrent triggers (detection, cancel, sweep, fault) resolve to
// exactly one winner and the losers observe the already-set state.
type Session struct {
	ID            string
	TargetID      uuid.UUID
	TargetScopeID string
	CreatedAt     time.Time

	state     atomic.Int32
	expiresAt atomic.Int64 // unix nanoseconds, extended on override

	// Guarded by mu; written only by the winner of the corresponding
	// state transition, read by payload construction and snapshots.
	mu              sync.Mutex
	detectedTagID   string
	conflictScopeID string
	message         string
}

func newSession(targetID uuid.UUID, targetScopeID string, timeout time.Duration) *Session {
	s := &Session{
		ID:            uuid.NewString(),
		TargetID:      targetID,
		TargetScopeID: targetScopeID,
		CreatedAt:     time.Now(),
	}
	s.state.Store(int32(StateIdle))
	s.expiresAt.Store(time.Now().Add(timeout).UnixNano())
	return s
}

// State returns the session's current state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// ExpiresAt returns the current deadline.
func (s *Session) ExpiresAt() time.Time {
	return time.Unix(0, s.expiresAt.Load())
}

// transition attempts the from→to edge. It reports false when another
// trigger already moved the session out of from.
func (s *Session) transition(from, to State) bool {
	return s.state.CompareAndSwap(int32(from), int32(to))
}

// begin moves idle→waiting and returns the waiting broadcast payload.
func (s *Session) begin() (Payload, bool) {
	if !s.transition(StateIdle, StateWaiting) {
		return Payload{}, false
	}
	return s.payload(), true
}

// succeed moves waiting→success after the link commit. The caller must
// roll the commit back when this loses the race.
func (s *Session) succeed(tagID string) (Payload, bool) {
	if !s.transition(StateWaiting, StateSuccess) {
		return Payload{}, false
	}
	s.mu.Lock()
	s.detectedTagID = tagID
	s.mu.Unlock()
	return s.payload(), true
}

// markDuplicate moves waiting→duplicate, recording the conflicting
// target so the client can decide to override. No commit happens.
func (s *Session) markDuplicate(tagID, conflictScopeID string) (Payload, bool) {
	if !s.transition(StateWaiting, StateDuplicate) {
		return Payload{}, false
	}
	s.mu.Lock()
	s.detectedTagID = tagID
	s.conflictScopeID = conflictScopeID
	s.mu.Unlock()
	return s.payload(), true
}

// reopen moves duplicate→waiting for an override, extending the
// deadline. The previously detected tag stays pre-filled.
func (s *Session) reopen(timeout time.Duration) (Payload, bool) {
	if !s.transition(StateDuplicate, StateWaiting) {
		return Payload{}, false
	}
	s.expiresAt.Store(time.Now().Add(timeout).UnixNano())
	s.mu.Lock()
	s.conflictScopeID = ""
	s.mu.Unlock()
	return s.payload(), true
}

// cancel moves waiting→cancelled or duplicate→cancelled.
func (s *Session) cancel() (Payload, bool) {
	if !s.transition(StateWaiting, StateCancelled) && !s.transition(StateDuplicate, StateCancelled) {
		return Payload{}, false
	}
	return s.payload(), true
}

// expire moves waiting→timeout or duplicate→timeout. Exactly one caller
// wins even when a detection and the sweeper race.
func (s *Session) expire() (Payload, bool) {
	if !s.transition(StateWaiting, StateTimeout) && !s.transition(StateDuplicate, StateTimeout) {
		return Payload{}, false
	}
	return s.payload(), true
}

// fail moves any non-terminal state to error with a message.
func (s *Session) fail(message string) (Payload, bool) {
	moved := s.transition(StateWaiting, StateError) ||
		s.transition(StateDuplicate, StateError) ||
		s.transition(StateIdle, StateError)
	if !moved {
		return Payload{}, false
	}
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
	return s.payload(), true
}

// DetectedTag returns the tag id pre-filled by a detection, if any.
func (s *Session) DetectedTag() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.detectedTagID
}

// payload snapshots the session for a broadcast.
func (s *Session) payload() Payload {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := Payload{
		SessionID:       s.ID,
		State:           s.State(),
		TargetScopeID:   s.TargetScopeID,
		TagID:           s.detectedTagID,
		ConflictScopeID: s.conflictScopeID,
		Message:         s.message,
	}
	if !p.State.Terminal() {
		p.ExpiresAt = s.ExpiresAt().UnixMilli()
	}
	return p
}
