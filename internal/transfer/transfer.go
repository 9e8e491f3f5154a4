// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package transfer tracks upload-session lifecycles: a client announces
// a file, reports progress, and finishes or aborts, while every
// subscriber of the transfers room watches the same ordered progress
// timeline. Sessions past their deadline are reaped by the expiry sweep.
//
// The bytes themselves travel out of band; this package carries only the
// session records and their broadcasts.
package transfer

import (
	"time"

	"github.com/goccy/go-json"
)

// State is the closed set of transfer session states.
type State int32

const (
	StateActive State = iota
	StateComplete
	StateCancelled
	StateExpired
	StateError
)

var stateNames = map[State]string{
	StateActive:    "active",
	StateComplete:  "complete",
	StateCancelled: "cancelled",
	StateExpired:   "expired",
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

// Terminal reports whether the session is finished.
func (s State) Terminal() bool { return s != StateActive }

// Session is one upload in flight. Mutated only by the Manager while
// holding its lock.
type Session struct {
	ID        string    `json:"id"`
	Filename  string    `json:"filename"`
	Size      int64     `json:"size"`
	Received  int64     `json:"received"`
	State     State     `json:"state"`
	Message   string    `json:"message,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// snapshot returns a copy safe to hand to broadcast marshaling.
func (s *Session) snapshot() Session { return *s }
