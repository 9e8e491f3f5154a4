// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package association

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newWaitingSession(t *testing.T) *Session {
	t.Helper()
	s := newSession(uuid.New(), "entity:"+uuid.NewString(), time.Minute)
	if _, ok := s.begin(); !ok {
		t.Fatal("begin failed on fresh session")
	}
	return s
}

func TestStateTerminal(t *testing.T) {
	cases := []struct {
		state    State
		terminal bool
	}{
		{StateIdle, false},
		{StateWaiting, false},
		{StateDuplicate, false},
		{StateSuccess, true},
		{StateTimeout, true},
		{StateCancelled, true},
		{StateError, true},
	}
	for _, tc := range cases {
		t.Run(tc.state.String(), func(t *testing.T) {
			if got := tc.state.Terminal(); got != tc.terminal {
				t.Errorf("Terminal() = %v, want %v", got, tc.terminal)
			}
		})
	}
}

func TestOnlyFirstTransitionOutOfWaitingWins(t *testing.T) {
	s := newWaitingSession(t)

	if _, ok := s.cancel(); !ok {
		t.Fatal("cancel should win on waiting session")
	}
	if _, ok := s.succeed("tag-1"); ok {
		t.Error("succeed won after cancel")
	}
	if _, ok := s.expire(); ok {
		t.Error("expire won after cancel")
	}
	if _, ok := s.markDuplicate("tag-1", "entity:x"); ok {
		t.Error("markDuplicate won after cancel")
	}
	if s.State() != StateCancelled {
		t.Errorf("state = %s, want cancelled", s.State())
	}
}

func TestExpireFiresExactlyOnceUnderRace(t *testing.T) {
	s := newWaitingSession(t)

	const racers = 8
	var wg sync.WaitGroup
	wins := make(chan struct{}, racers)
	for i := 0; i < racers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, ok := s.expire(); ok {
				wins <- struct{}{}
			}
		}()
	}
	wg.Wait()
	close(wins)

	var count int
	for range wins {
		count++
	}
	if count != 1 {
		t.Errorf("expire won %d times, want exactly 1", count)
	}
}

func TestOverrideReopensAndExtendsDeadline(t *testing.T) {
	s := newWaitingSession(t)
	if _, ok := s.markDuplicate("tag-9", "entity:other"); !ok {
		t.Fatal("markDuplicate failed")
	}
	before := s.ExpiresAt()

	payload, ok := s.reopen(time.Hour)
	if !ok {
		t.Fatal("reopen failed on duplicate session")
	}
	if s.State() != StateWaiting {
		t.Errorf("state = %s, want waiting", s.State())
	}
	if !s.ExpiresAt().After(before) {
		t.Error("deadline not extended on override")
	}
	if payload.TagID != "tag-9" {
		t.Errorf("payload tag = %q, want pre-filled tag-9", payload.TagID)
	}
	if payload.ConflictScopeID != "" {
		t.Errorf("conflict scope not cleared: %q", payload.ConflictScopeID)
	}
}

func TestReopenOnlyFromDuplicate(t *testing.T) {
	s := newWaitingSession(t)
	if _, ok := s.reopen(time.Minute); ok {
		t.Error("reopen succeeded from waiting")
	}
	if _, ok := s.cancel(); !ok {
		t.Fatal("cancel failed")
	}
	if _, ok := s.reopen(time.Minute); ok {
		t.Error("reopen succeeded from cancelled")
	}
}

func TestDuplicatePayloadCarriesConflict(t *testing.T) {
	s := newWaitingSession(t)
	payload, ok := s.markDuplicate("tag-3", "entity:conflict")
	if !ok {
		t.Fatal("markDuplicate failed")
	}
	if payload.State != StateDuplicate {
		t.Errorf("payload state = %s", payload.State)
	}
	if payload.ConflictScopeID != "entity:conflict" {
		t.Errorf("conflict scope = %q", payload.ConflictScopeID)
	}
	if payload.ExpiresAt == 0 {
		t.Error("non-terminal payload missing expires_at")
	}
}

func TestTerminalPayloadOmitsDeadline(t *testing.T) {
	s := newWaitingSession(t)
	payload, ok := s.succeed("tag-5")
	if !ok {
		t.Fatal("succeed failed")
	}
	if payload.ExpiresAt != 0 {
		t.Error("terminal payload carries expires_at")
	}
	if payload.TagID != "tag-5" {
		t.Errorf("tag = %q", payload.TagID)
	}
}

func TestFailFromAnyNonTerminal(t *testing.T) {
	waiting := newWaitingSession(t)
	if _, ok := waiting.fail("reader fault"); !ok {
		t.Error("fail rejected from waiting")
	}

	dup := newWaitingSession(t)
	dup.markDuplicate("t", "entity:x")
	if _, ok := dup.fail("reader fault"); !ok {
		t.Error("fail rejected from duplicate")
	}

	done := newWaitingSession(t)
	done.cancel()
	if _, ok := done.fail("reader fault"); ok {
		t.Error("fail accepted from terminal state")
	}
}
