// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import (
	"context"
	"strings"
	"sync"

	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/metrics"
)

// ScopeAll requests a combined snapshot of every registered scope.
const ScopeAll = "all"

// SnapshotFunc produces the current state of one scope. It runs while the
// hub's broadcast serialization is held, so the returned state is exactly
// consistent with the sequence numbers reported alongside it.
type SnapshotFunc func(ctx context.Context) (any, error)

// EntitySnapshotFunc produces the state of a single aggregate for
// "entity:<id>" scopes.
type EntitySnapshotFunc func(ctx context.Context, scopeID string) (any, error)

// SyncRegistry implements the resync protocol: on (re)connect a session
// requests a scope and receives a full snapshot plus the sequence numbers
// at snapshot time; afterwards only incremental envelopes are needed.
type SyncRegistry struct {
	hub *Hub

	mu     sync.RWMutex
	scopes map[string]SnapshotFunc
	entity EntitySnapshotFunc
}

// NewSyncRegistry creates an empty registry over the hub.
func NewSyncRegistry(hub *Hub) *SyncRegistry {
	return &SyncRegistry{hub: hub, scopes: make(map[string]SnapshotFunc)}
}

// RegisterScope binds a named scope ("catalog", "player", ...) to its
// snapshot producer. Registration happens at startup.
func (sr *SyncRegistry) RegisterScope(scope string, fn SnapshotFunc) {
	sr.mu.Lock()
	sr.scopes[scope] = fn
	sr.mu.Unlock()
}

// RegisterEntityScope binds the "entity:<id>" scope family to its
// snapshot producer.
func (sr *SyncRegistry) RegisterEntityScope(fn EntitySnapshotFunc) {
	sr.mu.Lock()
	sr.entity = fn
	sr.mu.Unlock()
}

// Serve answers one sync:request. The reply is a single sync:complete
// frame (or sync:error when the scope is invalid or unavailable). After a
// successful resync the session's last-seen sequence advances to the
// snapshot's sequence, so a racing broadcast with an older sequence is
// ignored by the client as already reflected.
func (sr *SyncRegistry) Serve(ctx context.Context, sess *Session, scope string) {
	metrics.ResyncRequests.WithLabelValues(scope).Inc()

	data, serverSeq, scopeSeq, err := sr.snapshot(ctx, scope)
	if err != nil {
		logging.Warn().Err(err).Str("scope", scope).Str("session_id", sess.id).Msg("resync failed")
		sr.deliver(sess, map[string]any{
			"type":       "sync:error",
			"scope":      scope,
			"error":      err.Error(),
			"error_type": ErrorType(err),
		})
		return
	}

	sess.markDelivered(serverSeq)

	reply := map[string]any{
		"type":       "sync:complete",
		"scope":      scope,
		"server_seq": serverSeq,
		"data":       data,
	}
	if scopeSeq > 0 {
		reply["scope_seq"] = scopeSeq
	}
	sr.deliver(sess, reply)
	logging.Debug().Str("scope", scope).Uint64("server_seq", serverSeq).Str("session_id", sess.id).Msg("resync served")
}

// snapshot resolves the scope and captures its state under the hub's
// broadcast serialization.
func (sr *SyncRegistry) snapshot(ctx context.Context, scope string) (any, uint64, uint64, error) {
	sr.mu.RLock()
	defer sr.mu.RUnlock()

	if scope == ScopeAll {
		return sr.hub.Snapshot("", func() (any, error) {
			combined := make(map[string]any, len(sr.scopes))
			for name, fn := range sr.scopes {
				data, err := fn(ctx)
				if err != nil {
					return nil, err
				}
				combined[name] = data
			}
			return combined, nil
		})
	}

	if fn, ok := sr.scopes[scope]; ok {
		return sr.hub.Snapshot("", func() (any, error) { return fn(ctx) })
	}

	if strings.HasPrefix(scope, "entity:") && sr.entity != nil {
		return sr.hub.Snapshot(scope, func() (any, error) { return sr.entity(ctx, scope) })
	}

	return nil, 0, 0, NewProtoError(ErrTypeNotFound, "unknown sync scope: "+scope)
}

func (sr *SyncRegistry) deliver(sess *Session, msg any) {
	if !sess.push(mustMarshal(msg)) {
		logging.Warn().Str("session_id", sess.id).Msg("sync reply dropped, session queue full")
		sr.hub.Detach(sess)
	}
}
