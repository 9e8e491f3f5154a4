// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package realtime

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/metrics"
)

// defaultOpWindow is how long executed-operation results are retained for
// replay. A retry arriving after the window is treated as unknown and
// re-executed; this is a documented, accepted weak point of the protocol.
const defaultOpWindow = 5 * time.Minute

// OpHandler executes one operation against authoritative state. It runs
// the mutation, broadcasts the resulting envelope, and returns the ack
// payload plus the sequence number the mutation was stamped with.
//
// Handlers return a *ProtoError for failures with a defined taxonomy
// type; any other error surfaces to the client as internal_error.
type OpHandler func(ctx context.Context, sess *Session, params json.RawMessage) (data any, serverSeq uint64, err error)

// opAck is the wire shape of ack:op / err:op.
type opAck struct {
	Type       string `json:"type"`
	ClientOpID string `json:"client_op_id"`
	Success    bool   `json:"success"`
	ServerSeq  uint64 `json:"server_seq,omitempty"`
	Data       any    `json:"data,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
	ErrorType  string `json:"error_type,omitempty"`
}

type opStatus int

const (
	opPending opStatus = iota
	opDone
)

type opRecord struct {
	status   opStatus
	frame    []byte // stored ack, replayed verbatim on retry
	issuedAt time.Time
}

// Tracker gives client operations at-most-once semantics. Every inbound
// operation carries a client-generated client_op_id; retries of the same
// intended action reuse the id, and the tracker replays the stored
// acknowledgment instead of re-executing.
//
// Idempotency is scoped to the connection: records are keyed by
// (session, client_op_id). A reconnecting client must resync before
// issuing further operations, at which point authoritative state
// supersedes any ack it missed.
type Tracker struct {
	mu       sync.Mutex
	records  map[string]*opRecord
	handlers map[string]OpHandler
	window   time.Duration
}

// NewTracker creates a tracker with the default retention window.
func NewTracker() *Tracker {
	return &Tracker{
		records:  make(map[string]*opRecord),
		handlers: make(map[string]OpHandler),
		window:   defaultOpWindow,
	}
}

// SetWindow overrides the dedup retention window.
func (t *Tracker) SetWindow(d time.Duration) { t.window = d }

// Register binds an action name to its handler. Registration happens at
// startup, before any session connects; a duplicate action panics.
func (t *Tracker) Register(action string, h OpHandler) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.handlers[action]; ok {
		panic(fmt.Sprintf("realtime: duplicate op handler for action %q", action))
	}
	t.handlers[action] = h
}

// Execute runs one client operation with at-most-once semantics and
// pushes the acknowledgment to the session. Failures never propagate:
// they always become a structured err:op frame.
func (t *Tracker) Execute(ctx context.Context, sess *Session, clientOpID, action string, params json.RawMessage) {
	key := sess.id + "/" + clientOpID

	t.mu.Lock()
	if rec, ok := t.records[key]; ok {
		frame := rec.frame
		pending := rec.status == opPending
		t.mu.Unlock()

		if pending {
			// The first execution is still in flight and will answer.
			logging.Debug().Str("client_op_id", clientOpID).Msg("duplicate op while pending, ignored")
			return
		}
		metrics.OpDedupHits.Inc()
		logging.Debug().Str("client_op_id", clientOpID).Str("action", action).Msg("replaying stored ack")
		t.deliver(sess, frame)
		return
	}

	handler, known := t.handlers[action]
	if !known {
		t.mu.Unlock()
		// Unknown actions are not recorded: there is no side effect to
		// protect, and a later retry should see the same validation error.
		t.deliver(sess, t.failureFrame(clientOpID, NewProtoError(ErrTypeValidation, "unknown action: "+action)))
		metrics.OpsExecuted.WithLabelValues(action, "failure").Inc()
		return
	}
	t.records[key] = &opRecord{status: opPending, issuedAt: time.Now()}
	t.mu.Unlock()

	frame := t.run(ctx, sess, handler, clientOpID, action, params)

	t.mu.Lock()
	t.records[key].status = opDone
	t.records[key].frame = frame
	t.mu.Unlock()

	t.deliver(sess, frame)
}

// run executes the handler and encodes the resulting ack frame.
// A handler panic is contained here so one broken operation cannot crash
// the broadcaster for other clients.
func (t *Tracker) run(ctx context.Context, sess *Session, handler OpHandler, clientOpID, action string, params json.RawMessage) (frame []byte) {
	defer func() {
		if r := recover(); r != nil {
			logging.Error().Str("action", action).Any("panic", r).Msg("op handler panicked")
			frame = t.failureFrame(clientOpID, NewProtoError(ErrTypeInternal, "internal error"))
			metrics.OpsExecuted.WithLabelValues(action, "failure").Inc()
		}
	}()

	data, serverSeq, err := handler(ctx, sess, params)
	if err != nil {
		logging.Warn().Err(err).Str("action", action).Str("error_type", ErrorType(err)).Msg("op failed")
		metrics.OpsExecuted.WithLabelValues(action, "failure").Inc()
		return t.failureFrame(clientOpID, err)
	}

	metrics.OpsExecuted.WithLabelValues(action, "success").Inc()
	ack := opAck{
		Type:       "ack:op",
		ClientOpID: clientOpID,
		Success:    true,
		ServerSeq:  serverSeq,
		Data:       data,
	}
	return mustMarshal(ack)
}

func (t *Tracker) failureFrame(clientOpID string, err error) []byte {
	return mustMarshal(opAck{
		Type:       "err:op",
		ClientOpID: clientOpID,
		Success:    false,
		Error:      err.Error(),
		ErrorType:  ErrorType(err),
	})
}

func (t *Tracker) deliver(sess *Session, frame []byte) {
	if !sess.push(frame) {
		logging.Warn().Str("session_id", sess.id).Msg("ack dropped, session queue full")
		sess.hub.Detach(sess)
	}
}

// RunWithContext garbage-collects expired operation records until the
// context is canceled. Designed for suture supervision.
func (t *Tracker) RunWithContext(ctx context.Context) error {
	interval := t.window / 2
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.sweep(time.Now())
		}
	}
}

// sweep drops records older than the retention window.
func (t *Tracker) sweep(now time.Time) {
	cutoff := now.Add(-t.window)

	t.mu.Lock()
	defer t.mu.Unlock()
	for key, rec := range t.records {
		if rec.status == opDone && rec.issuedAt.Before(cutoff) {
			delete(t.records, key)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (t *Tracker) String() string { return "op-tracker" }

// Serve implements suture.Service.
func (t *Tracker) Serve(ctx context.Context) error { return t.RunWithContext(ctx) }

func mustMarshal(v any) []byte {
	data, err := json.Marshal(v)
	if err != nil {
		// Ack payloads are built from plain structs; this cannot fail for
		// well-formed handler data.
		logging.Error().Err(err).Msg("failed to marshal ack")
		return []byte(`{"type":"err:op","success":false,"error":"internal error","error_type":"internal_error"}`)
	}
	return data
}
