// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package hardware connects the appliance's peripherals to the control
// plane. Tag readers and the playback engine publish events onto an
// in-process bus; the bridge service consumes them and drives the
// association manager and the player controller.
package hardware

import (
	"context"
	"fmt"
	"time"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/boxwire/boxwire/internal/logging"
)

// Bus topics.
const (
	TopicTagDetected  = "hardware.tag.detected"
	TopicPlayerEvents = "hardware.player.events"
)

// Engine event kinds carried on TopicPlayerEvents.
const (
	EngineKindTick       = "tick"
	EngineKindTrackEnded = "track-ended"
	EngineKindFault      = "fault"
)

// TagDetected is published every time a tag passes a reader.
type TagDetected struct {
	TagID      string    `json:"tag_id"`
	ReaderID   string    `json:"reader_id,omitempty"`
	DetectedAt time.Time `json:"detected_at"`
}

// ReaderFault is published when a reader fails; it is carried on the tag
// topic so consumers see detections and faults in order.
type ReaderFault struct {
	ReaderID string `json:"reader_id,omitempty"`
	Message  string `json:"message"`
}

// tagEvent is the wire shape on TopicTagDetected: exactly one of the two
// fields is set.
type tagEvent struct {
	Detected *TagDetected `json:"detected,omitempty"`
	Fault    *ReaderFault `json:"fault,omitempty"`
}

// EngineEvent is published by playback engine integrations.
type EngineEvent struct {
	Kind       string `json:"kind"`
	PositionMs int64  `json:"position_ms,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Bus is the in-process Pub/Sub for hardware events. The appliance runs
// as a single process, so the gochannel transport suffices; the
// message.Publisher/Subscriber seams keep a broker swap possible.
type Bus struct {
	pubsub *gochannel.GoChannel
}

// NewBus creates a bus with bounded per-subscriber buffering.
func NewBus() *Bus {
	return &Bus{
		pubsub: gochannel.NewGoChannel(
			gochannel.Config{OutputChannelBuffer: 64},
			newWatermillLogger(),
		),
	}
}

// PublishTagDetected emits a detection onto the tag topic.
func (b *Bus) PublishTagDetected(ev TagDetected) error {
	if ev.DetectedAt.IsZero() {
		ev.DetectedAt = time.Now()
	}
	return b.publish(TopicTagDetected, tagEvent{Detected: &ev})
}

// PublishReaderFault emits a reader fault onto the tag topic.
func (b *Bus) PublishReaderFault(ev ReaderFault) error {
	return b.publish(TopicTagDetected, tagEvent{Fault: &ev})
}

// PublishEngineEvent emits a playback engine event.
func (b *Bus) PublishEngineEvent(ev EngineEvent) error {
	return b.publish(TopicPlayerEvents, ev)
}

func (b *Bus) publish(topic string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s event: %w", topic, err)
	}
	msg := message.NewMessage(watermill.NewUUID(), data)
	if err := b.pubsub.Publish(topic, msg); err != nil {
		return fmt.Errorf("publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe returns the message stream for a topic. The stream closes
// when ctx is canceled or the bus shuts down.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.pubsub.Subscribe(ctx, topic)
}

// Close shuts the bus down, closing every subscriber stream.
func (b *Bus) Close() error {
	return b.pubsub.Close()
}

// watermillLogger forwards watermill's internal logging to zerolog.
type watermillLogger struct {
	fields watermill.LogFields
}

func newWatermillLogger() watermill.LoggerAdapter {
	return &watermillLogger{}
}

func (l *watermillLogger) event(ev *zerolog.Event, msg string, fields watermill.LogFields) {
	for k, v := range l.fields {
		ev = ev.Any(k, v)
	}
	for k, v := range fields {
		ev = ev.Any(k, v)
	}
	ev.Msg(msg)
}

func (l *watermillLogger) Error(msg string, err error, fields watermill.LogFields) {
	l.event(logging.Error().Err(err), msg, fields)
}

func (l *watermillLogger) Info(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), msg, fields) // bus chatter is debug-level in Boxwire
}

func (l *watermillLogger) Debug(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), msg, fields)
}

func (l *watermillLogger) Trace(msg string, fields watermill.LogFields) {
	l.event(logging.Debug(), msg, fields)
}

func (l *watermillLogger) With(fields watermill.LogFields) watermill.LoggerAdapter {
	merged := make(watermill.LogFields, len(l.fields)+len(fields))
	for k, v := range l.fields {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return &watermillLogger{fields: merged}
}
