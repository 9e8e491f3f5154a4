// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package hardware

import (
	"context"
	"errors"
	"fmt"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/goccy/go-json"

	"github.com/boxwire/boxwire/internal/association"
	"github.com/boxwire/boxwire/internal/catalog"
	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/player"
)

// Bridge routes bus events into the control plane. Tag detections go to
// the association manager first; a detection with no negotiation waiting
// is raw playback input and starts the linked playlist. Engine events
// drive the player controller.
type Bridge struct {
	bus          *Bus
	associations *association.Manager
	controller   *player.Controller
	store        catalog.Store
}

// NewBridge wires the bus consumers.
func NewBridge(bus *Bus, associations *association.Manager, controller *player.Controller, store catalog.Store) *Bridge {
	return &Bridge{
		bus:          bus,
		associations: associations,
		controller:   controller,
		store:        store,
	}
}

// Serve consumes both topics until ctx is canceled. Designed for suture
// supervision.
func (b *Bridge) Serve(ctx context.Context) error {
	tags, err := b.bus.Subscribe(ctx, TopicTagDetected)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicTagDetected, err)
	}
	engine, err := b.bus.Subscribe(ctx, TopicPlayerEvents)
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", TopicPlayerEvents, err)
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case msg, ok := <-tags:
			if !ok {
				return errors.New("hardware: tag stream closed")
			}
			b.handleTagMessage(ctx, msg)
			msg.Ack()

		case msg, ok := <-engine:
			if !ok {
				return errors.New("hardware: engine stream closed")
			}
			b.handleEngineMessage(ctx, msg)
			msg.Ack()
		}
	}
}

func (b *Bridge) handleTagMessage(ctx context.Context, msg *message.Message) {
	var ev tagEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("malformed tag event")
		return
	}

	switch {
	case ev.Fault != nil:
		b.associations.Fault(ev.Fault.Message)

	case ev.Detected != nil:
		b.handleDetection(ctx, *ev.Detected)

	default:
		logging.Warn().Str("message_id", msg.UUID).Msg("empty tag event")
	}
}

// handleDetection resolves one tag pass: association negotiation when
// one is waiting, otherwise playback of the linked playlist.
func (b *Bridge) handleDetection(ctx context.Context, ev TagDetected) {
	handled, err := b.associations.HandleDetection(ctx, ev.TagID)
	if err != nil {
		logging.Error().Err(err).Str("tag_id", ev.TagID).Msg("association detection failed")
		return
	}
	if handled {
		return
	}

	b.playLinkedPlaylist(ctx, ev.TagID)
}

// playLinkedPlaylist is the appliance's normal operating mode: a known
// tag starts its playlist from the top, an unknown tag is logged and
// ignored.
func (b *Bridge) playLinkedPlaylist(ctx context.Context, tagID string) {
	link, err := b.store.LookupTag(ctx, tagID)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			logging.Info().Str("tag_id", tagID).Msg("unlinked tag detected, ignoring")
			return
		}
		logging.Error().Err(err).Str("tag_id", tagID).Msg("tag lookup failed")
		return
	}

	if _, _, err := b.controller.Play(ctx, link.PlaylistID, -1); err != nil {
		logging.Error().Err(err).
			Str("tag_id", tagID).
			Str("playlist_id", link.PlaylistID.String()).
			Msg("tag-triggered playback failed")
		return
	}
	logging.Info().Str("tag_id", tagID).Str("playlist_id", link.PlaylistID.String()).Msg("tag-triggered playback")
}

func (b *Bridge) handleEngineMessage(ctx context.Context, msg *message.Message) {
	var ev EngineEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logging.Error().Err(err).Str("message_id", msg.UUID).Msg("malformed engine event")
		return
	}

	switch ev.Kind {
	case EngineKindTick:
		b.controller.Tick(ev.PositionMs)
	case EngineKindTrackEnded:
		b.controller.TrackEnded(ctx)
	case EngineKindFault:
		b.controller.Fault(ev.Message)
	default:
		logging.Warn().Str("kind", ev.Kind).Msg("unknown engine event kind")
	}
}

// String implements fmt.Stringer for supervisor logging.
func (b *Bridge) String() string { return "hardware-bridge" }
