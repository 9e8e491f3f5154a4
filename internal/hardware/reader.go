// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package hardware

import (
	"context"
	"errors"
	"fmt"

	"github.com/boxwire/boxwire/internal/logging"
)

// TagReader is implemented by proximity reader integrations. Next blocks
// until a tag passes the reader, the reader faults, or ctx is canceled.
type TagReader interface {
	Next(ctx context.Context) (TagDetected, error)
}

// ReaderPump drains one TagReader onto the bus. Read faults are
// published as ReaderFault events rather than stopping the pump; only
// context cancellation ends it.
type ReaderPump struct {
	bus    *Bus
	reader TagReader
}

// NewReaderPump wires a reader to the bus.
func NewReaderPump(bus *Bus, reader TagReader) *ReaderPump {
	return &ReaderPump{bus: bus, reader: reader}
}

// Serve runs the pump until ctx is canceled. Designed for suture
// supervision.
func (p *ReaderPump) Serve(ctx context.Context) error {
	for {
		ev, err := p.reader.Next(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return ctx.Err()
			}
			logging.Warn().Err(err).Msg("tag reader fault")
			if perr := p.bus.PublishReaderFault(ReaderFault{Message: err.Error()}); perr != nil {
				return fmt.Errorf("publish reader fault: %w", perr)
			}
			continue
		}
		if err := p.bus.PublishTagDetected(ev); err != nil {
			return fmt.Errorf("publish tag detection: %w", err)
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (p *ReaderPump) String() string { return "tag-reader-pump" }
