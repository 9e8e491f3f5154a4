// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package player

import (
	"context"

	"github.com/boxwire/boxwire/internal/logging"
	"github.com/boxwire/boxwire/internal/models"
)

// LogEngine is an Engine that only logs the commands it receives. It
// stands in on appliances without a wired audio backend and in
// development, where the control plane runs without producing sound.
type LogEngine struct{}

// NewLogEngine returns the logging stand-in engine.
func NewLogEngine() *LogEngine { return &LogEngine{} }

func (e *LogEngine) Play(_ context.Context, track models.Track) error {
	logging.Info().Str("engine", "log").Str("title", track.Title).Str("path", track.Path).Msg("play")
	return nil
}

func (e *LogEngine) Pause(_ context.Context) error {
	logging.Info().Str("engine", "log").Msg("pause")
	return nil
}

func (e *LogEngine) Resume(_ context.Context) error {
	logging.Info().Str("engine", "log").Msg("resume")
	return nil
}

func (e *LogEngine) Seek(_ context.Context, positionMs int64) error {
	logging.Info().Str("engine", "log").Int64("position_ms", positionMs).Msg("seek")
	return nil
}

func (e *LogEngine) Stop(_ context.Context) error {
	logging.Info().Str("engine", "log").Msg("stop")
	return nil
}
