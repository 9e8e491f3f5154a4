// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

// Package config holds the appliance configuration, loaded in three
// layers with koanf: built-in defaults, an optional YAML config file,
// and environment variables (highest priority).
package config

import (
	"fmt"
	"net"
	"strings"
	"time"
)

// Config holds all Boxwire configuration.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Catalog     CatalogConfig     `koanf:"catalog"`
	Association AssociationConfig `koanf:"association"`
	Transfer    TransferConfig    `koanf:"transfer"`
	Hardware    HardwareConfig    `koanf:"hardware"`
	Logging     LoggingConfig     `koanf:"logging"`
}

// ServerConfig configures the HTTP listener and the websocket endpoint.
type ServerConfig struct {
	// Host and Port form the listen address.
	Host string `koanf:"host"`
	Port int    `koanf:"port"`

	// AllowedOrigins whitelists websocket upgrade origins. Empty means
	// same-origin only; "*" allows any origin (LAN appliance mode).
	AllowedOrigins []string `koanf:"allowed_origins"`

	// UpgradeRatePerMinute caps websocket upgrade attempts per client IP.
	UpgradeRatePerMinute int `koanf:"upgrade_rate_per_minute"`

	// ReadTimeout and WriteTimeout bound plain HTTP requests. They do
	// not apply to upgraded websocket connections.
	ReadTimeout  time.Duration `koanf:"read_timeout"`
	WriteTimeout time.Duration `koanf:"write_timeout"`

	// ShutdownTimeout bounds graceful drain on exit.
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`

	// IdleTimeout disconnects websocket sessions with no traffic or
	// pongs for this long. Zero disables the sweep.
	IdleTimeout time.Duration `koanf:"idle_timeout"`
}

// Addr returns the host:port listen address.
func (s ServerConfig) Addr() string {
	return net.JoinHostPort(s.Host, fmt.Sprintf("%d", s.Port))
}

// CatalogConfig configures persistent playlist storage.
type CatalogConfig struct {
	// Path is the Badger database directory. Empty selects the
	// in-memory store (tests and ephemeral appliances).
	Path string `koanf:"path"`
}

// AssociationConfig configures tag association negotiations.
type AssociationConfig struct {
	// Timeout is how long a negotiation waits for a tag detection
	// before expiring.
	Timeout time.Duration `koanf:"timeout"`
}

// TransferConfig configures media transfer session tracking.
type TransferConfig struct {
	// Timeout is how long a transfer may go without progress before it
	// is expired.
	Timeout time.Duration `koanf:"timeout"`
}

// HardwareConfig configures the appliance peripherals.
type HardwareConfig struct {
	// ReaderDevice is the character device of the tag reader (readers
	// emit one tag id per line). Empty disables the reader pump; tag
	// detections can still arrive over the protocol.
	ReaderDevice string `koanf:"reader_device"`
}

// LoggingConfig configures the global zerolog logger.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for values that would misbehave at
// runtime. It is called by Load after all layers are applied.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.UpgradeRatePerMinute < 0 {
		return fmt.Errorf("server.upgrade_rate_per_minute must not be negative, got %d", c.Server.UpgradeRatePerMinute)
	}
	for _, origin := range c.Server.AllowedOrigins {
		if origin == "*" {
			continue
		}
		if !strings.HasPrefix(origin, "http://") && !strings.HasPrefix(origin, "https://") {
			return fmt.Errorf("server.allowed_origins entry %q must be a full origin (http:// or https://)", origin)
		}
	}
	if c.Association.Timeout <= 0 {
		return fmt.Errorf("association.timeout must be positive, got %s", c.Association.Timeout)
	}
	if c.Transfer.Timeout <= 0 {
		return fmt.Errorf("transfer.timeout must be positive, got %s", c.Transfer.Timeout)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "trace", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not a known level", c.Logging.Level)
	}
	switch c.Logging.Format {
	case "json", "console":
	default:
		return fmt.Errorf("logging.format must be json or console, got %q", c.Logging.Format)
	}
	return nil
}
