// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	// An empty config file exercises the pure-defaults path without
	// depending on files that may exist in the working directory.
	empty := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(empty, []byte(""), 0o600); err != nil {
		t.Fatalf("write empty config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, empty)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8580 {
		t.Errorf("default port = %d, want 8580", cfg.Server.Port)
	}
	if cfg.Association.Timeout != 30*time.Second {
		t.Errorf("default association timeout = %s", cfg.Association.Timeout)
	}
	if cfg.Transfer.Timeout != 2*time.Minute {
		t.Errorf("default transfer timeout = %s", cfg.Transfer.Timeout)
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging = %s/%s", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoadConfigFileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := []byte(`
server:
  port: 9000
association:
  timeout: 45s
logging:
  level: debug
  format: console
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Association.Timeout != 45*time.Second {
		t.Errorf("association timeout = %s, want 45s", cfg.Association.Timeout)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("logging level = %s, want debug", cfg.Logging.Level)
	}
	// Untouched keys keep their defaults.
	if cfg.Transfer.Timeout != 2*time.Minute {
		t.Errorf("transfer timeout = %s, want default 2m", cfg.Transfer.Timeout)
	}
}

func TestLoadEnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 9000\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("BOXWIRE_SERVER_PORT", "9100")
	t.Setenv("BOXWIRE_SERVER_ALLOWED_ORIGINS", "http://box.local, https://panel.local")
	t.Setenv("BOXWIRE_TRANSFER_TIMEOUT", "5m")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("port = %d, want 9100 (env wins)", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 2 || cfg.Server.AllowedOrigins[1] != "https://panel.local" {
		t.Errorf("allowed origins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Transfer.Timeout != 5*time.Minute {
		t.Errorf("transfer timeout = %s, want 5m", cfg.Transfer.Timeout)
	}
}

func TestEnvTransform(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"BOXWIRE_SERVER_PORT", "server.port"},
		{"BOXWIRE_SERVER_ALLOWED_ORIGINS", "server.allowed_origins"},
		{"BOXWIRE_ASSOCIATION_TIMEOUT", "association.timeout"},
		{"BOXWIRE_LOGGING_LEVEL", "logging.level"},
	}
	for _, tt := range tests {
		if got := envTransform(tt.in); got != tt.want {
			t.Errorf("envTransform(%s) = %s, want %s", tt.in, got, tt.want)
		}
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"bare host origin", func(c *Config) { c.Server.AllowedOrigins = []string{"box.local"} }},
		{"negative upgrade rate", func(c *Config) { c.Server.UpgradeRatePerMinute = -1 }},
		{"zero association timeout", func(c *Config) { c.Association.Timeout = 0 }},
		{"zero transfer timeout", func(c *Config) { c.Transfer.Timeout = 0 }},
		{"unknown log level", func(c *Config) { c.Logging.Level = "loud" }},
		{"unknown log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate accepted bad config")
			}
		})
	}
}

func TestValidateAcceptsDefaultsAndWildcardOrigin(t *testing.T) {
	cfg := defaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults invalid: %v", err)
	}
	cfg.Server.AllowedOrigins = []string{"*"}
	if err := cfg.Validate(); err != nil {
		t.Errorf("wildcard origin rejected: %v", err)
	}
}

func TestAddr(t *testing.T) {
	s := ServerConfig{Host: "127.0.0.1", Port: 8580}
	if got := s.Addr(); got != "127.0.0.1:8580" {
		t.Errorf("Addr() = %s", got)
	}
}
