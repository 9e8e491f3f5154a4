// Boxwire - Tag-Driven Playback Appliance Control Plane
// Copyright 2026 Boxwire Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/boxwire/boxwire

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths searched for a config file, in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/boxwire/config.yaml",
	"/etc/boxwire/config.yml",
}

// ConfigPathEnvVar overrides the config file search entirely.
const ConfigPathEnvVar = "BOXWIRE_CONFIG"

// envPrefix namespaces Boxwire's environment variables. BOXWIRE_SERVER_PORT
// maps to server.port, BOXWIRE_ASSOCIATION_TIMEOUT to association.timeout.
const envPrefix = "BOXWIRE_"

// defaultConfig returns a Config with every default populated. Defaults
// are applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:                 "0.0.0.0",
			Port:                 8580,
			AllowedOrigins:       nil,
			UpgradeRatePerMinute: 30,
			ReadTimeout:          10 * time.Second,
			WriteTimeout:         10 * time.Second,
			ShutdownTimeout:      15 * time.Second,
			IdleTimeout:          5 * time.Minute,
		},
		Catalog: CatalogConfig{
			Path: "/data/boxwire/catalog",
		},
		Association: AssociationConfig{
			Timeout: 30 * time.Second,
		},
		Transfer: TransferConfig{
			Timeout: 2 * time.Minute,
		},
		Hardware: HardwareConfig{
			ReaderDevice: "",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load assembles the configuration: defaults, then the config file if
// one exists, then environment variables, then validation.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	// Env vars deliver slices as comma-separated strings.
	if raw, ok := k.Get("server.allowed_origins").(string); ok {
		origins := splitAndTrim(raw)
		if err := k.Set("server.allowed_origins", origins); err != nil {
			return nil, fmt.Errorf("failed to normalize allowed origins: %w", err)
		}
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// findConfigFile resolves the config file path: the env override if set,
// otherwise the first default path that exists. Empty means no file.
func findConfigFile() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envTransform maps BOXWIRE_SECTION_KEY_NAME to section.key_name. The
// first underscore separates the section; the rest stay joined.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, envPrefix))
	section, rest, found := strings.Cut(key, "_")
	if !found {
		return key
	}
	return section + "." + rest
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
