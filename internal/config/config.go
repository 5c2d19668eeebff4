// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package config loads Plexcord configuration from layered sources using
// Koanf v2: built-in defaults, then an optional YAML file, then environment
// variables (highest priority).
package config

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is the complete Plexcord configuration.
type Config struct {
	Discord DiscordConfig `koanf:"discord"`
	Plex    PlexConfig    `koanf:"plex"`
	Sync    SyncConfig    `koanf:"sync"`
	Server  ServerConfig  `koanf:"server"`
	Logging LoggingConfig `koanf:"logging"`
}

// DiscordConfig configures the Discord bot connection.
type DiscordConfig struct {
	Token     string `koanf:"token" validate:"required"`
	ChannelID string `koanf:"channel_id" validate:"required,numeric"`
}

// PlexConfig configures the Plex Media Server connection and the library
// sections to mirror.
type PlexConfig struct {
	URL           string `koanf:"url" validate:"required,http_url"`
	Token         string `koanf:"token" validate:"required"`
	MoviesSection string `koanf:"movies_section" validate:"required"`
	TVSection     string `koanf:"tv_section" validate:"required"`
}

// SyncConfig configures the periodic sync cycle.
type SyncConfig struct {
	Interval time.Duration `koanf:"interval" validate:"min=1m"`
}

// ServerConfig configures the HTTP endpoint serving health and metrics.
type ServerConfig struct {
	Addr string `koanf:"addr" validate:"required"`
}

// LoggingConfig configures log output.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error fatal"`
	Format string `koanf:"format" validate:"oneof=json console"`
}

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by the config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Discord: DiscordConfig{
			Token:     "",
			ChannelID: "",
		},
		Plex: PlexConfig{
			URL:           "",
			Token:         "",
			MoviesSection: "Movies",
			TVSection:     "TV Shows",
		},
		Sync: SyncConfig{
			Interval: 120 * time.Minute,
		},
		Server: ServerConfig{
			Addr: ":3858",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// envVarNames maps struct namespaces to the environment variables users set,
// so validation errors name the variable rather than the Go field.
var envVarNames = map[string]string{
	"Config.Discord.Token":      "DISCORD_TOKEN",
	"Config.Discord.ChannelID":  "CHANNEL_ID",
	"Config.Plex.URL":           "PLEX_URL",
	"Config.Plex.Token":         "PLEX_TOKEN",
	"Config.Plex.MoviesSection": "MOVIES_SECTION",
	"Config.Plex.TVSection":     "TV_SECTION",
	"Config.Sync.Interval":      "UPDATE_INTERVAL",
	"Config.Server.Addr":        "HTTP_ADDR",
	"Config.Logging.Level":      "LOG_LEVEL",
	"Config.Logging.Format":     "LOG_FORMAT",
}

// Validate checks that required configuration is present and well-formed.
func (c *Config) Validate() error {
	validate := validator.New()
	err := validate.Struct(c)
	if err == nil {
		return nil
	}

	validationErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}

	first := validationErrs[0]
	name := envVarNames[first.StructNamespace()]
	if name == "" {
		name = first.StructNamespace()
	}

	switch first.Tag() {
	case "required":
		return fmt.Errorf("%s is required", name)
	case "numeric":
		return fmt.Errorf("%s must be a numeric Discord snowflake ID", name)
	case "http_url":
		return fmt.Errorf("%s must be a valid http:// or https:// URL", name)
	case "min":
		return fmt.Errorf("%s must be at least %s", name, first.Param())
	case "oneof":
		return fmt.Errorf("%s must be one of: %s", name, first.Param())
	default:
		return fmt.Errorf("%s is invalid (%s)", name, first.Tag())
	}
}
