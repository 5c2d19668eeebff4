// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package main is the entry point for the Plexcord bot.
//
// Plexcord mirrors a Plex library into a Discord channel: on a timer (and on
// the !sync, !update, and !refresh chat commands) it fetches the configured
// Movies and TV Shows sections, diffs them against the last observed state,
// and republishes the channel listing with newly added items highlighted.
//
// # Application Architecture
//
// Startup proceeds in the following order:
//
//  1. Configuration: environment variables and optional config.yaml (Koanf v2)
//  2. Plex client: circuit-breaker-wrapped HTTP client, connectivity probe
//  3. Discord REST client: channel visibility check
//  4. Discord gateway client: command listener
//  5. Supervisor tree: gateway, sync engine, and HTTP server as services
//
// # Configuration
//
// Required settings:
//   - DISCORD_TOKEN: bot token
//   - CHANNEL_ID: snowflake ID of the mirrored channel
//   - PLEX_URL: Plex Media Server URL (e.g. http://localhost:32400)
//   - PLEX_TOKEN: X-Plex-Token
//
// Optional settings (defaults in parentheses):
//   - UPDATE_INTERVAL: sync period as a Go duration (120m)
//   - MOVIES_SECTION / TV_SECTION: section names (Movies / TV Shows)
//   - HTTP_ADDR: health/metrics listen address (:3858)
//   - LOG_LEVEL / LOG_FORMAT: logging (info / json)
//
// # Signal Handling
//
// SIGINT and SIGTERM trigger a graceful shutdown: the sync loop finishes its
// current cycle, the gateway disconnects, and the HTTP server drains with a
// 10-second timeout.
package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/plexcord/plexcord/internal/api"
	"github.com/plexcord/plexcord/internal/config"
	"github.com/plexcord/plexcord/internal/discord"
	"github.com/plexcord/plexcord/internal/logging"
	"github.com/plexcord/plexcord/internal/plex"
	"github.com/plexcord/plexcord/internal/supervisor"
	"github.com/plexcord/plexcord/internal/syncer"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Default logger; config (and its logging settings) not available.
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	logging.Info().
		Str("plex_url", cfg.Plex.URL).
		Str("channel_id", cfg.Discord.ChannelID).
		Dur("interval", cfg.Sync.Interval).
		Msg("Starting Plexcord")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Plex client with circuit breaker. A failed probe is not fatal; the
	// breaker and sync retries cover a server that comes up later.
	plexClient := plex.NewBreakerClient(cfg.Plex.URL, cfg.Plex.Token)
	var plexServerName string
	if identity, err := plexClient.Identity(ctx); err != nil {
		logging.Warn().Err(err).Msg("Failed to reach Plex server (will retry)")
	} else {
		plexServerName = identity.MediaContainer.FriendlyName
		logging.Info().
			Str("server", identity.MediaContainer.FriendlyName).
			Str("version", identity.MediaContainer.Version).
			Msg("Connected to Plex")
	}
	library := plex.NewLibrary(plexClient, cfg.Plex.MoviesSection, cfg.Plex.TVSection)

	// Discord REST client. The channel check catches a bad token or a
	// missing channel permission before the first sync cycle.
	restClient := discord.NewClient(cfg.Discord.Token)
	if channel, err := restClient.GetChannel(ctx, cfg.Discord.ChannelID); err != nil {
		if discord.IsPermission(err) {
			logging.Fatal().Err(err).Msg("Bot cannot access the configured channel")
		}
		logging.Warn().Err(err).Msg("Failed to verify Discord channel (will retry)")
	} else {
		logging.Info().Str("channel", channel.Name).Msg("Discord channel verified")
	}

	engine := syncer.New(library, restClient, cfg.Discord.ChannelID, cfg.Sync.Interval)
	engine.SetServerName(plexServerName)

	gateway := discord.NewGatewayClient(cfg.Discord.Token)
	gateway.OnMessageCreate(engine.HandleMessage)

	httpServer := api.NewServer(cfg.Server.Addr, map[string]api.HealthChecker{
		"plex": plexClient.Ping,
		"discord_gateway": func(ctx context.Context) error {
			if !gateway.IsConnected() {
				return errors.New("gateway not connected")
			}
			return nil
		},
	})

	// Bridge zerolog to slog for sutureslog.
	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.Add(supervisor.NewGatewayService(gateway))
	tree.Add(supervisor.NewRunnerService("sync-engine", engine))
	tree.Add(supervisor.NewRunnerService("http-server", httpServer))

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree")
	errCh := tree.ServeBackground(ctx)

	select {
	case <-ctx.Done():
		logging.Info().Msg("Context canceled, waiting for supervisor to finish")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor shutdown error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	logging.Info().Msg("Plexcord stopped gracefully")
}
