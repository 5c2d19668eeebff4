// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package supervisor

import (
	"context"

	"github.com/plexcord/plexcord/internal/logging"
)

// Runner is any component with a blocking Run method. Satisfied by
// *syncer.Engine and *api.Server.
type Runner interface {
	Run(ctx context.Context) error
}

// RunnerService adapts a Runner to suture.Service.
type RunnerService struct {
	name   string
	runner Runner
}

// NewRunnerService wraps a Runner for supervision under the given name.
func NewRunnerService(name string, runner Runner) *RunnerService {
	return &RunnerService{name: name, runner: runner}
}

// Serve implements suture.Service. A context.Canceled return signals a clean
// shutdown to suture; anything else triggers a restart.
func (s *RunnerService) Serve(ctx context.Context) error {
	logging.Info().Str("service", s.name).Msg("Service starting")
	err := s.runner.Run(ctx)
	logging.Info().Str("service", s.name).Err(err).Msg("Service stopped")
	return err
}

func (s *RunnerService) String() string {
	return s.name
}

// GatewayConnector is the lifecycle surface of the Discord gateway client.
type GatewayConnector interface {
	Connect(ctx context.Context) error
	Close() error
}

// GatewayService runs the Discord gateway client under supervision. The
// client reconnects internally; this service only owns connect and shutdown.
type GatewayService struct {
	gateway GatewayConnector
}

// NewGatewayService wraps a gateway client for supervision.
func NewGatewayService(gateway GatewayConnector) *GatewayService {
	return &GatewayService{gateway: gateway}
}

// Serve implements suture.Service: connect, block until cancellation, then
// close. A failed initial connect returns the error so suture retries with
// backoff.
func (s *GatewayService) Serve(ctx context.Context) error {
	if err := s.gateway.Connect(ctx); err != nil {
		return err
	}

	<-ctx.Done()

	if err := s.gateway.Close(); err != nil {
		logging.Warn().Err(err).Msg("Gateway close error during shutdown")
	}
	return ctx.Err()
}

func (s *GatewayService) String() string {
	return "discord-gateway"
}
