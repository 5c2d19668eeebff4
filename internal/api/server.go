// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package api serves the operational HTTP endpoints: health and Prometheus
// metrics. There is no functional API; Discord is the user-facing surface.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/plexcord/plexcord/internal/logging"
)

// HealthChecker reports whether a component is currently healthy.
type HealthChecker func(ctx context.Context) error

// Server hosts /healthz and /metrics.
type Server struct {
	httpServer *http.Server
	checks     map[string]HealthChecker
}

// healthResponse is the /healthz body.
type healthResponse struct {
	Status     string            `json:"status"`
	Components map[string]string `json:"components,omitempty"`
}

// NewServer creates the operational HTTP server. checks maps component
// names to health probes consulted on every /healthz request; a nil or
// empty map means the process being up is the only check.
func NewServer(addr string, checks map[string]HealthChecker) *Server {
	s := &Server{checks: checks}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(RequestID)
	r.Use(RequestLogger)
	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return s
}

// handleHealth runs all registered probes. Responds 200 when all pass and
// 503 with per-component detail otherwise.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := healthResponse{Status: "ok"}
	if len(s.checks) > 0 {
		resp.Components = make(map[string]string, len(s.checks))
	}

	healthy := true
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			resp.Components[name] = err.Error()
			healthy = false
			continue
		}
		resp.Components[name] = "ok"
	}

	w.Header().Set("Content-Type", "application/json")
	if !healthy {
		resp.Status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logging.Warn().Err(err).Msg("Failed to write health response")
	}
}

// Run serves HTTP until ctx is canceled, then shuts down gracefully with a
// 10-second drain window.
func (s *Server) Run(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logging.Info().Str("addr", s.httpServer.Addr).Msg("HTTP server listening")
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
			return
		}
		errChan <- nil
	}()

	select {
	case err := <-errChan:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			logging.Warn().Err(err).Msg("HTTP server shutdown error")
		}
		<-errChan
		return ctx.Err()
	}
}

// Handler exposes the router for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}
