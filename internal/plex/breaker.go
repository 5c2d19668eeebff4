// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package plex

import (
	"context"
	"errors"
	"fmt"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/plexcord/plexcord/internal/logging"
	"github.com/plexcord/plexcord/internal/metrics"
)

// BreakerClient wraps Client with a circuit breaker so a down or slow Plex
// server sheds load quickly instead of stalling every sync cycle on the full
// HTTP timeout.
//
// The breaker uses real time for its interval and timeout calculations; unit
// tests should exercise the wrapped client directly.
type BreakerClient struct {
	client *Client
	cb     *gobreaker.CircuitBreaker[interface{}]
	name   string
}

// NewBreakerClient creates a Plex client with circuit breaker protection.
// The circuit opens after a 60% failure rate over at least 10 requests,
// resets counts every minute while closed, and probes again 2 minutes after
// opening.
func NewBreakerClient(baseURL, token string) *BreakerClient {
	client := NewClient(baseURL, token)
	cbName := "plex-api"

	metrics.CircuitBreakerState.WithLabelValues(cbName).Set(0) // 0 = closed

	cb := gobreaker.NewCircuitBreaker[interface{}](gobreaker.Settings{
		Name:        cbName,
		MaxRequests: 3,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,

		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < 10 {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			shouldTrip := failureRatio >= 0.6
			if shouldTrip {
				logging.Warn().Uint32("failures", counts.TotalFailures).Float64("failure_rate", failureRatio*100).Msg("Opening Plex circuit")
			}
			return shouldTrip
		},

		OnStateChange: func(name string, from, to gobreaker.State) {
			logging.Info().Str("from", stateToString(from)).Str("to", stateToString(to)).Msg("Plex circuit state transition")
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateToFloat(to))
		},
	})

	return &BreakerClient{
		client: client,
		cb:     cb,
		name:   cbName,
	}
}

// execute wraps a Plex API call with circuit breaker protection.
func (bc *BreakerClient) execute(fn func() (interface{}, error)) (interface{}, error) {
	result, err := bc.cb.Execute(fn)
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "rejected").Inc()
			logging.Warn().Err(err).Msg("Plex request rejected by open circuit")
		} else {
			metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "failure").Inc()
		}
		return nil, err
	}

	metrics.CircuitBreakerRequests.WithLabelValues(bc.name, "success").Inc()
	return result, nil
}

// castResult safely type-casts the circuit breaker result.
func castResult[T any](result interface{}, err error) (*T, error) {
	if err != nil {
		return nil, err
	}
	typed, ok := result.(*T)
	if !ok {
		return nil, fmt.Errorf("circuit breaker: unexpected result type %T", result)
	}
	return typed, nil
}

// Ping verifies connectivity with circuit breaker protection.
func (bc *BreakerClient) Ping(ctx context.Context) error {
	_, err := bc.execute(func() (interface{}, error) {
		return nil, bc.client.Ping(ctx)
	})
	return err
}

// Identity fetches server identity with circuit breaker protection.
func (bc *BreakerClient) Identity(ctx context.Context) (*IdentityResponse, error) {
	return castResult[IdentityResponse](bc.execute(func() (interface{}, error) {
		return bc.client.Identity(ctx)
	}))
}

// FindSectionByName resolves a section name with circuit breaker protection.
func (bc *BreakerClient) FindSectionByName(ctx context.Context, name string) (*Section, error) {
	return castResult[Section](bc.execute(func() (interface{}, error) {
		return bc.client.FindSectionByName(ctx, name)
	}))
}

// GetSectionAll retrieves section content with circuit breaker protection.
func (bc *BreakerClient) GetSectionAll(ctx context.Context, sectionKey string) (*SectionContentResponse, error) {
	return castResult[SectionContentResponse](bc.execute(func() (interface{}, error) {
		return bc.client.GetSectionAll(ctx, sectionKey)
	}))
}

// stateToFloat converts circuit breaker state to a numeric value for metrics.
func stateToFloat(state gobreaker.State) float64 {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}

// stateToString converts circuit breaker state to a string for logging.
func stateToString(state gobreaker.State) string {
	switch state {
	case gobreaker.StateClosed:
		return "closed"
	case gobreaker.StateHalfOpen:
		return "half-open"
	case gobreaker.StateOpen:
		return "open"
	default:
		return "unknown"
	}
}
