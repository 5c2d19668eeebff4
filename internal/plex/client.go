// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package plex implements the Plex Media Server REST client and the catalog
// fetcher that normalizes library sections into catalog items.
package plex

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/plexcord/plexcord/internal/logging"
)

// Client handles communication with the Plex Media Server API.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
}

// NewClient creates a Plex API client authenticating with an X-Plex-Token.
//
// baseURL is the server URL (e.g. "http://localhost:32400"); token is found
// under Settings → Network → Show Advanced.
func NewClient(baseURL, token string) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// IdentityResponse represents the response from /identity.
type IdentityResponse struct {
	MediaContainer IdentityContainer `json:"MediaContainer"`
}

// IdentityContainer wraps server identity information.
type IdentityContainer struct {
	MachineIdentifier string `json:"machineIdentifier"`
	FriendlyName      string `json:"friendlyName"`
	Version           string `json:"version"`
}

// Identity fetches server identity information.
//
// Endpoint: GET /identity
func (c *Client) Identity(ctx context.Context) (*IdentityResponse, error) {
	var identityResp IdentityResponse
	if err := c.doJSONRequest(ctx, "/identity", &identityResp); err != nil {
		return nil, err
	}
	return &identityResp, nil
}

// Ping verifies connectivity to the Plex server.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Identity(ctx)
	return err
}

// doRequestWithRateLimit executes an HTTP request with automatic retry on
// rate limiting (HTTP 429).
//
// Retries up to 5 times with exponential backoff (1s, 2s, 4s, 8s, 16s),
// honoring the Retry-After header (RFC 6585) when present. Only HTTP 429
// responses are retried.
func (c *Client) doRequestWithRateLimit(req *http.Request) (*http.Response, error) {
	const maxRetries = 5
	baseDelay := 1 * time.Second

	for attempt := 0; attempt <= maxRetries; attempt++ {
		resp, err := c.httpClient.Do(req)
		if err != nil {
			return nil, fmt.Errorf("execute request: %w", err)
		}

		if resp.StatusCode != http.StatusTooManyRequests {
			return resp, nil
		}

		resp.Body.Close()

		if attempt == maxRetries {
			return nil, fmt.Errorf("rate limit exceeded after %d retries", maxRetries)
		}

		retryDelay := baseDelay * (1 << attempt)
		if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
			if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
				retryDelay = seconds
			}
		}

		logging.Warn().Dur("retry_delay", retryDelay).Int("attempt", attempt+1).Int("max_retries", maxRetries).Msg("Plex API rate limited (HTTP 429), retrying")

		select {
		case <-req.Context().Done():
			return nil, req.Context().Err()
		case <-time.After(retryDelay):
		}
	}

	return nil, fmt.Errorf("unreachable code: retry loop should return or error")
}
