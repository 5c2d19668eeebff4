// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package discord implements the minimal Discord surface Plexcord needs: a
// REST client for channel message operations and a gateway client for
// inbound channel events. No third-party Discord binding is involved; both
// clients speak the v10 API directly.
package discord

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"golang.org/x/time/rate"

	"github.com/plexcord/plexcord/internal/logging"
)

// apiBase is the Discord REST API root.
const apiBase = "https://discord.com/api/v10"

// Client is a Discord REST client authenticated as a bot user.
type Client struct {
	token      string
	baseURL    string
	httpClient *http.Client

	// limiter paces message operations under Discord's per-channel budget
	// (5 messages per 5 seconds).
	limiter *rate.Limiter
}

// NewClient creates a Discord REST client for the given bot token.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: apiBase,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Every(time.Second), 5),
	}
}

// NewClientWithBaseURL creates a client against a non-default API root.
// Used by tests to point at an httptest server.
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

// User is a Discord user or bot account.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Bot      bool   `json:"bot,omitempty"`
}

// Channel is a Discord channel.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Type int    `json:"type"`
}

// Message is a Discord channel message.
type Message struct {
	ID        string `json:"id"`
	ChannelID string `json:"channel_id"`
	Content   string `json:"content,omitempty"`
	Author    User   `json:"author,omitempty"`
}

// Embed is a Discord rich embed.
type Embed struct {
	Title       string       `json:"title,omitempty"`
	Description string       `json:"description,omitempty"`
	Color       int          `json:"color,omitempty"`
	Timestamp   string       `json:"timestamp,omitempty"`
	Footer      *EmbedFooter `json:"footer,omitempty"`
	Fields      []EmbedField `json:"fields,omitempty"`
}

// EmbedFooter is the footer of an embed.
type EmbedFooter struct {
	Text string `json:"text,omitempty"`
}

// EmbedField is one field of an embed.
type EmbedField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline,omitempty"`
}

// MessageParams is the body for message create and edit calls. Content and
// Embeds may be combined; at least one must be present.
type MessageParams struct {
	Content string  `json:"content,omitempty"`
	Embeds  []Embed `json:"embeds,omitempty"`
}

// APIError is a non-2xx response from the Discord API.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("discord API returned %d: %s", e.StatusCode, e.Body)
}

// IsPermission reports whether err is a Discord permission failure
// (HTTP 401/403).
func IsPermission(err error) bool {
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.StatusCode == http.StatusUnauthorized || apiErr.StatusCode == http.StatusForbidden
}

// CreateMessage posts a message to a channel and returns the created message.
func (c *Client) CreateMessage(ctx context.Context, channelID string, params MessageParams) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/channels/%s/messages", channelID)
	if err := c.doRequest(ctx, http.MethodPost, path, params, &msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return &msg, nil
}

// EditMessage replaces the content of an existing message.
func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, params MessageParams) (*Message, error) {
	var msg Message
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if err := c.doRequest(ctx, http.MethodPatch, path, params, &msg); err != nil {
		return nil, fmt.Errorf("edit message: %w", err)
	}
	return &msg, nil
}

// DeleteMessage deletes a message from a channel.
func (c *Client) DeleteMessage(ctx context.Context, channelID, messageID string) error {
	path := fmt.Sprintf("/channels/%s/messages/%s", channelID, messageID)
	if err := c.doRequest(ctx, http.MethodDelete, path, nil, nil); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// GetChannel fetches a channel. Used at startup to verify the bot can see
// the configured channel.
func (c *Client) GetChannel(ctx context.Context, channelID string) (*Channel, error) {
	var channel Channel
	if err := c.doRequest(ctx, http.MethodGet, "/channels/"+channelID, nil, &channel); err != nil {
		return nil, fmt.Errorf("get channel: %w", err)
	}
	return &channel, nil
}

// doRequest executes one Discord REST call: rate-limiter wait, JSON body,
// bot authorization, and a retry loop on HTTP 429 honoring Retry-After.
func (c *Client) doRequest(ctx context.Context, method, path string, body, result interface{}) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter: %w", err)
	}

	var payload []byte
	if body != nil {
		var err error
		payload, err = json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal body: %w", err)
		}
	}

	const maxRetries = 3
	for attempt := 0; attempt <= maxRetries; attempt++ {
		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		} else {
			reader = http.NoBody
		}

		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Authorization", "Bot "+c.token)
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("execute request: %w", err)
		}

		if resp.StatusCode == http.StatusTooManyRequests {
			retryDelay := time.Second
			if retryAfter := resp.Header.Get("Retry-After"); retryAfter != "" {
				if seconds, err := time.ParseDuration(retryAfter + "s"); err == nil {
					retryDelay = seconds
				}
			}
			resp.Body.Close()

			if attempt == maxRetries {
				return fmt.Errorf("rate limit exceeded after %d retries", maxRetries)
			}

			logging.Warn().Dur("retry_delay", retryDelay).Int("attempt", attempt+1).Msg("Discord API rate limited (HTTP 429), retrying")
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(retryDelay):
			}
			continue
		}

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			bodyBytes, readErr := io.ReadAll(io.LimitReader(resp.Body, 1024))
			resp.Body.Close()
			if readErr != nil {
				bodyBytes = []byte("(failed to read response)")
			}
			return &APIError{StatusCode: resp.StatusCode, Body: string(bodyBytes)}
		}

		if result != nil {
			err = json.NewDecoder(resp.Body).Decode(result)
			resp.Body.Close()
			if err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}

		resp.Body.Close()
		return nil
	}

	return fmt.Errorf("unreachable code: retry loop should return or error")
}
