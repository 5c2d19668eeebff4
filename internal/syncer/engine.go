// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package syncer runs the sync cycle: fetch the Plex catalog, diff it
// against the last observed state, and republish the channel listing when
// something changed. Timer ticks and manual chat commands feed one worker
// loop so cycles never overlap.
package syncer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/plexcord/plexcord/internal/catalog"
	"github.com/plexcord/plexcord/internal/discord"
	"github.com/plexcord/plexcord/internal/logging"
	"github.com/plexcord/plexcord/internal/metrics"
	"github.com/plexcord/plexcord/internal/render"
)

// Fetcher retrieves the full library catalog. Satisfied by *plex.Library.
type Fetcher interface {
	FetchCatalog(ctx context.Context) ([]catalog.Item, error)
}

// Publisher is the subset of the Discord REST API the engine needs.
// Satisfied by *discord.Client.
type Publisher interface {
	CreateMessage(ctx context.Context, channelID string, params discord.MessageParams) (*discord.Message, error)
	EditMessage(ctx context.Context, channelID, messageID string, params discord.MessageParams) (*discord.Message, error)
	DeleteMessage(ctx context.Context, channelID, messageID string) error
}

// Trigger identifies what started a sync cycle.
type Trigger string

const (
	TriggerTimer  Trigger = "timer"
	TriggerManual Trigger = "manual"
)

// syncCommands are the chat commands that force an immediate full republish.
// Matched case-insensitively against the trimmed message content.
var syncCommands = map[string]struct{}{
	"!sync":    {},
	"!update":  {},
	"!refresh": {},
}

// embedColor is the accent color of the summary embed (Plex amber).
const embedColor = 0xE5A00D

// Engine owns the observed library state and the published channel messages.
// All state is confined to the Run goroutine; external callers interact only
// through HandleMessage.
type Engine struct {
	fetcher   Fetcher
	publisher Publisher
	channelID string
	interval  time.Duration

	// Last observed catalog keys. nil until the first successful fetch, so
	// the first cycle never marks anything as new.
	known        catalog.KeySet
	observedOnce bool

	// IDs of the messages currently making up the channel listing.
	messageIDs []string

	// Friendly name of the Plex server, shown in the summary footer when
	// known. Set once before Run.
	serverName string

	triggerChan chan Trigger
}

// New creates a sync engine. Run must be called to start processing.
func New(fetcher Fetcher, publisher Publisher, channelID string, interval time.Duration) *Engine {
	return &Engine{
		fetcher:   fetcher,
		publisher: publisher,
		channelID: channelID,
		interval:  interval,
		// Capacity 1: a pending manual trigger coalesces further requests.
		triggerChan: make(chan Trigger, 1),
	}
}

// SetServerName records the Plex server's friendly name for the summary
// footer. Call before Run.
func (e *Engine) SetServerName(name string) {
	e.serverName = name
}

// Run executes the sync loop until ctx is canceled. The first cycle runs
// immediately; afterwards the timer and manual triggers are serviced from a
// single goroutine so cycles are strictly serialized.
func (e *Engine) Run(ctx context.Context) error {
	logging.Info().Dur("interval", e.interval).Str("channel_id", e.channelID).Msg("Sync engine started")

	e.runCycle(ctx, TriggerTimer)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			logging.Info().Msg("Sync engine stopping")
			return ctx.Err()
		case <-ticker.C:
			e.runCycle(ctx, TriggerTimer)
		case trig := <-e.triggerChan:
			e.runCycle(ctx, trig)
		}
	}
}

// HandleMessage inspects an incoming channel message and enqueues a manual
// sync when it is a recognized command in the mirrored channel. Called from
// the gateway goroutine; never blocks.
func (e *Engine) HandleMessage(msg discord.Message) {
	if msg.ChannelID != e.channelID {
		return
	}
	command := strings.ToLower(strings.TrimSpace(msg.Content))
	if _, ok := syncCommands[command]; !ok {
		return
	}

	select {
	case e.triggerChan <- TriggerManual:
		logging.Info().Str("command", command).Str("user", msg.Author.Username).Msg("Manual sync requested")
	default:
		// A sync is already queued; the pending one covers this request.
		logging.Debug().Str("command", command).Msg("Manual sync coalesced into pending trigger")
	}
}

// runCycle executes one full sync cycle. Timer cycles publish only when the
// catalog changed (or on the very first observation); manual cycles always
// republish and report progress via an acknowledgement message.
func (e *Engine) runCycle(ctx context.Context, trig Trigger) {
	cycleID := uuid.NewString()
	logger := logging.With().Str("cycle_id", cycleID).Str("trigger", string(trig)).Logger()

	var ack *discord.Message
	if trig == TriggerManual {
		var err error
		ack, err = e.publisher.CreateMessage(ctx, e.channelID, discord.MessageParams{
			Content: "🔄 Syncing Plex library...",
		})
		if err != nil {
			logger.Warn().Err(err).Msg("Failed to post sync acknowledgement")
		}
	}

	items, err := e.fetcher.FetchCatalog(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Catalog fetch failed")
		metrics.SyncCycles.WithLabelValues(string(trig), "failed").Inc()
		e.finishAck(ctx, logger, trig, ack, "❌ Sync failed: could not reach the Plex server.")
		return
	}

	current := catalog.NewKeySet(items)
	added := catalog.Diff(current, e.known)
	firstRun := !e.observedOnce

	if trig == TriggerTimer && !firstRun && len(added) == 0 {
		// Nothing new to announce; removals still shrink the observed set.
		e.known = current
		logger.Debug().Int("items", len(items)).Msg("No library changes, skipping publish")
		metrics.SyncCycles.WithLabelValues(string(trig), "skipped").Inc()
		return
	}

	out := render.Render(items, added)

	if err := e.publish(ctx, logger, out); err != nil {
		// Observed state is not advanced: the delta stays pending so the
		// next cycle re-announces what this one failed to post.
		logger.Error().Err(err).Msg("Publish failed")
		metrics.SyncCycles.WithLabelValues(string(trig), "failed").Inc()
		e.finishAck(ctx, logger, trig, ack, "❌ Sync failed: could not update the channel listing.")
		return
	}

	e.known = current
	e.observedOnce = true
	if !firstRun {
		metrics.NewItems.Add(float64(len(added)))
	}

	logger.Info().
		Int("movies", out.Summary.MovieCount).
		Int("shows", out.Summary.ShowCount).
		Int("new_items", len(added)).
		Int("blocks", len(out.Blocks)).
		Msg("Library listing published")
	metrics.SyncCycles.WithLabelValues(string(trig), "published").Inc()

	e.finishAck(ctx, logger, trig, ack, fmt.Sprintf(
		"✅ Library list updated — %d movies, %d TV shows, %d new.",
		out.Summary.MovieCount, out.Summary.ShowCount, len(added),
	))
}

// publish replaces the channel listing: delete the previous messages, then
// post the summary embed followed by the list blocks. Deletion failures are
// logged and skipped (the message may already be gone); send failures abort
// the cycle.
func (e *Engine) publish(ctx context.Context, logger zerolog.Logger, out render.Output) error {
	for _, id := range e.messageIDs {
		if err := e.publisher.DeleteMessage(ctx, e.channelID, id); err != nil {
			logger.Warn().Err(err).Str("message_id", id).Msg("Failed to delete previous message")
			metrics.MessageErrors.WithLabelValues("delete").Inc()
			continue
		}
		metrics.MessagesDeleted.Inc()
	}
	e.messageIDs = e.messageIDs[:0]

	summaryMsg, err := e.publisher.CreateMessage(ctx, e.channelID, discord.MessageParams{
		Embeds: []discord.Embed{e.buildSummaryEmbed(out.Summary)},
	})
	if err != nil {
		metrics.MessageErrors.WithLabelValues("send").Inc()
		return fmt.Errorf("send summary: %w", err)
	}
	e.messageIDs = append(e.messageIDs, summaryMsg.ID)
	metrics.MessagesSent.Inc()

	for _, block := range out.Blocks {
		msg, err := e.publisher.CreateMessage(ctx, e.channelID, discord.MessageParams{
			Content: block.Content,
		})
		if err != nil {
			metrics.MessageErrors.WithLabelValues("send").Inc()
			return fmt.Errorf("send %s block: %w", block.Category, err)
		}
		e.messageIDs = append(e.messageIDs, msg.ID)
		metrics.MessagesSent.Inc()
	}

	return nil
}

// finishAck reports a manual cycle's final status: normally by editing the
// acknowledgement message, or with a fresh message when the acknowledgement
// post itself failed. No-op for timer cycles.
func (e *Engine) finishAck(ctx context.Context, logger zerolog.Logger, trig Trigger, ack *discord.Message, text string) {
	if trig != TriggerManual {
		return
	}

	if ack == nil {
		if _, err := e.publisher.CreateMessage(ctx, e.channelID, discord.MessageParams{Content: text}); err != nil {
			logger.Warn().Err(err).Msg("Failed to post sync status")
			metrics.MessageErrors.WithLabelValues("send").Inc()
		}
		return
	}

	if _, err := e.publisher.EditMessage(ctx, e.channelID, ack.ID, discord.MessageParams{Content: text}); err != nil {
		logger.Warn().Err(err).Msg("Failed to edit sync acknowledgement")
		metrics.MessageErrors.WithLabelValues("edit").Inc()
	}
}

// buildSummaryEmbed renders the cycle summary as a Discord embed: library
// counts plus up to ten recently added titles.
func (e *Engine) buildSummaryEmbed(summary render.Summary) discord.Embed {
	footer := fmt.Sprintf("Next check in %s · !sync to refresh", e.interval)
	if e.serverName != "" {
		footer = e.serverName + " · " + footer
	}

	embed := discord.Embed{
		Title:     "📽 Plex Library",
		Color:     embedColor,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
		Fields: []discord.EmbedField{
			{Name: "Movies", Value: fmt.Sprintf("%d", summary.MovieCount), Inline: true},
			{Name: "TV Shows", Value: fmt.Sprintf("%d", summary.ShowCount), Inline: true},
		},
		Footer: &discord.EmbedFooter{Text: footer},
	}

	if len(summary.NewItems) > 0 {
		var sb strings.Builder
		for _, item := range summary.NewItems {
			fmt.Fprintf(&sb, "%s %s (%s)\n", item.Category.Icon(), item.Title, item.YearLabel())
		}
		embed.Fields = append(embed.Fields, discord.EmbedField{
			Name:  "Recently Added",
			Value: strings.TrimRight(sb.String(), "\n"),
		})
	}

	return embed
}
