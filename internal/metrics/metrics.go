// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package metrics defines the Prometheus instrumentation for Plexcord:
// sync cycle outcomes, catalog sizes, Discord message operations, and the
// Plex circuit breaker state. Metrics are served on GET /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// SyncCycles counts completed sync cycles by trigger ("timer", "manual")
	// and status ("published", "skipped", "failed").
	SyncCycles = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexcord_sync_cycles_total",
			Help: "Total number of sync cycles by trigger and status",
		},
		[]string{"trigger", "status"},
	)

	// NewItems counts items flagged as newly added across all cycles.
	NewItems = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plexcord_new_items_total",
			Help: "Total number of newly added library items detected",
		},
	)

	// CatalogItems tracks the current library size per category.
	CatalogItems = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plexcord_catalog_items",
			Help: "Current number of library items by category",
		},
		[]string{"category"},
	)

	// CatalogFetchDuration observes the latency of a full catalog fetch.
	CatalogFetchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "plexcord_catalog_fetch_duration_seconds",
			Help:    "Duration of full library catalog fetches in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	// MessagesSent counts Discord messages successfully posted.
	MessagesSent = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plexcord_messages_sent_total",
			Help: "Total number of Discord messages sent",
		},
	)

	// MessagesDeleted counts Discord messages successfully deleted.
	MessagesDeleted = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plexcord_messages_deleted_total",
			Help: "Total number of Discord messages deleted",
		},
	)

	// MessageErrors counts failed Discord message operations by kind
	// ("send", "edit", "delete").
	MessageErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexcord_message_errors_total",
			Help: "Total number of failed Discord message operations",
		},
		[]string{"operation"},
	)

	// GatewayReconnects counts Discord gateway reconnection attempts.
	GatewayReconnects = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "plexcord_gateway_reconnects_total",
			Help: "Total number of Discord gateway reconnection attempts",
		},
	)

	// CircuitBreakerState tracks breaker state per upstream
	// (0 = closed, 1 = half-open, 2 = open).
	CircuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "plexcord_circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	// CircuitBreakerRequests counts breaker-wrapped requests by result
	// ("success", "failure", "rejected").
	CircuitBreakerRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "plexcord_circuit_breaker_requests_total",
			Help: "Total number of circuit-breaker-wrapped requests by result",
		},
		[]string{"name", "result"},
	)
)
