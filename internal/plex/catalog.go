// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package plex

import (
	"context"
	"fmt"
	"time"

	"github.com/plexcord/plexcord/internal/catalog"
	"github.com/plexcord/plexcord/internal/logging"
	"github.com/plexcord/plexcord/internal/metrics"
)

// CatalogClient is the subset of the Plex API the catalog fetcher needs.
// Satisfied by *Client and *BreakerClient.
type CatalogClient interface {
	FindSectionByName(ctx context.Context, name string) (*Section, error)
	GetSectionAll(ctx context.Context, sectionKey string) (*SectionContentResponse, error)
}

// Library fetches the two configured library sections and normalizes their
// content into catalog items.
type Library struct {
	client        CatalogClient
	moviesSection string
	showsSection  string
}

// NewLibrary creates a catalog fetcher over the given client for the named
// movie and TV-show sections.
func NewLibrary(client CatalogClient, moviesSection, showsSection string) *Library {
	return &Library{
		client:        client,
		moviesSection: moviesSection,
		showsSection:  showsSection,
	}
}

// FetchCatalog queries both configured sections and returns their combined
// normalized content. Section keys are resolved by name on every call so a
// re-created section picks up its new key without a restart.
func (l *Library) FetchCatalog(ctx context.Context) ([]catalog.Item, error) {
	start := time.Now()

	movies, err := l.fetchSection(ctx, l.moviesSection, catalog.CategoryMovies)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", l.moviesSection, err)
	}

	shows, err := l.fetchSection(ctx, l.showsSection, catalog.CategoryShows)
	if err != nil {
		return nil, fmt.Errorf("fetch %q: %w", l.showsSection, err)
	}

	items := make([]catalog.Item, 0, len(movies)+len(shows))
	items = append(items, movies...)
	items = append(items, shows...)

	metrics.CatalogFetchDuration.Observe(time.Since(start).Seconds())
	metrics.CatalogItems.WithLabelValues(string(catalog.CategoryMovies)).Set(float64(len(movies)))
	metrics.CatalogItems.WithLabelValues(string(catalog.CategoryShows)).Set(float64(len(shows)))

	logging.Debug().
		Int("movies", len(movies)).
		Int("shows", len(shows)).
		Dur("elapsed", time.Since(start)).
		Msg("Fetched library catalog")

	return items, nil
}

// fetchSection resolves one section by name and normalizes its content.
func (l *Library) fetchSection(ctx context.Context, name string, category catalog.Category) ([]catalog.Item, error) {
	section, err := l.client.FindSectionByName(ctx, name)
	if err != nil {
		return nil, err
	}

	content, err := l.client.GetSectionAll(ctx, section.Key)
	if err != nil {
		return nil, fmt.Errorf("section %q content: %w", name, err)
	}

	items := make([]catalog.Item, 0, len(content.MediaContainer.Metadata))
	for _, meta := range content.MediaContainer.Metadata {
		items = append(items, catalog.NewItem(category, meta.RatingKey, meta.Title, meta.Year))
	}

	return items, nil
}
