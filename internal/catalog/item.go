// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package catalog defines the normalized library item model and the delta
// computation between successive library snapshots.
package catalog

import "fmt"

// Category classifies a library item. The set is closed; new categories are
// introduced by configuration, not discovered at runtime.
type Category string

const (
	CategoryMovies Category = "Movies"
	CategoryShows  Category = "TV Shows"
)

// keyPrefix returns the category tag used in item keys. Prefixing keeps keys
// unique even when a movie and a show share the same numeric rating key.
func (c Category) keyPrefix() string {
	if c == CategoryShows {
		return "show"
	}
	return "movie"
}

// Icon returns the presentation glyph for the category.
func (c Category) Icon() string {
	if c == CategoryShows {
		return "📺"
	}
	return "🎬"
}

// Item is one normalized library entry. Items are immutable once constructed
// and re-fetched fresh on every sync cycle.
type Item struct {
	Key      string
	Title    string
	Year     int // 0 means the release year is unknown
	Category Category
}

// NewItem builds an Item with its stable key derived from the category and
// the source rating key.
func NewItem(category Category, ratingKey, title string, year int) Item {
	return Item{
		Key:      fmt.Sprintf("%s_%s", category.keyPrefix(), ratingKey),
		Title:    title,
		Year:     year,
		Category: category,
	}
}

// YearLabel renders the release year, mapping a missing year to an explicit
// marker rather than omitting it.
func (i Item) YearLabel() string {
	if i.Year == 0 {
		return "Unknown"
	}
	return fmt.Sprintf("%d", i.Year)
}

// Icon returns the presentation glyph derived from the item's category.
func (i Item) Icon() string {
	return i.Category.Icon()
}
