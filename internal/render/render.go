// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

// Package render turns a normalized catalog snapshot into the bounded-size
// blocks posted to the channel: one summary plus chunked per-category lists.
package render

import (
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/plexcord/plexcord/internal/catalog"
)

const (
	// HardMessageLimit is Discord's maximum message length in characters.
	HardMessageLimit = 2000

	// softBlockLimit leaves headroom under the hard limit so a block never
	// needs a mid-line split.
	softBlockLimit = 1900

	// maxSummaryNewItems caps the "Recently Added" list in the summary.
	maxSummaryNewItems = 10
)

// Summary carries the header content for a publish cycle. The publisher
// renders it as a rich embed.
type Summary struct {
	MovieCount int
	ShowCount  int

	// NewItems holds up to maxSummaryNewItems newly added items, in render
	// order (movies then shows, each sorted by title).
	NewItems []catalog.Item
}

// Block is one bounded-size list chunk for a single category.
type Block struct {
	Category catalog.Category
	Content  string
}

// Output is the full rendered result of one cycle, in publish order.
type Output struct {
	Summary Summary
	Blocks  []Block
}

// categoryLabel maps a category to its section heading text.
func categoryLabel(c catalog.Category) string {
	return fmt.Sprintf("%s %s", c.Icon(), string(c))
}

// Render partitions items by category, sorts each partition
// case-insensitively by title, and assembles the summary plus chunked list
// blocks. Items whose key is in added are marked with the new-item glyph.
// Every returned block is at most HardMessageLimit characters.
func Render(items []catalog.Item, added catalog.KeySet) Output {
	movies := filterSorted(items, catalog.CategoryMovies)
	shows := filterSorted(items, catalog.CategoryShows)

	out := Output{
		Summary: Summary{
			MovieCount: len(movies),
			ShowCount:  len(shows),
		},
	}

	for _, item := range movies {
		if added.Contains(item.Key) && len(out.Summary.NewItems) < maxSummaryNewItems {
			out.Summary.NewItems = append(out.Summary.NewItems, item)
		}
	}
	for _, item := range shows {
		if added.Contains(item.Key) && len(out.Summary.NewItems) < maxSummaryNewItems {
			out.Summary.NewItems = append(out.Summary.NewItems, item)
		}
	}

	out.Blocks = append(out.Blocks, chunkCategory(movies, catalog.CategoryMovies, added)...)
	out.Blocks = append(out.Blocks, chunkCategory(shows, catalog.CategoryShows, added)...)

	return out
}

// filterSorted returns the items of one category sorted case-insensitively
// by title.
func filterSorted(items []catalog.Item, c catalog.Category) []catalog.Item {
	var filtered []catalog.Item
	for _, item := range items {
		if item.Category == c {
			filtered = append(filtered, item)
		}
	}
	sort.SliceStable(filtered, func(i, j int) bool {
		return strings.ToLower(filtered[i].Title) < strings.ToLower(filtered[j].Title)
	})
	return filtered
}

// chunkCategory greedily accumulates item lines into blocks under the soft
// cap. A line that would overflow the running block flushes it and starts the
// next block with just that line; lines are never split.
func chunkCategory(items []catalog.Item, c catalog.Category, added catalog.KeySet) []Block {
	if len(items) == 0 {
		return nil
	}

	heading := fmt.Sprintf("## %s\n\n", categoryLabel(c))
	var blocks []Block
	current := heading

	for _, item := range items {
		marker := ""
		if added.Contains(item.Key) {
			marker = "🆕 "
		}
		line := fmt.Sprintf("• %s%s (%s)\n", marker, item.Title, item.YearLabel())

		if utf8.RuneCountInString(current)+utf8.RuneCountInString(line) > softBlockLimit {
			blocks = append(blocks, Block{Category: c, Content: current})
			current = line
		} else {
			current += line
		}
	}

	if current != heading && strings.TrimSpace(current) != "" {
		blocks = append(blocks, Block{Category: c, Content: current})
	}

	return blocks
}
