// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package plex

import (
	"context"
	"fmt"
	"strings"
)

// SectionsResponse represents the response from /library/sections.
type SectionsResponse struct {
	MediaContainer SectionsContainer `json:"MediaContainer"`
}

// SectionsContainer wraps the library section directory array.
type SectionsContainer struct {
	Size      int       `json:"size"`
	Directory []Section `json:"Directory"`
}

// Section is one library section (Movies, TV Shows, Music, Photos).
type Section struct {
	Key   string `json:"key"`
	Title string `json:"title"`
	Type  string `json:"type"` // "movie", "show", "artist", "photo"
}

// SectionContentResponse represents the response from
// /library/sections/{key}/all.
type SectionContentResponse struct {
	MediaContainer SectionContentContainer `json:"MediaContainer"`
}

// SectionContentContainer wraps the section content metadata array.
type SectionContentContainer struct {
	Size     int        `json:"size"`
	Metadata []Metadata `json:"Metadata"`
}

// Metadata is one media item in a library section. Year is optional in the
// Plex API and decodes to zero when absent.
type Metadata struct {
	RatingKey string `json:"ratingKey"`
	Title     string `json:"title"`
	Type      string `json:"type"` // "movie", "show"
	Year      int    `json:"year,omitempty"`
}

// GetLibrarySections retrieves all library sections.
//
// Endpoint: GET /library/sections
func (c *Client) GetLibrarySections(ctx context.Context) (*SectionsResponse, error) {
	var sectionsResp SectionsResponse
	if err := c.doJSONRequest(ctx, "/library/sections", &sectionsResp); err != nil {
		return nil, err
	}
	return &sectionsResp, nil
}

// GetSectionAll retrieves all content from a library section.
//
// Endpoint: GET /library/sections/{sectionKey}/all
func (c *Client) GetSectionAll(ctx context.Context, sectionKey string) (*SectionContentResponse, error) {
	var contentResp SectionContentResponse
	if err := c.doJSONRequest(ctx, "/library/sections/"+sectionKey+"/all", &contentResp); err != nil {
		return nil, err
	}
	return &contentResp, nil
}

// FindSectionByName resolves a section name (e.g. "Movies") to its section
// key. The match is case-insensitive.
func (c *Client) FindSectionByName(ctx context.Context, name string) (*Section, error) {
	sections, err := c.GetLibrarySections(ctx)
	if err != nil {
		return nil, fmt.Errorf("list sections: %w", err)
	}

	for i := range sections.MediaContainer.Directory {
		section := &sections.MediaContainer.Directory[i]
		if strings.EqualFold(section.Title, name) {
			return section, nil
		}
	}

	return nil, fmt.Errorf("library section %q not found", name)
}
