// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package plex

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/plexcord/plexcord/internal/catalog"
)

const sectionsJSON = `{
  "MediaContainer": {
    "size": 2,
    "Directory": [
      {"key": "1", "title": "Movies", "type": "movie"},
      {"key": "2", "title": "TV Shows", "type": "show"}
    ]
  }
}`

const moviesJSON = `{
  "MediaContainer": {
    "size": 2,
    "Metadata": [
      {"ratingKey": "101", "title": "Beta", "type": "movie", "year": 2001},
      {"ratingKey": "102", "title": "Alpha", "type": "movie"}
    ]
  }
}`

const showsJSON = `{
  "MediaContainer": {
    "size": 1,
    "Metadata": [
      {"ratingKey": "101", "title": "Some Show", "type": "show", "year": 2010}
    ]
  }
}`

func newFakePlex(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/library/sections", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Plex-Token") == "" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sectionsJSON))
	})
	mux.HandleFunc("/library/sections/1/all", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(moviesJSON))
	})
	mux.HandleFunc("/library/sections/2/all", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(showsJSON))
	})
	return httptest.NewServer(mux)
}

func TestLibrary_FetchCatalog(t *testing.T) {
	server := newFakePlex(t)
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	library := NewLibrary(client, "Movies", "TV Shows")

	items, err := library.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 3 {
		t.Fatalf("expected 3 items, got %d", len(items))
	}

	keys := catalog.NewKeySet(items)
	for _, want := range []string{"movie_101", "movie_102", "show_101"} {
		if !keys.Contains(want) {
			t.Errorf("missing key %q in %v", want, keys)
		}
	}

	// movie_101 and show_101 share a rating key but must not collide.
	if len(keys) != 3 {
		t.Errorf("expected 3 distinct keys, got %d", len(keys))
	}
}

func TestLibrary_FetchCatalog_UnknownYear(t *testing.T) {
	server := newFakePlex(t)
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	library := NewLibrary(client, "Movies", "TV Shows")

	items, err := library.FetchCatalog(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	for _, item := range items {
		if item.Key == "movie_102" {
			if item.YearLabel() != "Unknown" {
				t.Errorf("missing year should render Unknown, got %q", item.YearLabel())
			}
			return
		}
	}
	t.Fatal("movie_102 not found")
}

func TestLibrary_FetchCatalog_SectionNotFound(t *testing.T) {
	server := newFakePlex(t)
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	library := NewLibrary(client, "Anime", "TV Shows")

	_, err := library.FetchCatalog(context.Background())
	if err == nil {
		t.Fatal("expected error for unknown section name")
	}
}

func TestFindSectionByName_CaseInsensitive(t *testing.T) {
	server := newFakePlex(t)
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	section, err := client.FindSectionByName(context.Background(), "movies")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if section.Key != "1" {
		t.Errorf("section key = %q, want 1", section.Key)
	}
}

func TestClient_RateLimitRetry(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) == 1 {
			w.Header().Set("Retry-After", "0")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(sectionsJSON))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	sections, err := client.GetLibrarySections(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Errorf("expected 2 calls (429 then 200), got %d", calls)
	}
	if sections.MediaContainer.Size != 2 {
		t.Errorf("size = %d, want 2", sections.MediaContainer.Size)
	}
}

func TestClient_Identity(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/identity" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"MediaContainer": {"machineIdentifier": "abc", "friendlyName": "Home Plex", "version": "1.40"}}`))
	}))
	defer server.Close()

	client := NewClient(server.URL, "test-token")
	identity, err := client.Identity(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if identity.MediaContainer.FriendlyName != "Home Plex" {
		t.Errorf("friendly name = %q", identity.MediaContainer.FriendlyName)
	}
}
