// Plexcord - Plex Library Mirror for Discord
// Copyright 2026 Plexcord contributors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/plexcord/plexcord

package catalog

// KeySet is a set of item keys, the only state retained between sync cycles.
type KeySet map[string]struct{}

// NewKeySet projects a batch of items onto its key set.
func NewKeySet(items []Item) KeySet {
	set := make(KeySet, len(items))
	for _, item := range items {
		set[item.Key] = struct{}{}
	}
	return set
}

// Contains reports whether key is in the set.
func (s KeySet) Contains(key string) bool {
	_, ok := s[key]
	return ok
}

// Diff returns the keys present in current but not in previous.
//
// An empty previous set means a cold start: nothing is marked new, so the
// first observation never floods the channel with a full-library "new" list.
func Diff(current, previous KeySet) KeySet {
	added := make(KeySet)
	if len(previous) == 0 {
		return added
	}
	for key := range current {
		if _, ok := previous[key]; !ok {
			added[key] = struct{}{}
		}
	}
	return added
}
