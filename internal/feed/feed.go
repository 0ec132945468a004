package feed

import (
	"time"

	"yt2pod/internal/episode"
)

// Channel holds the feed-level metadata written into the document.
type Channel struct {
	Title        string
	Description  string
	Author       string
	OwnerEmail   string
	Language     string
	Category     string
	ImageURL     string
	Explicit     bool
	SiteURL      string
	MediaBaseURL string
}

// Feed is the canonical episode list plus channel metadata. Episodes are kept
// in insertion order, oldest first.
type Feed struct {
	Channel       Channel
	Episodes      []episode.Episode
	LastBuildDate time.Time
}

// CreateEmpty initialises a feed with no episodes.
func CreateEmpty(channel Channel) *Feed {
	return &Feed{Channel: channel}
}

// Contains reports whether guid is already present.
func (f *Feed) Contains(guid string) bool {
	for i := range f.Episodes {
		if f.Episodes[i].GUID == guid {
			return true
		}
	}
	return false
}

// GUIDs returns the set of episode GUIDs in the feed.
func (f *Feed) GUIDs() map[string]struct{} {
	set := make(map[string]struct{}, len(f.Episodes))
	for i := range f.Episodes {
		set[f.Episodes[i].GUID] = struct{}{}
	}
	return set
}

// Merge appends ep unless its GUID is already present and returns the number
// of episodes added (0 or 1). Publish times are stored at second precision in
// UTC, matching what the document can represent.
func (f *Feed) Merge(ep episode.Episode) int {
	if ep.GUID == "" || f.Contains(ep.GUID) {
		return 0
	}
	if !ep.PublishedAt.IsZero() {
		ep.PublishedAt = ep.PublishedAt.UTC().Truncate(time.Second)
	}
	f.Episodes = append(f.Episodes, ep)
	return 1
}

// Trim drops the oldest episodes beyond maxItems and returns how many were
// removed. A non-positive maxItems disables trimming.
func (f *Feed) Trim(maxItems int) int {
	return len(f.TrimOldest(maxItems))
}

// TrimOldest drops the oldest episodes beyond maxItems and returns them.
func (f *Feed) TrimOldest(maxItems int) []episode.Episode {
	if maxItems <= 0 || len(f.Episodes) <= maxItems {
		return nil
	}
	cut := len(f.Episodes) - maxItems
	removed := append([]episode.Episode(nil), f.Episodes[:cut]...)
	kept := make([]episode.Episode, maxItems)
	copy(kept, f.Episodes[cut:])
	f.Episodes = kept
	return removed
}

// Newest returns episodes newest first, the order the document lists them.
func (f *Feed) Newest() []episode.Episode {
	out := make([]episode.Episode, len(f.Episodes))
	for i, ep := range f.Episodes {
		out[len(f.Episodes)-1-i] = ep
	}
	return out
}
