package feed

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/mmcdole/gofeed"

	"yt2pod/internal/episode"
	"yt2pod/internal/logging"
)

// Load parses the persisted feed at path. A missing or unparseable document
// yields (nil, false) so ingestion can fall back to a fresh feed; parse
// failures are logged, never returned.
func Load(path string, logger *slog.Logger) (*Feed, bool) {
	f, err := parse(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			logging.WarnWithContext(logging.NewComponentLogger(logger, "feed"), "feed document unreadable; starting a new feed", "feed_load_failed",
				logging.String("path", path),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "inspect or restore the RSS file"),
				logging.String(logging.FieldImpact, "existing episodes will be dropped on next write"),
			)
		}
		return nil, false
	}
	return f, true
}

// ExistingGUIDs returns the GUIDs present in the document at path without
// building a merge cycle. A missing or invalid document yields an empty set.
func ExistingGUIDs(path string) map[string]struct{} {
	f, err := parse(path)
	if err != nil {
		return map[string]struct{}{}
	}
	return f.GUIDs()
}

func parse(path string) (*Feed, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	parsed, err := gofeed.NewParser().Parse(file)
	if err != nil {
		return nil, fmt.Errorf("parse feed: %w", err)
	}
	if parsed == nil {
		return nil, errors.New("parse feed: empty document")
	}
	return fromParsed(parsed), nil
}

func fromParsed(parsed *gofeed.Feed) *Feed {
	f := &Feed{
		Channel: Channel{
			Title:       parsed.Title,
			Description: parsed.Description,
			Language:    parsed.Language,
			SiteURL:     parsed.Link,
		},
	}
	if parsed.UpdatedParsed != nil {
		f.LastBuildDate = parsed.UpdatedParsed.UTC()
	}
	if parsed.Image != nil {
		f.Channel.ImageURL = parsed.Image.URL
	}
	if it := parsed.ITunesExt; it != nil {
		f.Channel.Author = it.Author
		f.Channel.Explicit = parseExplicit(it.Explicit)
		if it.Owner != nil {
			f.Channel.OwnerEmail = it.Owner.Email
		}
		if len(it.Categories) > 0 && it.Categories[0] != nil {
			f.Channel.Category = it.Categories[0].Text
		}
		if it.Image != "" {
			f.Channel.ImageURL = it.Image
		}
	}

	// Documents list items newest first; memory keeps insertion order.
	f.Episodes = make([]episode.Episode, 0, len(parsed.Items))
	for i := len(parsed.Items) - 1; i >= 0; i-- {
		item := parsed.Items[i]
		if item == nil {
			continue
		}
		f.Episodes = append(f.Episodes, episodeFromItem(item))
	}
	f.Channel.MediaBaseURL = mediaBaseFromEpisodes(f.Episodes)
	return f
}

func episodeFromItem(item *gofeed.Item) episode.Episode {
	ep := episode.Episode{
		GUID:        item.GUID,
		Title:       item.Title,
		SourceLink:  item.Link,
		Description: item.Description,
	}
	if ep.GUID == "" {
		ep.GUID = item.Link
	}
	if item.PublishedParsed != nil {
		ep.PublishedAt = item.PublishedParsed.UTC()
	}
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		enc := item.Enclosures[0]
		ep.AudioURL = enc.URL
		ep.AudioMimeType = enc.Type
		if size, err := strconv.ParseInt(strings.TrimSpace(enc.Length), 10, 64); err == nil {
			ep.AudioByteSize = size
		}
	}
	if it := item.ITunesExt; it != nil {
		ep.DurationFormatted = it.Duration
		ep.ThumbnailURL = it.Image
	}
	if ep.ThumbnailURL == "" && item.Image != nil {
		ep.ThumbnailURL = item.Image.URL
	}
	return ep
}

func parseExplicit(value string) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "true", "yes", "explicit":
		return true
	default:
		return false
	}
}
