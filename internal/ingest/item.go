package ingest

import (
	"yt2pod/internal/episode"
	"yt2pod/internal/segment"
)

// Item is one publishable audio file. PartIndex is nil for a source that
// was not split.
type Item struct {
	PartIndex       *int
	TotalParts      int
	FilePath        string
	DurationSeconds int
}

// GUID returns the episode GUID for the item. Part 1 of a split source keeps
// the base id so a later re-ingest without splitting still deduplicates.
func (it Item) GUID(base string) string {
	if it.PartIndex == nil || *it.PartIndex <= 1 {
		return base
	}
	return episode.DeriveGUID(base, it.PartIndex)
}

// Title applies the part marker when the source has several parts.
func (it Item) Title(title string) string {
	if it.PartIndex == nil || it.TotalParts <= 1 {
		return title
	}
	return episode.PartTitle(title, *it.PartIndex, it.TotalParts)
}

// Description applies the part marker when the source has several parts.
func (it Item) Description(description string) string {
	if it.PartIndex == nil || it.TotalParts <= 1 {
		return description
	}
	return episode.PartDescription(description, *it.PartIndex, it.TotalParts)
}

// SingleItem wraps an unsplit file.
func SingleItem(path string, durationSeconds int) Item {
	return Item{TotalParts: 1, FilePath: path, DurationSeconds: durationSeconds}
}

// ItemsFromParts converts split output into items.
func ItemsFromParts(parts []segment.Part) []Item {
	items := make([]Item, 0, len(parts))
	for _, part := range parts {
		idx := part.PartIndex
		items = append(items, Item{
			PartIndex:       &idx,
			TotalParts:      part.TotalParts,
			FilePath:        part.Path,
			DurationSeconds: part.DurationSeconds,
		})
	}
	return items
}

// PlannedGUIDs lists the GUIDs a source of totalSeconds will produce.
func PlannedGUIDs(base string, totalSeconds, maxSeconds int) []string {
	if !segment.ShouldSplit(totalSeconds, maxSeconds) {
		return []string{base}
	}
	plan := segment.Plan(totalSeconds, maxSeconds)
	guids := make([]string, 0, len(plan))
	for _, seg := range plan {
		idx := seg.PartIndex
		guids = append(guids, Item{PartIndex: &idx, TotalParts: seg.TotalParts}.GUID(base))
	}
	return guids
}
