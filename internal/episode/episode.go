package episode

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Episode is one published feed entry. GUID is immutable once published and
// is the only deduplication key.
type Episode struct {
	GUID              string    `json:"guid"`
	Title             string    `json:"title"`
	SourceLink        string    `json:"source_link"`
	Description       string    `json:"description"`
	AudioURL          string    `json:"audio_url"`
	AudioByteSize     int64     `json:"audio_byte_size"`
	AudioMimeType     string    `json:"audio_mime_type"`
	PublishedAt       time.Time `json:"published_at"`
	DurationFormatted string    `json:"duration"`
	ThumbnailURL      string    `json:"thumbnail_url,omitempty"`
}

// FormatDuration renders seconds as HH:MM:SS when at least an hour long and
// MM:SS otherwise.
func FormatDuration(seconds int) string {
	if seconds < 0 {
		seconds = 0
	}
	hours := seconds / 3600
	minutes := (seconds % 3600) / 60
	secs := seconds % 60
	if hours > 0 {
		return fmt.Sprintf("%02d:%02d:%02d", hours, minutes, secs)
	}
	return fmt.Sprintf("%02d:%02d", minutes, secs)
}

// ParseDuration is the inverse of FormatDuration. It also accepts a bare
// number of seconds, which some feeds use for itunes:duration.
func ParseDuration(value string) (int, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0, false
	}
	fields := strings.Split(value, ":")
	if len(fields) > 3 {
		return 0, false
	}
	total := 0
	for _, field := range fields {
		n, err := strconv.Atoi(field)
		if err != nil || n < 0 {
			return 0, false
		}
		total = total*60 + n
	}
	return total, true
}

// MimeType returns the enclosure MIME type for an audio output format.
func MimeType(format string) string {
	switch strings.ToLower(strings.TrimPrefix(strings.TrimSpace(format), ".")) {
	case "m4a", "mp4", "aac":
		return "audio/mp4"
	case "mp3":
		return "audio/mpeg"
	case "ogg", "opus":
		return "audio/ogg"
	case "wav":
		return "audio/wav"
	default:
		return "application/octet-stream"
	}
}
