package acquire

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"yt2pod/internal/services"
)

var videoIDPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)

var youtubeHosts = map[string]struct{}{
	"youtube.com":     {},
	"www.youtube.com": {},
	"m.youtube.com":   {},
	"youtu.be":        {},
}

var pathPrefixes = []string{"/live/", "/shorts/", "/embed/", "/v/"}

// Source is a validated YouTube video reference.
type Source struct {
	Original   string
	VideoID    string
	PlaylistID string
}

// URL returns the canonical watch URL for the video.
func (s Source) URL() string {
	return "https://www.youtube.com/watch?v=" + s.VideoID
}

// ParseYouTubeURL validates raw and extracts the video id.
func ParseYouTubeURL(raw string) (Source, error) {
	trimmed := strings.TrimSpace(raw)
	parsed, err := url.Parse(trimmed)
	if err != nil || parsed.Host == "" {
		return Source{}, invalidURL(raw, "not an absolute url")
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return Source{}, invalidURL(raw, "unsupported scheme "+parsed.Scheme)
	}
	host := strings.ToLower(parsed.Hostname())
	if _, ok := youtubeHosts[host]; !ok {
		return Source{}, invalidURL(raw, "unsupported host "+host)
	}

	var id string
	switch {
	case host == "youtu.be":
		id = firstSegment(strings.TrimPrefix(parsed.Path, "/"))
	case parsed.Path == "/watch" || strings.HasPrefix(parsed.Path, "/watch/"):
		id = parsed.Query().Get("v")
	default:
		for _, prefix := range pathPrefixes {
			if strings.HasPrefix(parsed.Path, prefix) {
				id = firstSegment(strings.TrimPrefix(parsed.Path, prefix))
				break
			}
		}
	}
	if id == "" {
		return Source{}, invalidURL(raw, "no video id")
	}
	if !videoIDPattern.MatchString(id) {
		return Source{}, invalidURL(raw, fmt.Sprintf("malformed video id %q", id))
	}
	return Source{
		Original:   trimmed,
		VideoID:    id,
		PlaylistID: parsed.Query().Get("list"),
	}, nil
}

func firstSegment(p string) string {
	if i := strings.IndexByte(p, '/'); i >= 0 {
		return p[:i]
	}
	return p
}

func invalidURL(raw, reason string) error {
	return services.Wrap(services.ErrValidation, "starting", "parse url", fmt.Sprintf("invalid YouTube URL %q: %s", raw, reason), nil)
}
