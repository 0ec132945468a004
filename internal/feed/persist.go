package feed

import (
	"fmt"
	"path/filepath"
	"strings"

	"yt2pod/internal/fileutil"
)

// Persist trims f to maxItems (oldest dropped first) and writes it to path
// atomically. On error the previously persisted document is left untouched.
func Persist(f *Feed, path string, maxItems int) error {
	if f == nil {
		return fmt.Errorf("persist feed: nil feed")
	}
	f.Trim(maxItems)

	data, err := Marshal(f, selfURL(f.Channel.SiteURL, path))
	if err != nil {
		return fmt.Errorf("render feed: %w", err)
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o644); err != nil {
		return fmt.Errorf("write feed: %w", err)
	}
	return nil
}

func selfURL(siteURL, path string) string {
	siteURL = strings.TrimRight(strings.TrimSpace(siteURL), "/")
	if siteURL == "" {
		return ""
	}
	return siteURL + "/" + filepath.Base(path)
}
