package episode

import (
	"fmt"
	"path/filepath"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"yt2pod/internal/fileutil"
)

// contentIDLength is the number of hex digits kept from the upload digest.
const contentIDLength = 16

// DeriveGUID returns baseID for a whole source and "{baseID}_part{k}" for part k.
func DeriveGUID(baseID string, partIndex *int) string {
	if partIndex == nil {
		return baseID
	}
	return fmt.Sprintf("%s_part%d", baseID, *partIndex)
}

// ContentID hashes the file bytes so identical re-uploads share a base ID.
func ContentID(path string) (string, error) {
	sum, err := fileutil.HashFile(path)
	if err != nil {
		return "", fmt.Errorf("hash upload: %w", err)
	}
	return sum[:contentIDLength], nil
}

func partMarker(k, n int) string {
	return fmt.Sprintf("(Part %d/%d)", k, n)
}

// PartTitle suffixes title with the part marker.
func PartTitle(title string, k, n int) string {
	return fmt.Sprintf("%s %s", title, partMarker(k, n))
}

// PartDescription appends the part marker on its own paragraph.
func PartDescription(description string, k, n int) string {
	return fmt.Sprintf("%s\n\n%s", description, partMarker(k, n))
}

// TitleFromFilename turns an upload filename such as "my_talk-2024.mp3" into
// "My Talk 2024".
func TitleFromFilename(name string) string {
	base := filepath.Base(name)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var cleaned strings.Builder
	prevSpace := false
	for _, r := range base {
		switch {
		case unicode.IsLetter(r) || unicode.IsNumber(r):
			cleaned.WriteRune(r)
			prevSpace = false
		case unicode.IsSpace(r) || r == '-' || r == '_' || r == '.':
			if !prevSpace {
				cleaned.WriteRune(' ')
				prevSpace = true
			}
		}
	}
	title := strings.TrimSpace(cleaned.String())
	if title == "" {
		return "Untitled Upload"
	}
	return cases.Title(language.Und).String(title)
}
