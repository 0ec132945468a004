package transcript

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"yt2pod/internal/fileutil"
	"yt2pod/internal/services"
)

// DefaultExcerptRunes bounds ReadExcerpt when no limit is given.
const DefaultExcerptRunes = 6000

const excerptSuffix = "\n..."

// TextPath returns the durable location of the transcript for guid.
func TextPath(dir, guid string) string {
	return filepath.Join(dir, guid+".txt")
}

// WriteText stores text for guid atomically.
func WriteText(dir, guid, text string) error {
	if err := validGUID(guid); err != nil {
		return err
	}
	return fileutil.WriteFileAtomic(TextPath(dir, guid), []byte(text), 0o644)
}

// ReadText returns the full transcript for guid.
func ReadText(dir, guid string) (string, error) {
	if err := validGUID(guid); err != nil {
		return "", err
	}
	data, err := os.ReadFile(TextPath(dir, guid))
	if errors.Is(err, os.ErrNotExist) {
		return "", services.Wrap(services.ErrNotFound, "transcript", "read", "no transcript for "+guid, nil)
	}
	if err != nil {
		return "", fmt.Errorf("read transcript: %w", err)
	}
	return string(data), nil
}

// ReadExcerpt returns the first limit runes of the transcript, marking
// truncation with a trailing "\n...".
func ReadExcerpt(dir, guid string, limit int) (string, error) {
	text, err := ReadText(dir, guid)
	if err != nil {
		return "", err
	}
	if limit <= 0 {
		limit = DefaultExcerptRunes
	}
	runes := []rune(text)
	if len(runes) <= limit {
		return text, nil
	}
	return string(runes[:limit]) + excerptSuffix, nil
}

func validGUID(guid string) error {
	if guid == "" || strings.ContainsAny(guid, `/\`) || guid == "." || guid == ".." {
		return services.Wrap(services.ErrValidation, "transcript", "guid", fmt.Sprintf("invalid guid %q", guid), nil)
	}
	return nil
}
