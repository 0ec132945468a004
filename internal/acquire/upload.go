package acquire

import (
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"yt2pod/internal/fileutil"
	"yt2pod/internal/services"
)

// ValidateUpload checks name against the allowed extensions.
func ValidateUpload(name string, allowed []string) error {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return services.Wrap(services.ErrValidation, "starting", "upload", fmt.Sprintf("file %q has no extension", filepath.Base(name)), nil)
	}
	if !slices.Contains(allowed, ext) {
		return services.Wrap(
			services.ErrValidation,
			"starting",
			"upload",
			fmt.Sprintf("unsupported file type %s (allowed: %s)", ext, strings.Join(allowed, ", ")),
			nil,
		)
	}
	return nil
}

// ImportUpload copies src into dir under a sanitized name and returns the
// new path. The copy is verified by size.
func ImportUpload(src, dir string) (string, error) {
	info, err := os.Stat(src)
	if err != nil {
		if os.IsNotExist(err) {
			return "", services.Wrap(services.ErrNotFound, "uploading", "import", "uploaded file missing: "+src, nil)
		}
		return "", services.Wrap(services.ErrTransient, "uploading", "import", "stat upload", err)
	}
	if info.IsDir() {
		return "", services.Wrap(services.ErrValidation, "uploading", "import", src+" is a directory", nil)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "uploading", "import", "create work directory", err)
	}
	dst := filepath.Join(dir, SanitizeFilename(filepath.Base(src)))
	if filepath.Clean(dst) == filepath.Clean(src) {
		return dst, nil
	}
	if err := fileutil.CopyFileVerified(src, dst); err != nil {
		return "", services.Wrap(services.ErrTransient, "uploading", "import", "copy upload", err)
	}
	return dst, nil
}

// SanitizeFilename keeps letters, digits, dot, dash and underscore.
func SanitizeFilename(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteRune('_')
		}
	}
	out := strings.TrimLeft(b.String(), ".")
	if out == "" {
		return "upload"
	}
	return out
}
