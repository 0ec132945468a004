package feed

import (
	"os"
	"path"
	"path/filepath"
	"strings"
)

// RebaseReport lists the outcome of rewriting enclosure URLs.
type RebaseReport struct {
	Updated int
	Missing []string
}

// Rebase points every enclosure at {mediaBaseURL}/{basename} and refreshes
// byte sizes from mediaDir. Episodes whose media file is absent keep their
// previous size and are reported as missing.
func Rebase(f *Feed, mediaBaseURL, mediaDir string) RebaseReport {
	var report RebaseReport
	base := strings.TrimRight(mediaBaseURL, "/")
	for i := range f.Episodes {
		ep := &f.Episodes[i]
		name := path.Base(ep.AudioURL)
		if name == "" || name == "." || name == "/" {
			report.Missing = append(report.Missing, ep.GUID)
			continue
		}
		next := base + "/" + name
		changed := next != ep.AudioURL
		ep.AudioURL = next

		info, err := os.Stat(filepath.Join(mediaDir, name))
		if err != nil {
			report.Missing = append(report.Missing, ep.GUID)
		} else if info.Size() != ep.AudioByteSize {
			ep.AudioByteSize = info.Size()
			changed = true
		}
		if changed {
			report.Updated++
		}
	}
	f.Channel.MediaBaseURL = base
	return report
}
