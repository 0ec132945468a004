package segment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

// Cutter extracts [start, start+duration) of input into output without
// re-encoding when the codec allows it.
type Cutter interface {
	Cut(ctx context.Context, input, output string, startSeconds, durationSeconds int) error
}

// Part is a segment materialised on disk.
type Part struct {
	Segment
	Path string
}

// Splitter performs physical segmentation through a Cutter.
type Splitter struct {
	cutter Cutter
	logger *slog.Logger
}

// NewSplitter constructs a splitter. A nil logger discards output.
func NewSplitter(cutter Cutter, logger *slog.Logger) *Splitter {
	return &Splitter{cutter: cutter, logger: logging.NewComponentLogger(logger, "segment")}
}

// PartPath returns the file name used for part k of input: {base}_part{k}{ext}
// in the input's directory.
func PartPath(input string, k int) string {
	ext := filepath.Ext(input)
	base := strings.TrimSuffix(input, ext)
	return fmt.Sprintf("%s_part%d%s", base, k, ext)
}

// Split cuts input into one file per segment. When any cut fails every part
// produced so far is removed along with the failed output, so no partial
// set is ever left on disk.
func (s *Splitter) Split(ctx context.Context, input string, segments []Segment) ([]Part, error) {
	if s == nil || s.cutter == nil {
		return nil, services.Wrap(services.ErrConfiguration, "splitting", "split", "no cutter configured", nil)
	}
	if len(segments) == 0 {
		return nil, services.Wrap(services.ErrValidation, "splitting", "split", "no segments planned", nil)
	}
	if _, err := os.Stat(input); err != nil {
		return nil, services.Wrap(services.ErrNotFound, "splitting", "stat input", input, err)
	}

	parts := make([]Part, 0, len(segments))
	for _, seg := range segments {
		output := PartPath(input, seg.PartIndex)
		if err := s.cutter.Cut(ctx, input, output, seg.StartOffsetSeconds, seg.DurationSeconds); err != nil {
			removed := rollback(append(parts, Part{Segment: seg, Path: output}))
			logging.WarnWithContext(s.logger, "segment cut failed; removed produced parts", "split_rollback",
				logging.String("input", input),
				logging.Int("part", seg.PartIndex),
				logging.Int("removed", removed),
				logging.Error(err),
				logging.String(logging.FieldErrorHint, "check ffmpeg output for the failing part"),
				logging.String(logging.FieldImpact, "source was not split; job will fail"),
			)
			return nil, services.Wrap(services.ErrExternalTool, "splitting", "cut",
				fmt.Sprintf("part %d/%d", seg.PartIndex, seg.TotalParts), err)
		}
		parts = append(parts, Part{Segment: seg, Path: output})
		s.logger.Debug("segment cut",
			logging.String("output", output),
			logging.Int("start", seg.StartOffsetSeconds),
			logging.Int("duration", seg.DurationSeconds),
		)
	}
	s.logger.Info("source split",
		logging.String("input", filepath.Base(input)),
		logging.Int("parts", len(parts)),
	)
	return parts, nil
}

// Cleanup removes every part file, ignoring ones already gone.
func Cleanup(parts []Part) error {
	var errs []error
	for _, part := range parts {
		if err := os.Remove(part.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func rollback(parts []Part) int {
	removed := 0
	for _, part := range parts {
		if err := os.Remove(part.Path); err == nil {
			removed++
		}
	}
	return removed
}
