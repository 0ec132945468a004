package ffprobe

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os/exec"
	"strconv"
	"strings"

	"yt2pod/internal/services"
)

// Result is the subset of ffprobe JSON output needed to publish an episode.
type Result struct {
	Streams []Stream `json:"streams"`
	Format  Format   `json:"format"`
}

// Stream describes one stream in the container.
type Stream struct {
	Index      int    `json:"index"`
	CodecName  string `json:"codec_name"`
	CodecType  string `json:"codec_type"`
	SampleRate string `json:"sample_rate"`
	Channels   int    `json:"channels"`
	Duration   string `json:"duration"`
}

// Format holds container-level figures.
type Format struct {
	Filename   string `json:"filename"`
	Duration   string `json:"duration"`
	Size       string `json:"size"`
	BitRate    string `json:"bit_rate"`
	FormatName string `json:"format_name"`
}

// OutputFunc runs a command and returns its stdout.
type OutputFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// Inspect runs ffprobe on path and decodes its JSON report.
func Inspect(ctx context.Context, binary, path string) (Result, error) {
	return InspectWith(ctx, defaultOutput, binary, path)
}

// InspectWith is Inspect with an injectable command runner.
func InspectWith(ctx context.Context, run OutputFunc, binary, path string) (Result, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffprobe"
	}
	path = strings.TrimSpace(path)
	if path == "" {
		return Result{}, services.Wrap(services.ErrValidation, "converting", "ffprobe", "empty path", nil)
	}
	output, err := run(ctx, binary, "-v", "error", "-hide_banner", "-show_format", "-show_streams", "-of", "json", "--", path)
	if err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "converting", "ffprobe", "inspect "+path, err)
	}
	var result Result
	if err := json.Unmarshal(output, &result); err != nil {
		return Result{}, services.Wrap(services.ErrExternalTool, "converting", "ffprobe", "parse report", err)
	}
	return result, nil
}

// Prober binds Inspect to a binary so it can be passed as a collaborator.
type Prober struct {
	Binary string
	Run    OutputFunc
}

// Inspect runs ffprobe on path.
func (p Prober) Inspect(ctx context.Context, path string) (Result, error) {
	run := p.Run
	if run == nil {
		run = defaultOutput
	}
	return InspectWith(ctx, run, p.Binary, path)
}

// HasAudio reports whether any audio stream is present.
func (r Result) HasAudio() bool {
	for _, stream := range r.Streams {
		if strings.EqualFold(stream.CodecType, "audio") {
			return true
		}
	}
	return false
}

// DurationSeconds returns the container duration, falling back to the
// longest audio stream. Unparseable values yield 0.
func (r Result) DurationSeconds() float64 {
	if d := parseFloat(r.Format.Duration); d > 0 {
		return d
	}
	longest := 0.0
	for _, stream := range r.Streams {
		if !strings.EqualFold(stream.CodecType, "audio") {
			continue
		}
		if d := parseFloat(stream.Duration); d > longest {
			longest = d
		}
	}
	return longest
}

// WholeSeconds truncates DurationSeconds to an integer.
func (r Result) WholeSeconds() int {
	return int(r.DurationSeconds())
}

// SizeBytes returns the reported container size, or 0 when unavailable.
func (r Result) SizeBytes() int64 {
	return int64(parseFloat(r.Format.Size))
}

func parseFloat(value string) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) || parsed < 0 {
		return 0
	}
	return parsed
}

func defaultOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
