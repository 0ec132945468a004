package transcode

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"yt2pod/internal/config"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

// RunFunc executes a command and returns its combined output.
type RunFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// FFmpeg converts and cuts audio with the ffmpeg binary.
type FFmpeg struct {
	binary string
	run    RunFunc
	logger *slog.Logger
}

// New returns an FFmpeg using binary, or "ffmpeg" when empty.
func New(binary string, logger *slog.Logger) *FFmpeg {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &FFmpeg{
		binary: binary,
		run:    defaultRun,
		logger: logging.NewComponentLogger(logger, "transcode"),
	}
}

// NewFromConfig returns an FFmpeg for the configured binary.
func NewFromConfig(cfg *config.Config, logger *slog.Logger) *FFmpeg {
	return New(cfg.FFmpegBinary(), logger)
}

// WithRunner replaces the command runner. Intended for tests.
func (f *FFmpeg) WithRunner(run RunFunc) *FFmpeg {
	if run != nil {
		f.run = run
	}
	return f
}

// NeedsConversion reports whether input must be re-encoded to reach format.
func NeedsConversion(input, format string) bool {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(input)), ".")
	return ext != strings.ToLower(strings.TrimSpace(format))
}

// ConvertArgs builds the ffmpeg arguments for an audio-only re-encode.
func ConvertArgs(input, output, format, bitrate string) ([]string, error) {
	args := []string{"-y", "-loglevel", "error", "-i", input, "-vn"}
	switch strings.ToLower(strings.TrimSpace(format)) {
	case config.FormatMP3:
		args = append(args, "-acodec", "libmp3lame")
		if strings.TrimSpace(bitrate) != "" {
			args = append(args, "-b:a", bitrate)
		} else {
			args = append(args, "-q:a", "2")
		}
	case config.FormatM4A:
		args = append(args, "-acodec", "aac")
		if strings.TrimSpace(bitrate) != "" {
			args = append(args, "-b:a", bitrate)
		}
		args = append(args, "-movflags", "+faststart")
	default:
		return nil, services.Wrap(services.ErrValidation, "converting", "ffmpeg", fmt.Sprintf("unsupported audio format %q", format), nil)
	}
	return append(args, "-ar", "44100", "-ac", "2", output), nil
}

// CutArgs builds the ffmpeg arguments for a stream-copy segment extraction.
func CutArgs(input, output string, startSeconds, durationSeconds int) []string {
	return []string{
		"-y", "-loglevel", "error",
		"-i", input,
		"-ss", strconv.Itoa(startSeconds),
		"-t", strconv.Itoa(durationSeconds),
		"-c", "copy",
		"-map_metadata", "0",
		output,
	}
}

// Convert re-encodes input into output. A failed run removes the partial output.
func (f *FFmpeg) Convert(ctx context.Context, input, output, format, bitrate string) error {
	args, err := ConvertArgs(input, output, format, bitrate)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return services.Wrap(services.ErrConfiguration, "converting", "ffmpeg", "create output directory", err)
	}
	f.logger.Debug("converting audio",
		logging.String("input", input),
		logging.String("output", output),
		logging.String("format", format),
	)
	if out, err := f.run(ctx, f.binary, args...); err != nil {
		_ = os.Remove(output)
		return services.Wrap(services.ErrExternalTool, "converting", "ffmpeg", "convert "+filepath.Base(input)+": "+trimOutput(out), err)
	}
	return nil
}

// Cut copies [start, start+duration) of input into output without re-encoding.
func (f *FFmpeg) Cut(ctx context.Context, input, output string, startSeconds, durationSeconds int) error {
	if durationSeconds <= 0 {
		return services.Wrap(services.ErrValidation, "splitting", "ffmpeg", "non-positive segment duration", nil)
	}
	if out, err := f.run(ctx, f.binary, CutArgs(input, output, startSeconds, durationSeconds)...); err != nil {
		return services.Wrap(services.ErrExternalTool, "splitting", "ffmpeg", "cut "+filepath.Base(output)+": "+trimOutput(out), err)
	}
	return nil
}

func trimOutput(out []byte) string {
	text := strings.TrimSpace(string(out))
	if len(text) > 500 {
		text = text[len(text)-500:]
	}
	if text == "" {
		return "no output"
	}
	return text
}

func defaultRun(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).CombinedOutput() //nolint:gosec
}
