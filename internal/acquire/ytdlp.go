package acquire

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"yt2pod/internal/config"
	"yt2pod/internal/jobs"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

const progressPrefix = "[yt2pod] "

// progressTemplate renders one parseable line per yt-dlp progress tick.
const progressTemplate = "download:" + progressPrefix +
	"%(progress._percent_str)s|%(progress._speed_str)s|%(progress._eta_str)s|" +
	"%(progress.downloaded_bytes)s|%(progress.total_bytes,progress.total_bytes_estimate)s"

// Metadata describes a remote video as reported by yt-dlp.
type Metadata struct {
	ID              string
	Title           string
	Description     string
	DurationSeconds int
	UploadDate      time.Time
	Uploader        string
	ThumbnailURL    string
	WebpageURL      string
}

// OutputFunc runs a command to completion and returns stdout.
type OutputFunc func(ctx context.Context, name string, args ...string) ([]byte, error)

// StreamFunc runs a command and hands each stdout line to onLine.
type StreamFunc func(ctx context.Context, name string, args []string, onLine func(string)) error

// YTDLP drives the yt-dlp binary.
type YTDLP struct {
	binary          string
	format          string
	metadataTimeout time.Duration
	downloadTimeout time.Duration
	output          OutputFunc
	stream          StreamFunc
	logger          *slog.Logger
}

// NewYTDLP builds a client from the acquire section of cfg.
func NewYTDLP(cfg *config.Config, logger *slog.Logger) *YTDLP {
	return &YTDLP{
		binary:          cfg.Acquire.YTDLPBinary,
		format:          cfg.Acquire.Format,
		metadataTimeout: time.Duration(cfg.Acquire.MetadataTimeout) * time.Second,
		downloadTimeout: time.Duration(cfg.Acquire.DownloadTimeout) * time.Second,
		output:          defaultOutput,
		stream:          defaultStream,
		logger:          logging.NewComponentLogger(logger, "ytdlp"),
	}
}

// WithRunners swaps the command runners. Nil values keep the defaults.
func (y *YTDLP) WithRunners(output OutputFunc, stream StreamFunc) *YTDLP {
	if output != nil {
		y.output = output
	}
	if stream != nil {
		y.stream = stream
	}
	return y
}

type rawMetadata struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Duration    *float64 `json:"duration"`
	UploadDate  string   `json:"upload_date"`
	Uploader    string   `json:"uploader"`
	Thumbnail   string   `json:"thumbnail"`
	WebpageURL  string   `json:"webpage_url"`
}

// Metadata fetches video details without downloading media.
func (y *YTDLP) Metadata(ctx context.Context, videoURL string) (Metadata, error) {
	ctx, cancel := withOptionalTimeout(ctx, y.metadataTimeout)
	defer cancel()

	out, err := y.output(ctx, y.binary, "-J", "--no-playlist", "--skip-download", "--no-warnings", videoURL)
	if err != nil {
		return Metadata{}, classify(ctx, "metadata", err)
	}
	var raw rawMetadata
	if err := json.Unmarshal(out, &raw); err != nil {
		return Metadata{}, services.Wrap(services.ErrExternalTool, "starting", "metadata", "decode yt-dlp json", err)
	}
	return raw.toMetadata(), nil
}

func (r rawMetadata) toMetadata() Metadata {
	meta := Metadata{
		ID:           r.ID,
		Title:        strings.TrimSpace(r.Title),
		Description:  r.Description,
		Uploader:     r.Uploader,
		ThumbnailURL: r.Thumbnail,
		WebpageURL:   r.WebpageURL,
	}
	if meta.Title == "" {
		meta.Title = "Unknown Title"
	}
	if r.Duration != nil && *r.Duration > 0 {
		meta.DurationSeconds = int(*r.Duration)
	}
	if parsed, err := time.Parse("20060102", r.UploadDate); err == nil {
		meta.UploadDate = parsed.UTC()
	} else {
		meta.UploadDate = time.Now().UTC().Truncate(24 * time.Hour)
	}
	return meta
}

// Download fetches the best audio stream of videoURL into dir as
// {videoID}.{ext} and returns the file path. Progress ticks are sent to
// events without blocking; the final finished event is always delivered.
func (y *YTDLP) Download(ctx context.Context, videoURL, videoID, dir string, events chan<- jobs.ProgressEvent) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", services.Wrap(services.ErrConfiguration, "downloading", "yt-dlp", "create download directory", err)
	}
	ctx, cancel := withOptionalTimeout(ctx, y.downloadTimeout)
	defer cancel()

	args := []string{
		"--no-playlist",
		"--newline",
		"--progress",
		"--no-warnings",
		"--progress-template", progressTemplate,
		"--print", "after_move:filepath",
		"-f", y.format,
		"-o", filepath.Join(dir, videoID+".%(ext)s"),
		videoURL,
	}

	var (
		mu        sync.Mutex
		finalPath string
	)
	onLine := func(line string) {
		line = strings.TrimSpace(line)
		if strings.HasPrefix(line, progressPrefix) {
			if event, ok := ParseProgressLine(line); ok {
				sendProgress(events, event)
			}
			return
		}
		if filepath.IsAbs(line) {
			mu.Lock()
			finalPath = line
			mu.Unlock()
		}
	}
	if err := y.stream(ctx, y.binary, args, onLine); err != nil {
		return "", classify(ctx, "download", err)
	}

	mu.Lock()
	path := finalPath
	mu.Unlock()
	if path == "" {
		path = findDownloaded(dir, videoID)
	}
	if path == "" {
		return "", services.Wrap(services.ErrExternalTool, "downloading", "yt-dlp", "download finished but no audio file found for "+videoID, nil)
	}
	if events != nil {
		select {
		case events <- jobs.ProgressEvent{Status: jobs.EventFinished, Percent: 100, ETA: "0s"}:
		case <-ctx.Done():
		}
	}
	y.logger.Info("download complete", logging.String("video_id", videoID), logging.String("path", path))
	return path, nil
}

// ParseProgressLine decodes one progress-template line.
func ParseProgressLine(line string) (jobs.ProgressEvent, bool) {
	body, ok := strings.CutPrefix(strings.TrimSpace(line), strings.TrimSpace(progressPrefix))
	if !ok {
		return jobs.ProgressEvent{}, false
	}
	fields := strings.Split(strings.TrimSpace(body), "|")
	if len(fields) < 3 {
		return jobs.ProgressEvent{}, false
	}
	percent, err := strconv.ParseFloat(strings.TrimSuffix(strings.TrimSpace(fields[0]), "%"), 64)
	if err != nil {
		return jobs.ProgressEvent{}, false
	}
	event := jobs.ProgressEvent{
		Status:  jobs.EventDownloading,
		Percent: percent,
		Speed:   naToEmpty(fields[1]),
		ETA:     naToEmpty(fields[2]),
	}
	if len(fields) >= 5 {
		event.Downloaded = naToEmpty(fields[3])
		event.Total = naToEmpty(fields[4])
	}
	return event, true
}

func naToEmpty(v string) string {
	v = strings.TrimSpace(v)
	if v == "NA" || v == "N/A" || v == "Unknown" {
		return ""
	}
	return v
}

func sendProgress(events chan<- jobs.ProgressEvent, event jobs.ProgressEvent) {
	if events == nil {
		return
	}
	select {
	case events <- event:
	default:
	}
}

func findDownloaded(dir, videoID string) string {
	matches, _ := filepath.Glob(filepath.Join(dir, videoID+".*"))
	for _, match := range matches {
		if strings.HasSuffix(match, ".part") || strings.HasSuffix(match, ".ytdl") {
			continue
		}
		return match
	}
	return ""
}

func withOptionalTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func classify(ctx context.Context, op string, err error) error {
	stage := "downloading"
	if op == "metadata" {
		stage = "starting"
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return services.Wrap(services.ErrTimeout, stage, "yt-dlp "+op, "timed out", err)
	}
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		return services.Wrap(services.ErrConfiguration, stage, "yt-dlp "+op, "yt-dlp not available", err)
	}
	return services.Wrap(services.ErrExternalTool, stage, "yt-dlp "+op, "yt-dlp failed", err)
}

func defaultOutput(ctx context.Context, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	var stderr strings.Builder
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: %s", err, lastLines(stderr.String(), 5))
	}
	return out, nil
}

func defaultStream(ctx context.Context, name string, args []string, onLine func(string)) error {
	cmd := exec.CommandContext(ctx, name, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	var stderr strings.Builder
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return err
	}
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		onLine(scanner.Text())
	}
	_, _ = io.Copy(io.Discard, stdout)
	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("%w: %s", err, lastLines(stderr.String(), 5))
	}
	return nil
}

func lastLines(text string, n int) string {
	lines := strings.Split(strings.TrimSpace(text), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "; ")
}
