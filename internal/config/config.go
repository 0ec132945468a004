package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory, file and bind address configuration.
type Paths struct {
	PodcastDir     string `toml:"podcast_dir"`
	MediaDir       string `toml:"media_dir"`
	RSSFile        string `toml:"rss_file"`
	TempDir        string `toml:"temp_dir"`
	TranscriptsDir string `toml:"transcripts_dir"`
	StateDir       string `toml:"state_dir"`
	LogDir         string `toml:"log_dir"`
	InboxDir       string `toml:"inbox_dir"`
	APIBind        string `toml:"api_bind"`
	APIToken       string `toml:"api_token"`
}

// Podcast contains channel-level metadata written into the feed.
type Podcast struct {
	SiteURL      string `toml:"site_url"`
	MediaBaseURL string `toml:"media_base_url"`
	Title        string `toml:"title"`
	Description  string `toml:"description"`
	Author       string `toml:"author"`
	OwnerEmail   string `toml:"owner_email"`
	Language     string `toml:"language"`
	Category     string `toml:"category"`
	ImageURL     string `toml:"image_url"`
	Explicit     bool   `toml:"explicit"`
}

// Feed contains feed document and audio output settings.
type Feed struct {
	MaxItems     int    `toml:"max_items"`
	AudioFormat  string `toml:"audio_format"`
	AudioBitrate string `toml:"audio_bitrate"`
}

// Segment contains long-form splitting settings.
type Segment struct {
	MaxSegmentSeconds int `toml:"max_segment_seconds"`
}

// Acquire contains source acquisition settings.
type Acquire struct {
	YTDLPBinary       string   `toml:"ytdlp_binary"`
	Format            string   `toml:"format"`
	UploadExtensions  []string `toml:"upload_extensions"`
	MetadataTimeout   int      `toml:"metadata_timeout"`
	DownloadTimeout   int      `toml:"download_timeout"`
	MaxUploadMegabyte int      `toml:"max_upload_mb"`
}

// Transcription contains settings for the external speech-to-text backend.
type Transcription struct {
	Enabled             bool   `toml:"enabled"`
	AutoTrigger         bool   `toml:"auto_trigger"`
	APIKey              string `toml:"api_key"`
	BaseURL             string `toml:"base_url"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`
	MaxWaitMinutes      int    `toml:"max_wait_minutes"`
	RequestTimeout      int    `toml:"request_timeout"`
	ExcerptChars        int    `toml:"excerpt_chars"`
}

// ObjectStore contains S3-compatible publishing settings.
type ObjectStore struct {
	Endpoint  string `toml:"endpoint"`
	Bucket    string `toml:"bucket"`
	Region    string `toml:"region"`
	Prefix    string `toml:"prefix"`
	AccessKey string `toml:"access_key"`
	SecretKey string `toml:"secret_key"`
	UseSSL    bool   `toml:"use_ssl"`
}

// Publish contains settings for pushing the feed to its public location.
type Publish struct {
	Mode        string      `toml:"mode"`
	GitRepoDir  string      `toml:"git_repo_dir"`
	GitBranch   string      `toml:"git_branch"`
	GitRemote   string      `toml:"git_remote"`
	ObjectStore ObjectStore `toml:"object_store"`
}

// Workflow contains configuration for daemon job execution.
type Workflow struct {
	MaxConcurrentJobs int `toml:"max_concurrent_jobs"`
	JobPollInterval   int `toml:"job_poll_interval"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	JobCompleted   bool   `toml:"job_completed"`
	JobFailed      bool   `toml:"job_failed"`
	Transcripts    bool   `toml:"transcripts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format        string `toml:"format"`
	Level         string `toml:"level"`
	RetentionDays int    `toml:"retention_days"`
	MaxSizeMB     int    `toml:"max_size_mb"`
	MaxBackups    int    `toml:"max_backups"`
	Compress      bool   `toml:"compress"`
}

// Config encapsulates all configuration values for yt2pod.
//
// Configuration sections by subsystem:
//   - Paths: podcast output, state and log directories, API bind address
//   - Podcast: channel metadata and public URLs
//   - Feed: feed size cap and audio output format
//   - Segment: long-form splitting threshold
//   - Acquire: yt-dlp and upload settings
//   - Transcription: speech-to-text backend
//   - Publish: git or object-store publishing
//   - Workflow: daemon worker pool
//   - Notifications: ntfy push notification settings
//   - Logging: log format, level, rotation and retention
type Config struct {
	Paths         Paths         `toml:"paths"`
	Podcast       Podcast       `toml:"podcast"`
	Feed          Feed          `toml:"feed"`
	Segment       Segment       `toml:"segment"`
	Acquire       Acquire       `toml:"acquire"`
	Transcription Transcription `toml:"transcription"`
	Publish       Publish       `toml:"publish"`
	Workflow      Workflow      `toml:"workflow"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	loadDotEnv(resolvedPath)

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// loadDotEnv reads .env files beside the config file and in the working
// directory. Variables already present in the environment win.
func loadDotEnv(configPath string) {
	candidates := []string{".env"}
	if configPath != "" {
		candidates = append([]string{filepath.Join(filepath.Dir(configPath), ".env")}, candidates...)
	}
	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err != nil || info.IsDir() {
			continue
		}
		_ = godotenv.Load(candidate)
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("yt2pod.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the directories the CLI and daemon write to.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.PodcastDir,
		c.Paths.MediaDir,
		c.Paths.TempDir,
		c.Paths.TranscriptsDir,
		c.Paths.StateDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.RSSFile),
	}
	if c.Paths.InboxDir != "" {
		dirs = append(dirs, c.Paths.InboxDir)
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// DatabasePath returns the sqlite file holding jobs and transcript records.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.Paths.StateDir, "yt2pod.db")
}

// FeedLockPath returns the lock file guarding feed load-merge-persist cycles.
func (c *Config) FeedLockPath() string {
	return c.Paths.RSSFile + ".lock"
}

// DaemonLockPath returns the single-instance lock file for yt2podd.
func (c *Config) DaemonLockPath() string {
	return filepath.Join(c.Paths.StateDir, "yt2podd.lock")
}

// FeedURL returns the public URL of the RSS document.
func (c *Config) FeedURL() string {
	return strings.TrimRight(c.Podcast.SiteURL, "/") + "/" + filepath.Base(c.Paths.RSSFile)
}

// FFprobeBinary returns the ffprobe executable name used for media inspection.
func (c *Config) FFprobeBinary() string {
	return "ffprobe"
}

// FFmpegBinary returns the ffmpeg executable name used for conversion and cutting.
func (c *Config) FFmpegBinary() string {
	return "ffmpeg"
}

// PublishEnabled reports whether a publisher other than manual is configured.
func (c *Config) PublishEnabled() bool {
	return c.Publish.Mode != PublishManual
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
