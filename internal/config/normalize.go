package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePodcast()
	c.normalizeFeed()
	c.normalizeAcquire()
	c.normalizeTranscription()
	if err := c.normalizePublish(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.PodcastDir, err = expandPath(strings.TrimSpace(c.Paths.PodcastDir)); err != nil {
		return fmt.Errorf("paths.podcast_dir: %w", err)
	}
	if c.Paths.PodcastDir == "" {
		return fmt.Errorf("paths.podcast_dir must be set")
	}
	derived := []struct {
		key   string
		value *string
		def   string
	}{
		{"paths.media_dir", &c.Paths.MediaDir, filepath.Join(c.Paths.PodcastDir, "media")},
		{"paths.rss_file", &c.Paths.RSSFile, filepath.Join(c.Paths.PodcastDir, "rss.xml")},
		{"paths.temp_dir", &c.Paths.TempDir, filepath.Join(c.Paths.PodcastDir, "temp")},
		{"paths.transcripts_dir", &c.Paths.TranscriptsDir, filepath.Join(c.Paths.PodcastDir, "transcripts")},
		{"paths.state_dir", &c.Paths.StateDir, defaultStateDir},
		{"paths.log_dir", &c.Paths.LogDir, defaultLogDir},
	}
	for _, entry := range derived {
		value := strings.TrimSpace(*entry.value)
		if value == "" {
			value = entry.def
		}
		if *entry.value, err = expandPath(value); err != nil {
			return fmt.Errorf("%s: %w", entry.key, err)
		}
	}
	if inbox := strings.TrimSpace(c.Paths.InboxDir); inbox != "" {
		if c.Paths.InboxDir, err = expandPath(inbox); err != nil {
			return fmt.Errorf("paths.inbox_dir: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	if c.Paths.APIToken == "" {
		if value, ok := os.LookupEnv("YT2POD_API_TOKEN"); ok {
			c.Paths.APIToken = strings.TrimSpace(value)
		}
	}
	return nil
}

func (c *Config) normalizePodcast() {
	envFallback(&c.Podcast.SiteURL, "SITE_URL")
	envFallback(&c.Podcast.MediaBaseURL, "MEDIA_BASE_URL")
	envOverride(&c.Podcast.Title, "PODCAST_TITLE", defaultPodcastTitle)
	envOverride(&c.Podcast.Description, "PODCAST_DESCRIPTION", defaultPodcastDescription)
	envOverride(&c.Podcast.Author, "PODCAST_AUTHOR", defaultPodcastAuthor)
	envOverride(&c.Podcast.Language, "PODCAST_LANGUAGE", defaultPodcastLanguage)
	envOverride(&c.Podcast.Category, "PODCAST_CATEGORY", defaultPodcastCategory)
	envFallback(&c.Podcast.OwnerEmail, "PODCAST_EMAIL")
	envFallback(&c.Podcast.ImageURL, "PODCAST_IMAGE_URL")

	c.Podcast.SiteURL = strings.TrimRight(c.Podcast.SiteURL, "/")
	c.Podcast.MediaBaseURL = strings.TrimRight(c.Podcast.MediaBaseURL, "/")
	c.Podcast.Language = strings.ToLower(c.Podcast.Language)
}

func (c *Config) normalizeFeed() {
	envFallback(&c.Feed.AudioFormat, "AUDIO_FORMAT")
	c.Feed.AudioFormat = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(c.Feed.AudioFormat), "."))
	if c.Feed.AudioFormat == "" {
		c.Feed.AudioFormat = defaultAudioFormat
	}
	if value, ok := os.LookupEnv("FEED_MAX_ITEMS"); ok && c.Feed.MaxItems == defaultFeedMaxItems {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			c.Feed.MaxItems = parsed
		}
	}
	c.Feed.AudioBitrate = strings.TrimSpace(c.Feed.AudioBitrate)
	if c.Feed.AudioBitrate == "" {
		c.Feed.AudioBitrate = defaultAudioBitrate
	}
	if c.Segment.MaxSegmentSeconds == 0 {
		c.Segment.MaxSegmentSeconds = defaultMaxSegmentSeconds
	}
}

func (c *Config) normalizeAcquire() {
	c.Acquire.YTDLPBinary = strings.TrimSpace(c.Acquire.YTDLPBinary)
	if c.Acquire.YTDLPBinary == "" {
		c.Acquire.YTDLPBinary = defaultYTDLPBinary
	}
	c.Acquire.Format = strings.TrimSpace(c.Acquire.Format)
	if c.Acquire.Format == "" {
		c.Acquire.Format = defaultYTDLPFormat
	}
	exts := make([]string, 0, len(c.Acquire.UploadExtensions))
	seen := make(map[string]struct{}, len(c.Acquire.UploadExtensions))
	for _, ext := range c.Acquire.UploadExtensions {
		normalized := strings.ToLower(strings.TrimSpace(ext))
		if normalized == "" {
			continue
		}
		if !strings.HasPrefix(normalized, ".") {
			normalized = "." + normalized
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		exts = append(exts, normalized)
	}
	if len(exts) == 0 {
		exts = append(exts, defaultUploadExtensions...)
	}
	c.Acquire.UploadExtensions = exts
}

func (c *Config) normalizeTranscription() {
	c.Transcription.APIKey = strings.TrimSpace(c.Transcription.APIKey)
	if c.Transcription.APIKey == "" {
		if value, ok := os.LookupEnv("ASSEMBLYAI_API_KEY"); ok {
			c.Transcription.APIKey = strings.TrimSpace(value)
		}
	}
	c.Transcription.BaseURL = strings.TrimRight(strings.TrimSpace(c.Transcription.BaseURL), "/")
	if c.Transcription.BaseURL == "" {
		c.Transcription.BaseURL = defaultTranscriptionBaseURL
	}
	if c.Transcription.ExcerptChars <= 0 {
		c.Transcription.ExcerptChars = defaultTranscriptionExcerpt
	}
}

func (c *Config) normalizePublish() error {
	if value, ok := os.LookupEnv("AUTO_PUBLISH"); ok && c.Publish.Mode == PublishManual {
		c.Publish.Mode = value
	}
	c.Publish.Mode = strings.ToLower(strings.TrimSpace(c.Publish.Mode))
	if c.Publish.Mode == "" {
		c.Publish.Mode = PublishManual
	}
	if value, ok := os.LookupEnv("GITHUB_BRANCH"); ok && c.Publish.GitBranch == defaultGitBranch {
		c.Publish.GitBranch = strings.TrimSpace(value)
	}
	c.Publish.GitBranch = strings.TrimSpace(c.Publish.GitBranch)
	if c.Publish.GitBranch == "" {
		c.Publish.GitBranch = defaultGitBranch
	}
	c.Publish.GitRemote = strings.TrimSpace(c.Publish.GitRemote)
	if c.Publish.GitRemote == "" {
		c.Publish.GitRemote = defaultGitRemote
	}
	repo := strings.TrimSpace(c.Publish.GitRepoDir)
	if repo == "" {
		repo = filepath.Dir(c.Paths.PodcastDir)
	}
	var err error
	if c.Publish.GitRepoDir, err = expandPath(repo); err != nil {
		return fmt.Errorf("publish.git_repo_dir: %w", err)
	}

	store := &c.Publish.ObjectStore
	envFallback(&store.Endpoint, "MINIO_ENDPOINT")
	envFallback(&store.Bucket, "MINIO_BUCKET")
	envFallback(&store.AccessKey, "MINIO_ACCESS_KEY")
	envFallback(&store.SecretKey, "MINIO_SECRET_KEY")
	store.Prefix = strings.Trim(strings.TrimSpace(store.Prefix), "/")
	store.Region = strings.TrimSpace(store.Region)
	if store.Region == "" {
		store.Region = defaultObjectStoreRegion
	}
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.MaxConcurrentJobs <= 0 {
		c.Workflow.MaxConcurrentJobs = defaultMaxConcurrentJobs
	}
	if c.Workflow.JobPollInterval <= 0 {
		c.Workflow.JobPollInterval = defaultJobPollInterval
	}
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
	if c.Notifications.NtfyTopic == "" {
		if value, ok := os.LookupEnv("NTFY_TOPIC"); ok {
			c.Notifications.NtfyTopic = strings.TrimSpace(value)
		}
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Logging.RetentionDays < 0 {
		c.Logging.RetentionDays = 0
	}
	if c.Logging.MaxSizeMB <= 0 {
		c.Logging.MaxSizeMB = defaultLogMaxSizeMB
	}
	if c.Logging.MaxBackups < 0 {
		c.Logging.MaxBackups = 0
	}
}

// envFallback fills an empty value from the named environment variable.
func envFallback(target *string, key string) {
	*target = strings.TrimSpace(*target)
	if *target != "" {
		return
	}
	if value, ok := os.LookupEnv(key); ok {
		*target = strings.TrimSpace(value)
	}
}

// envOverride applies the environment variable when the value is still the
// built-in default, then restores the default if the result is empty.
func envOverride(target *string, key, def string) {
	*target = strings.TrimSpace(*target)
	if *target == "" || *target == def {
		if value, ok := os.LookupEnv(key); ok && strings.TrimSpace(value) != "" {
			*target = strings.TrimSpace(value)
		}
	}
	if *target == "" {
		*target = def
	}
}
