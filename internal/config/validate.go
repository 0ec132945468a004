package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePodcast(); err != nil {
		return err
	}
	if err := c.validateFeed(); err != nil {
		return err
	}
	if err := c.validateAcquire(); err != nil {
		return err
	}
	if err := c.validateTranscription(); err != nil {
		return err
	}
	if err := c.validatePublish(); err != nil {
		return err
	}
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePodcast() error {
	if c.Podcast.SiteURL == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("podcast.site_url is required. Set SITE_URL env var or edit %s (create with 'yt2pod config init')", defaultPath)
	}
	if err := validateHTTPURL("podcast.site_url", c.Podcast.SiteURL); err != nil {
		return err
	}
	if c.Podcast.MediaBaseURL == "" {
		return errors.New("podcast.media_base_url is required (or set MEDIA_BASE_URL)")
	}
	if err := validateHTTPURL("podcast.media_base_url", c.Podcast.MediaBaseURL); err != nil {
		return err
	}
	if c.Podcast.ImageURL != "" {
		if err := validateHTTPURL("podcast.image_url", c.Podcast.ImageURL); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateFeed() error {
	switch c.Feed.AudioFormat {
	case FormatM4A, FormatMP3:
	default:
		return fmt.Errorf("feed.audio_format must be %q or %q, got %q", FormatM4A, FormatMP3, c.Feed.AudioFormat)
	}
	if c.Feed.MaxItems < 1 {
		return fmt.Errorf("feed.max_items must be at least 1, got %d", c.Feed.MaxItems)
	}
	if c.Segment.MaxSegmentSeconds < 60 {
		return errors.New("segment.max_segment_seconds must be at least 60")
	}
	return nil
}

func (c *Config) validateAcquire() error {
	return ensurePositiveMap(map[string]int{
		"acquire.metadata_timeout": c.Acquire.MetadataTimeout,
		"acquire.download_timeout": c.Acquire.DownloadTimeout,
		"acquire.max_upload_mb":    c.Acquire.MaxUploadMegabyte,
	})
}

func (c *Config) validateTranscription() error {
	if err := ensurePositiveMap(map[string]int{
		"transcription.poll_interval_seconds": c.Transcription.PollIntervalSeconds,
		"transcription.max_wait_minutes":      c.Transcription.MaxWaitMinutes,
		"transcription.request_timeout":       c.Transcription.RequestTimeout,
	}); err != nil {
		return err
	}
	if c.Transcription.Enabled && c.Transcription.APIKey == "" {
		return errors.New("transcription.api_key must be set when transcription.enabled is true (or set ASSEMBLYAI_API_KEY)")
	}
	if err := validateHTTPURL("transcription.base_url", c.Transcription.BaseURL); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePublish() error {
	switch c.Publish.Mode {
	case PublishManual, PublishGitHub:
		return nil
	case PublishObjectStore:
		store := c.Publish.ObjectStore
		if store.Endpoint == "" {
			return errors.New("publish.object_store.endpoint must be set when publish.mode is object_store")
		}
		if store.Bucket == "" {
			return errors.New("publish.object_store.bucket must be set when publish.mode is object_store")
		}
		if store.AccessKey == "" || store.SecretKey == "" {
			return errors.New("publish.object_store.access_key and secret_key must be set when publish.mode is object_store")
		}
		return nil
	default:
		return fmt.Errorf("publish.mode must be one of manual, github, object_store; got %q", c.Publish.Mode)
	}
}

func (c *Config) validateWorkflow() error {
	return ensurePositiveMap(map[string]int{
		"workflow.max_concurrent_jobs":  c.Workflow.MaxConcurrentJobs,
		"workflow.job_poll_interval":    c.Workflow.JobPollInterval,
		"notifications.request_timeout": c.Notifications.RequestTimeout,
	})
}

func validateHTTPURL(key, value string) error {
	parsed, err := url.Parse(value)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	if (scheme != "http" && scheme != "https") || parsed.Host == "" {
		return fmt.Errorf("%s must be an http(s) URL, got %q", key, value)
	}
	return nil
}

func ensurePositiveMap(values map[string]int) error {
	for key, value := range values {
		if value <= 0 {
			return fmt.Errorf("%s must be positive", key)
		}
	}
	return nil
}
