package config

// Publish modes.
const (
	PublishManual      = "manual"
	PublishGitHub      = "github"
	PublishObjectStore = "object_store"
)

// Audio output formats.
const (
	FormatM4A = "m4a"
	FormatMP3 = "mp3"
)

const (
	defaultConfigPath               = "~/.config/yt2pod/config.toml"
	defaultPodcastDir               = "~/yt2pod/podcast"
	defaultStateDir                 = "~/.local/share/yt2pod"
	defaultLogDir                   = "~/.local/share/yt2pod/logs"
	defaultAPIBind                  = "127.0.0.1:7488"
	defaultPodcastTitle             = "My YouTube Podcast"
	defaultPodcastDescription       = "Audio versions of YouTube videos"
	defaultPodcastAuthor            = "Podcast Author"
	defaultPodcastLanguage          = "en"
	defaultPodcastCategory          = "Technology"
	defaultFeedMaxItems             = 50
	defaultAudioFormat              = FormatM4A
	defaultAudioBitrate             = "128k"
	defaultMaxSegmentSeconds        = 3600
	defaultYTDLPBinary              = "yt-dlp"
	defaultYTDLPFormat              = "bestaudio/best"
	defaultMetadataTimeout          = 120
	defaultDownloadTimeout          = 3600
	defaultMaxUploadMegabyte        = 2048
	defaultTranscriptionBaseURL     = "https://api.assemblyai.com"
	defaultTranscriptionPoll        = 5
	defaultTranscriptionMaxWait     = 180
	defaultTranscriptionTimeout     = 300
	defaultTranscriptionExcerpt     = 6000
	defaultGitBranch                = "main"
	defaultGitRemote                = "origin"
	defaultMaxConcurrentJobs        = 2
	defaultJobPollInterval          = 2
	defaultNotifyRequestTimeout     = 10
	defaultLogFormat                = "console"
	defaultLogLevel                 = "info"
	defaultLogRetentionDays         = 30
	defaultLogMaxSizeMB             = 50
	defaultLogMaxBackups            = 5
	defaultObjectStoreRegion        = "us-east-1"
	defaultTranscriptionAutoTrigger = false
)

var defaultUploadExtensions = []string{".mp3", ".m4a", ".mp4", ".wav", ".aac", ".ogg", ".opus", ".webm", ".mkv", ".mov", ".flac"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			PodcastDir: defaultPodcastDir,
			StateDir:   defaultStateDir,
			LogDir:     defaultLogDir,
			APIBind:    defaultAPIBind,
		},
		Podcast: Podcast{
			Title:       defaultPodcastTitle,
			Description: defaultPodcastDescription,
			Author:      defaultPodcastAuthor,
			Language:    defaultPodcastLanguage,
			Category:    defaultPodcastCategory,
		},
		Feed: Feed{
			MaxItems:     defaultFeedMaxItems,
			AudioFormat:  defaultAudioFormat,
			AudioBitrate: defaultAudioBitrate,
		},
		Segment: Segment{
			MaxSegmentSeconds: defaultMaxSegmentSeconds,
		},
		Acquire: Acquire{
			YTDLPBinary:       defaultYTDLPBinary,
			Format:            defaultYTDLPFormat,
			UploadExtensions:  append([]string(nil), defaultUploadExtensions...),
			MetadataTimeout:   defaultMetadataTimeout,
			DownloadTimeout:   defaultDownloadTimeout,
			MaxUploadMegabyte: defaultMaxUploadMegabyte,
		},
		Transcription: Transcription{
			AutoTrigger:         defaultTranscriptionAutoTrigger,
			BaseURL:             defaultTranscriptionBaseURL,
			PollIntervalSeconds: defaultTranscriptionPoll,
			MaxWaitMinutes:      defaultTranscriptionMaxWait,
			RequestTimeout:      defaultTranscriptionTimeout,
			ExcerptChars:        defaultTranscriptionExcerpt,
		},
		Publish: Publish{
			Mode:      PublishManual,
			GitBranch: defaultGitBranch,
			GitRemote: defaultGitRemote,
			ObjectStore: ObjectStore{
				Region: defaultObjectStoreRegion,
				UseSSL: true,
			},
		},
		Workflow: Workflow{
			MaxConcurrentJobs: defaultMaxConcurrentJobs,
			JobPollInterval:   defaultJobPollInterval,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyRequestTimeout,
			JobCompleted:   true,
			JobFailed:      true,
			Transcripts:    true,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
			MaxSizeMB:     defaultLogMaxSizeMB,
			MaxBackups:    defaultLogMaxBackups,
		},
	}
}
