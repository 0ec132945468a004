package api

import (
	"time"

	"yt2pod/internal/episode"
	"yt2pod/internal/jobs"
	"yt2pod/internal/transcript"
)

// dateTimeFormat is used for RFC3339 timestamps in API payloads.
const dateTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// SubmitRequest is the JSON body accepted by POST /api/jobs.
type SubmitRequest struct {
	URL   string `json:"url"`
	Title string `json:"title,omitempty"`
}

// SubmitResponse acknowledges an accepted job.
type SubmitResponse struct {
	JobID  int64  `json:"job_id"`
	Status string `json:"status"`
}

// Job describes an ingestion job in a transport-friendly format.
type Job struct {
	ID           int64       `json:"id"`
	Kind         string      `json:"kind"`
	Source       string      `json:"source"`
	Title        string      `json:"title,omitempty"`
	Status       string      `json:"status"`
	Progress     JobProgress `json:"progress"`
	Message      string      `json:"message,omitempty"`
	Duplicate    bool        `json:"duplicate"`
	EpisodeGUIDs []string    `json:"episode_guids"`
	CreatedAt    string      `json:"created_at,omitempty"`
	UpdatedAt    string      `json:"updated_at,omitempty"`
}

// JobProgress captures stage progress for a job.
type JobProgress struct {
	Stage   string  `json:"stage"`
	Percent float64 `json:"percent"`
	Speed   string  `json:"speed,omitempty"`
	ETA     string  `json:"eta,omitempty"`
}

// JobListResponse wraps a collection of jobs.
type JobListResponse struct {
	Jobs []Job `json:"jobs"`
}

// Transcript describes the transcription state of one episode.
type Transcript struct {
	GUID          string `json:"guid"`
	Status        string `json:"status"`
	ExternalJobID string `json:"external_job_id,omitempty"`
	Error         string `json:"error,omitempty"`
	UpdatedAt     string `json:"updated_at,omitempty"`
}

// TriggerResponse reports whether a trigger started a new transcription.
type TriggerResponse struct {
	GUID    string `json:"guid"`
	Started bool   `json:"started"`
}

// TranscriptText carries a finished transcript.
type TranscriptText struct {
	GUID string `json:"guid"`
	Text string `json:"text"`
}

// Episode is a feed entry as listed by the API.
type Episode struct {
	GUID        string `json:"guid"`
	Title       string `json:"title"`
	SourceLink  string `json:"source_link,omitempty"`
	AudioURL    string `json:"audio_url"`
	Duration    string `json:"duration"`
	PublishedAt string `json:"published_at,omitempty"`
	Transcript  string `json:"transcript_status"`
}

// EpisodeListResponse wraps the feed's episodes, newest first.
type EpisodeListResponse struct {
	Episodes []Episode `json:"episodes"`
}

// ConfigResponse exposes the public podcast settings.
type ConfigResponse struct {
	Title         string `json:"title"`
	SiteURL       string `json:"site_url"`
	FeedURL       string `json:"feed_url"`
	AudioFormat   string `json:"audio_format"`
	Transcription bool   `json:"transcription"`
}

// FromJob converts a tracked job to its API form.
func FromJob(job *jobs.Job) Job {
	if job == nil {
		return Job{}
	}
	guids := job.EpisodeGUIDs
	if guids == nil {
		guids = []string{}
	}
	return Job{
		ID:     job.ID,
		Kind:   string(job.Kind),
		Source: job.Source,
		Title:  job.Title,
		Status: string(job.Status),
		Progress: JobProgress{
			Stage:   string(job.Progress.Stage),
			Percent: job.Progress.Percent,
			Speed:   job.Progress.Speed,
			ETA:     job.Progress.ETA,
		},
		Message:      job.Message,
		Duplicate:    job.Duplicate,
		EpisodeGUIDs: guids,
		CreatedAt:    formatTime(job.CreatedAt),
		UpdatedAt:    formatTime(job.UpdatedAt),
	}
}

// FromJobs converts a slice of jobs, preserving order.
func FromJobs(list []*jobs.Job) []Job {
	out := make([]Job, 0, len(list))
	for _, job := range list {
		out = append(out, FromJob(job))
	}
	return out
}

// FromRecord converts a transcript record.
func FromRecord(rec transcript.Record) Transcript {
	return Transcript{
		GUID:          rec.GUID,
		Status:        string(rec.Status),
		ExternalJobID: rec.ExternalJobID,
		Error:         rec.Error,
		UpdatedAt:     formatTime(rec.UpdatedAt),
	}
}

// FromEpisode converts a feed episode; status is its transcript state.
func FromEpisode(ep episode.Episode, status transcript.Status) Episode {
	if status == "" {
		status = transcript.StatusNone
	}
	return Episode{
		GUID:        ep.GUID,
		Title:       ep.Title,
		SourceLink:  ep.SourceLink,
		AudioURL:    ep.AudioURL,
		Duration:    ep.DurationFormatted,
		PublishedAt: formatTime(ep.PublishedAt),
		Transcript:  string(status),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
