package jobs

import (
	"errors"
	"time"
)

// Status represents the lifecycle of an ingestion job.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusError      Status = "error"
)

// Terminal reports whether no further transitions are allowed.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusError
}

// Kind identifies how the source media reaches the pipeline.
type Kind string

const (
	KindURL    Kind = "url"
	KindUpload Kind = "upload"
)

// Stage names observed, in order, during one pipeline run.
type Stage string

const (
	StageStarting    Stage = "starting"
	StageDownloading Stage = "downloading"
	StageUploading   Stage = "uploading"
	StageConverting  Stage = "converting"
	StageSplitting   Stage = "splitting"
	StageFeedUpdate  Stage = "feed-update"
	StagePublishing  Stage = "publishing"
	StageCompleted   Stage = "completed"
)

// Messages recorded for outcomes that callers match on.
const (
	MessageDuplicate          = "Already in feed"
	MessagePublishFailed      = "publish failed (saved locally)"
	MessageInterruptedRestart = "interrupted by restart"
)

var (
	// ErrInvalidTransition is returned when a terminal job is mutated.
	ErrInvalidTransition = errors.New("invalid job transition")
	// ErrJobNotFound is returned when a job id does not exist.
	ErrJobNotFound = errors.New("job not found")
)

// Progress captures the latest stage and transfer figures for a job.
type Progress struct {
	Stage   Stage   `json:"stage"`
	Percent float64 `json:"percent"`
	Speed   string  `json:"speed,omitempty"`
	ETA     string  `json:"eta,omitempty"`
}

// Job is the tracked lifecycle of one ingestion request.
type Job struct {
	ID            int64     `json:"id"`
	Kind          Kind      `json:"kind"`
	Source        string    `json:"source"`
	Title         string    `json:"title,omitempty"`
	Status        Status    `json:"status"`
	Message       string    `json:"message,omitempty"`
	Progress      Progress  `json:"progress"`
	Duplicate     bool      `json:"duplicate"`
	EpisodeGUIDs  []string  `json:"episode_guids,omitempty"`
	CorrelationID string    `json:"correlation_id,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Request describes an accepted ingestion request.
type Request struct {
	Kind   Kind
	Source string
	Title  string
}

// EventStatus classifies a progress event from a collaborator.
type EventStatus string

const (
	EventDownloading EventStatus = "downloading"
	EventFinished    EventStatus = "finished"
	EventConverting  EventStatus = "converting"
)

// ProgressEvent is emitted by acquisition and transcoding collaborators.
type ProgressEvent struct {
	Status     EventStatus
	Percent    float64
	Speed      string
	ETA        string
	Downloaded string
	Total      string
}
