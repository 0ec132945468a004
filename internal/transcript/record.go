package transcript

import (
	"errors"
	"time"
)

// Status is the transcription state of one episode.
type Status string

const (
	StatusNone       Status = "none"
	StatusInProgress Status = "in_progress"
	StatusDone       Status = "done"
	StatusError      Status = "error"
)

// Record is the persisted transcription state keyed by episode GUID.
type Record struct {
	GUID          string    `json:"guid"`
	Status        Status    `json:"status"`
	ExternalJobID string    `json:"external_job_id,omitempty"`
	Error         string    `json:"error,omitempty"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// ErrExists is returned by Store.Create when the GUID already has a record.
var ErrExists = errors.New("transcript record exists")
