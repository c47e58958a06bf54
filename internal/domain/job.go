package domain

import (
	"strings"
	"time"
)

// JobStatus enumerates job lifecycle states.
type JobStatus string

const (
	JobStatusProcessing JobStatus = "processing"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusError      JobStatus = "error"
	JobStatusCancelled  JobStatus = "cancelled"
)

// Terminal reports whether no further transition is accepted from s.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusError, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is a known status.
func (s JobStatus) Valid() bool {
	return s == JobStatusProcessing || s.Terminal()
}

// CanTransition enforces processing -> {completed, error, cancelled}.
func CanTransition(from, to JobStatus) bool {
	return from == JobStatusProcessing && to.Terminal()
}

// Job tracks one uploaded video from storage upload to localized output.
type Job struct {
	ID             string
	OwnerID        string
	Filename       string
	SourcePath     string
	SourceLanguage string
	TargetLanguage string
	Status         JobStatus
	ResultPath     *string
	ErrorMessage   *string
	ThumbnailPath  *string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Title strips the extension from the original filename for display.
func (j *Job) Title() string {
	name := j.Filename
	if idx := strings.LastIndex(name, "."); idx > 0 {
		name = name[:idx]
	}
	return name
}

// StatusUpdate is the partial write applied when a job leaves processing.
type StatusUpdate struct {
	Status       JobStatus
	ResultPath   string
	ErrorMessage string
}

// Validate checks the field pairing rules for the target status.
func (u StatusUpdate) Validate() error {
	switch u.Status {
	case JobStatusCompleted:
		if strings.TrimSpace(u.ResultPath) == "" {
			return ErrMissingResult
		}
	case JobStatusError:
		if strings.TrimSpace(u.ErrorMessage) == "" {
			return ErrMissingErrorMessage
		}
	case JobStatusCancelled:
	default:
		return ErrInvalidTransition
	}
	return nil
}
