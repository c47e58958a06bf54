package domain

import "context"

// JobRepository defines persistence for video jobs.
type JobRepository interface {
	Create(ctx context.Context, job *Job) error
	// UpdateStatus applies u only while the job is still processing and
	// returns ErrTerminalState otherwise.
	UpdateStatus(ctx context.Context, jobID string, u StatusUpdate) error
	GetByID(ctx context.Context, jobID string) (*Job, error)
	GetForOwner(ctx context.Context, jobID, ownerID string) (*Job, error)
	ListByOwner(ctx context.Context, ownerID string) ([]Job, error)
	Delete(ctx context.Context, jobID, ownerID string) error
	SetThumbnail(ctx context.Context, jobID, path string) error
	PathReferenced(ctx context.Context, path string) (bool, error)
}

// FeedbackRepository handles rating persistence.
type FeedbackRepository interface {
	Upsert(ctx context.Context, fb *Feedback) (*Feedback, error)
}
