package repo

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"adaptrix/internal/domain"
	"adaptrix/internal/infra"
	"adaptrix/internal/sqlinline"
)

// JobRepositoryPG implements domain.JobRepository on the video_jobs table.
type JobRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewJobRepository creates a new job repository backed by PostgreSQL.
func NewJobRepository(sql infra.SQLExecutor) *JobRepositoryPG {
	return &JobRepositoryPG{sql: sql}
}

// Create inserts a processing job and fills in the generated id and timestamps.
func (r *JobRepositoryPG) Create(ctx context.Context, job *domain.Job) error {
	row := r.sql.QueryRow(ctx, sqlinline.QInsertVideoJob,
		job.OwnerID,
		job.Filename,
		job.SourcePath,
		job.SourceLanguage,
		job.TargetLanguage,
	)
	if err := row.Scan(&job.ID, &job.CreatedAt, &job.UpdatedAt); err != nil {
		return fmt.Errorf("insert video job: %w", err)
	}
	job.Status = domain.JobStatusProcessing
	return nil
}

// UpdateStatus moves a processing job to a terminal status. Jobs already in a
// terminal status are left untouched and ErrTerminalState is returned.
func (r *JobRepositoryPG) UpdateStatus(ctx context.Context, jobID string, u domain.StatusUpdate) error {
	if err := u.Validate(); err != nil {
		return err
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpdateVideoJobStatus, jobID, string(u.Status), u.ResultPath, u.ErrorMessage)
	var current *string
	var updated int64
	if err := row.Scan(&current, &updated); err != nil {
		return fmt.Errorf("update video job status: %w", err)
	}
	if current == nil {
		return domain.ErrNotFound
	}
	if updated == 0 {
		return fmt.Errorf("%w: %s", domain.ErrTerminalState, *current)
	}
	return nil
}

// GetByID fetches a job regardless of owner. Used by the polling loop.
func (r *JobRepositoryPG) GetByID(ctx context.Context, jobID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectVideoJob, jobID))
}

// GetForOwner fetches a job only when it belongs to ownerID.
func (r *JobRepositoryPG) GetForOwner(ctx context.Context, jobID, ownerID string) (*domain.Job, error) {
	return scanJob(r.sql.QueryRow(ctx, sqlinline.QSelectVideoJobForOwner, jobID, ownerID))
}

// ListByOwner returns the owner's jobs, newest first.
func (r *JobRepositoryPG) ListByOwner(ctx context.Context, ownerID string) ([]domain.Job, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListVideoJobsByOwner, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list video jobs: %w", err)
	}
	defer rows.Close()
	var jobs []domain.Job
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, *job)
	}
	return jobs, rows.Err()
}

// Delete removes the owner's job row.
func (r *JobRepositoryPG) Delete(ctx context.Context, jobID, ownerID string) error {
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteVideoJob, jobID, ownerID)
	if err != nil {
		return fmt.Errorf("delete video job: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetThumbnail records the storage key of a generated thumbnail.
func (r *JobRepositoryPG) SetThumbnail(ctx context.Context, jobID, path string) error {
	if _, err := r.sql.Exec(ctx, sqlinline.QSetVideoJobThumbnail, jobID, path); err != nil {
		return fmt.Errorf("set thumbnail: %w", err)
	}
	return nil
}

// PathReferenced reports whether any job row points at the storage key.
func (r *JobRepositoryPG) PathReferenced(ctx context.Context, path string) (bool, error) {
	var exists bool
	if err := r.sql.QueryRow(ctx, sqlinline.QVideoJobPathReferenced, path).Scan(&exists); err != nil {
		return false, fmt.Errorf("check path reference: %w", err)
	}
	return exists, nil
}

func scanJob(row pgx.Row) (*domain.Job, error) {
	var job domain.Job
	var status string
	if err := row.Scan(
		&job.ID,
		&job.OwnerID,
		&job.Filename,
		&job.SourcePath,
		&job.SourceLanguage,
		&job.TargetLanguage,
		&status,
		&job.ResultPath,
		&job.ErrorMessage,
		&job.ThumbnailPath,
		&job.CreatedAt,
		&job.UpdatedAt,
	); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("scan video job: %w", err)
	}
	job.Status = domain.JobStatus(status)
	return &job, nil
}

var _ domain.JobRepository = (*JobRepositoryPG)(nil)
