package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"adaptrix/internal/domain"
	"adaptrix/internal/sqlinline"
)

type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error {
	if r.scan == nil {
		return pgx.ErrNoRows
	}
	return r.scan(dest...)
}

type stubExecutor struct {
	queries []string
	args    [][]any
	row     stubRow
	tag     pgconn.CommandTag
	err     error
}

func (s *stubExecutor) Exec(_ context.Context, query string, args ...any) (pgconn.CommandTag, error) {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return s.tag, s.err
}

func (s *stubExecutor) QueryRow(_ context.Context, query string, args ...any) pgx.Row {
	s.queries = append(s.queries, query)
	s.args = append(s.args, args)
	return s.row
}

func (s *stubExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("not implemented")
}

func statusRow(current *string, updated int64) stubRow {
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(**string) = current
		*dest[1].(*int64) = updated
		return nil
	}}
}

func TestJobRepositoryCreate(t *testing.T) {
	created := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	exec := &stubExecutor{row: stubRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "9a708d58-8b8f-4e73-ba81-f4f6ee68f7bf"
		*dest[1].(*time.Time) = created
		*dest[2].(*time.Time) = created
		return nil
	}}}
	job := &domain.Job{OwnerID: "user-1", Filename: "ad.mp4", SourcePath: "user-1/x.mp4", TargetLanguage: "es"}
	if err := NewJobRepository(exec).Create(context.Background(), job); err != nil {
		t.Fatalf("Create() error: %v", err)
	}
	if job.ID != "9a708d58-8b8f-4e73-ba81-f4f6ee68f7bf" || job.Status != domain.JobStatusProcessing || !job.CreatedAt.Equal(created) {
		t.Fatalf("Create() produced %+v", job)
	}
	if exec.queries[0] != sqlinline.QInsertVideoJob {
		t.Fatalf("unexpected query %q", exec.queries[0])
	}
	if got := exec.args[0][4]; got != "es" {
		t.Fatalf("target language arg = %v, want es", got)
	}
}

func TestJobRepositoryUpdateStatus(t *testing.T) {
	processing := "processing"
	completed := "completed"
	tests := []struct {
		name    string
		row     stubRow
		update  domain.StatusUpdate
		wantErr error
		noQuery bool
	}{
		{
			name:   "applies transition",
			row:    statusRow(&processing, 1),
			update: domain.StatusUpdate{Status: domain.JobStatusCompleted, ResultPath: "out.mp4"},
		},
		{
			name:    "terminal row rejected",
			row:     statusRow(&completed, 0),
			update:  domain.StatusUpdate{Status: domain.JobStatusCancelled},
			wantErr: domain.ErrTerminalState,
		},
		{
			name:    "missing row",
			row:     statusRow(nil, 0),
			update:  domain.StatusUpdate{Status: domain.JobStatusCancelled},
			wantErr: domain.ErrNotFound,
		},
		{
			name:    "invalid update never reaches database",
			update:  domain.StatusUpdate{Status: domain.JobStatusCompleted},
			wantErr: domain.ErrMissingResult,
			noQuery: true,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			exec := &stubExecutor{row: tc.row}
			err := NewJobRepository(exec).UpdateStatus(context.Background(), "job-1", tc.update)
			if tc.wantErr == nil && err != nil {
				t.Fatalf("UpdateStatus() unexpected error: %v", err)
			}
			if tc.wantErr != nil && !errors.Is(err, tc.wantErr) {
				t.Fatalf("UpdateStatus() error = %v, want %v", err, tc.wantErr)
			}
			if tc.noQuery && len(exec.queries) != 0 {
				t.Fatalf("expected no query, got %d", len(exec.queries))
			}
		})
	}
}

func TestJobRepositoryGetByIDNotFound(t *testing.T) {
	exec := &stubExecutor{}
	if _, err := NewJobRepository(exec).GetByID(context.Background(), "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestJobRepositoryGetForOwnerScansNullableFields(t *testing.T) {
	result := "user-1/out.mp4"
	exec := &stubExecutor{row: stubRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "job-1"
		*dest[1].(*string) = "user-1"
		*dest[2].(*string) = "ad.mp4"
		*dest[3].(*string) = "user-1/src.mp4"
		*dest[4].(*string) = ""
		*dest[5].(*string) = "fr"
		*dest[6].(*string) = "completed"
		*dest[7].(**string) = &result
		*dest[8].(**string) = nil
		*dest[9].(**string) = nil
		return nil
	}}}
	job, err := NewJobRepository(exec).GetForOwner(context.Background(), "job-1", "user-1")
	if err != nil {
		t.Fatalf("GetForOwner() error: %v", err)
	}
	if job.Status != domain.JobStatusCompleted || job.ResultPath == nil || *job.ResultPath != result || job.ErrorMessage != nil {
		t.Fatalf("GetForOwner() = %+v", job)
	}
	if args := exec.args[0]; args[0] != "job-1" || args[1] != "user-1" {
		t.Fatalf("unexpected args %v", args)
	}
}

func TestJobRepositoryDelete(t *testing.T) {
	exec := &stubExecutor{tag: pgconn.NewCommandTag("DELETE 0")}
	if err := NewJobRepository(exec).Delete(context.Background(), "job-1", "user-1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete() error = %v, want ErrNotFound", err)
	}
	exec = &stubExecutor{tag: pgconn.NewCommandTag("DELETE 1")}
	if err := NewJobRepository(exec).Delete(context.Background(), "job-1", "user-1"); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
}

func TestFeedbackRepositoryRejectsRatingFromJobRepoSuite(t *testing.T) {
	exec := &stubExecutor{}
	_, err := NewFeedbackRepository(exec).Upsert(context.Background(), &domain.Feedback{UserID: "u", VideoID: "v", Rating: 4})
	if !errors.Is(err, domain.ErrInvalidRating) {
		t.Fatalf("Upsert() error = %v, want ErrInvalidRating", err)
	}
	if len(exec.queries) != 0 {
		t.Fatalf("expected no query for invalid rating")
	}
}
