package repo

import (
	"context"
	"errors"
	"testing"
	"time"

	"adaptrix/internal/domain"
	"adaptrix/internal/sqlinline"
)

func TestFeedbackRepositoryUpsert(t *testing.T) {
	now := time.Date(2025, 3, 2, 9, 30, 0, 0, time.UTC)
	exec := &stubExecutor{row: stubRow{scan: func(dest ...any) error {
		*dest[0].(*string) = "fb-1"
		*dest[1].(*string) = "user-1"
		*dest[2].(*string) = "job-1"
		*dest[3].(*int) = 3
		*dest[4].(*time.Time) = now
		*dest[5].(*time.Time) = now
		return nil
	}}}

	got, err := NewFeedbackRepository(exec).Upsert(context.Background(), &domain.Feedback{UserID: "user-1", VideoID: "job-1", Rating: 3})
	if err != nil {
		t.Fatalf("Upsert() error: %v", err)
	}
	if got.ID != "fb-1" || got.Rating != 3 || !got.UpdatedAt.Equal(now) {
		t.Fatalf("Upsert() = %+v", got)
	}
	if exec.queries[0] != sqlinline.QUpsertVideoFeedback {
		t.Fatalf("unexpected query %q", exec.queries[0])
	}
}

func TestFeedbackRepositoryRejectsRating(t *testing.T) {
	exec := &stubExecutor{}
	for _, rating := range []int{0, 4, -1} {
		_, err := NewFeedbackRepository(exec).Upsert(context.Background(), &domain.Feedback{UserID: "user-1", VideoID: "job-1", Rating: rating})
		if !errors.Is(err, domain.ErrInvalidRating) {
			t.Fatalf("rating %d: err = %v, want ErrInvalidRating", rating, err)
		}
	}
	if len(exec.queries) != 0 {
		t.Fatalf("invalid ratings must not reach the database, got %d queries", len(exec.queries))
	}
}
