package repo

import (
	"context"
	"fmt"

	"adaptrix/internal/domain"
	"adaptrix/internal/infra"
	"adaptrix/internal/sqlinline"
)

// FeedbackRepositoryPG implements domain.FeedbackRepository.
type FeedbackRepositoryPG struct {
	sql infra.SQLExecutor
}

func NewFeedbackRepository(sql infra.SQLExecutor) *FeedbackRepositoryPG {
	return &FeedbackRepositoryPG{sql: sql}
}

// Upsert stores the rating, replacing any earlier rating by the same user.
func (r *FeedbackRepositoryPG) Upsert(ctx context.Context, fb *domain.Feedback) (*domain.Feedback, error) {
	if !domain.ValidRating(fb.Rating) {
		return nil, domain.ErrInvalidRating
	}
	row := r.sql.QueryRow(ctx, sqlinline.QUpsertVideoFeedback, fb.UserID, fb.VideoID, fb.Rating)
	var out domain.Feedback
	if err := row.Scan(&out.ID, &out.UserID, &out.VideoID, &out.Rating, &out.CreatedAt, &out.UpdatedAt); err != nil {
		return nil, fmt.Errorf("upsert feedback: %w", err)
	}
	return &out, nil
}

var _ domain.FeedbackRepository = (*FeedbackRepositoryPG)(nil)
