package domain

import "time"

// Feedback is a user's rating of a localized video. One row per (user, video).
type Feedback struct {
	ID        string
	UserID    string
	VideoID   string
	Rating    int
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ValidRating reports whether r is within the accepted 1..3 scale.
func ValidRating(r int) bool {
	return r >= 1 && r <= 3
}
