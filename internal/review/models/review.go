package models

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
)

const (
	MinRating         = 1
	MaxRating         = 5
	MaxCommentLength  = 2000
	DefaultAuthorName = "Anonymous"
)

// Review is one end-user rating of a profile. Reviews are append-only.
type Review struct {
	ID         domain.ReviewID  `json:"id"`
	ProfileID  domain.ProfileID `json:"profile_id"`
	Rating     int              `json:"rating"`
	Comment    string           `json:"comment,omitempty"`
	AuthorID   domain.UserID    `json:"author_id,omitempty"`
	AuthorName string           `json:"author_name"`
	CreatedAt  time.Time        `json:"created_at"`
}

// ParseRating accepts only whole numbers in [MinRating, MaxRating]. The
// input is a float because the wire type is a JSON number.
func ParseRating(v float64) (int, error) {
	if math.IsNaN(v) || v != math.Trunc(v) || v < MinRating || v > MaxRating {
		return 0, dErrors.New(dErrors.CodeInvalidArgument, "rating must be an integer between 1 and 5")
	}
	return int(v), nil
}

// NewReview validates and builds a review.
func NewReview(id domain.ReviewID, profileID domain.ProfileID, rating float64, comment string, authorID domain.UserID, authorName string, now time.Time) (*Review, error) {
	r, err := ParseRating(rating)
	if err != nil {
		return nil, err
	}
	comment = strings.TrimSpace(comment)
	if utf8.RuneCountInString(comment) > MaxCommentLength {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "comment must be at most 2000 characters")
	}
	authorName = strings.TrimSpace(authorName)
	if authorName == "" {
		authorName = DefaultAuthorName
	}
	return &Review{
		ID:         id,
		ProfileID:  profileID,
		Rating:     r,
		Comment:    comment,
		AuthorID:   authorID,
		AuthorName: authorName,
		CreatedAt:  now.UTC().Truncate(time.Microsecond),
	}, nil
}

// Page is one offset page of reviews plus the total for the profile.
type Page struct {
	Items    []*Review `json:"items"`
	Page     int       `json:"page"`
	PageSize int       `json:"page_size"`
	Total    int       `json:"total"`
}
