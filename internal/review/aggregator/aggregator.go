// Package aggregator accepts end-user reviews and keeps each profile's
// rating aggregate consistent with the reviews stored for it.
package aggregator

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"time"

	profilemodels "prodir/internal/profile/models"
	"prodir/internal/review/models"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/platform/retry"
	"prodir/pkg/platform/sentinel"
	"prodir/pkg/requestcontext"
)

const (
	DefaultPageSize = 5
	MaxPageSize     = 50
)

// ReviewStore is the append-only review log.
type ReviewStore interface {
	Append(ctx context.Context, r *models.Review) error
	ListByProfile(ctx context.Context, profileID domain.ProfileID, offset, limit int) ([]*models.Review, error)
	CountByProfile(ctx context.Context, profileID domain.ProfileID) (int, error)
}

// ProfileStore is the slice of the draft store the aggregator writes to.
type ProfileStore interface {
	FindByID(ctx context.Context, id domain.ProfileID) (*profilemodels.Profile, error)
	ApplyRating(ctx context.Context, id domain.ProfileID, rating int, now time.Time) (profilemodels.RatingStats, error)
}

// TxRunner makes the review append and the aggregate update one unit,
// serialized per profile.
type TxRunner interface {
	RunInTx(ctx context.Context, profileID domain.ProfileID, fn func(ctx context.Context) error) error
}

type Service struct {
	reviews  ReviewStore
	profiles ProfileStore
	tx       TxRunner
	logger   *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(reviews ReviewStore, profiles ProfileStore, tx TxRunner, opts ...Option) (*Service, error) {
	if reviews == nil {
		return nil, errors.New("review store is required")
	}
	if profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if tx == nil {
		return nil, errors.New("tx runner is required")
	}
	s := &Service{reviews: reviews, profiles: profiles, tx: tx}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// SubmitInput carries one review as received.
type SubmitInput struct {
	ProfileID  domain.ProfileID
	Rating     float64
	Comment    string
	AuthorID   domain.UserID
	AuthorName string
}

// Submit records a review and folds its rating into the profile aggregate.
// Validation happens before any write, so a rejected review leaves the
// aggregate untouched.
func (s *Service) Submit(ctx context.Context, in SubmitInput) (*models.Review, profilemodels.RatingStats, error) {
	now := requestcontext.Now(ctx)
	review, err := models.NewReview(domain.NewReviewID(), in.ProfileID, in.Rating, in.Comment, in.AuthorID, in.AuthorName, now)
	if err != nil {
		return nil, profilemodels.RatingStats{}, err
	}
	if _, err := s.findProfile(ctx, in.ProfileID); err != nil {
		return nil, profilemodels.RatingStats{}, err
	}

	var stats profilemodels.RatingStats
	err = s.tx.RunInTx(ctx, in.ProfileID, func(ctx context.Context) error {
		// The aggregate never counts a review that was not appended.
		if err := s.reviews.Append(ctx, review); err != nil {
			return err
		}
		var err error
		stats, err = s.profiles.ApplyRating(ctx, in.ProfileID, review.Rating, now)
		return err
	})
	if err != nil {
		return nil, profilemodels.RatingStats{}, sentinel.ToDomain(err, "profile")
	}
	s.logger.DebugContext(ctx, "review submitted",
		"profile_id", in.ProfileID.String(),
		"review_id", review.ID.String(),
		"reviews_count", stats.ReviewsCount,
		"request_id", requestcontext.RequestID(ctx),
	)
	return review, stats, nil
}

// List returns one page of a profile's reviews, newest first. page and
// pageSize of 0 take the defaults; pageSize is capped at MaxPageSize.
func (s *Service) List(ctx context.Context, profileID domain.ProfileID, page, pageSize int) (*models.Page, error) {
	if page < 0 || pageSize < 0 {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "page and page_size must be positive")
	}
	if page == 0 {
		page = 1
	}
	if pageSize == 0 {
		pageSize = DefaultPageSize
	}
	pageSize = min(pageSize, MaxPageSize)
	if page > math.MaxInt/pageSize {
		return nil, dErrors.New(dErrors.CodeInvalidArgument, "page is out of range")
	}

	if _, err := s.findProfile(ctx, profileID); err != nil {
		return nil, err
	}
	items, err := retry.Read(ctx, func(ctx context.Context) ([]*models.Review, error) {
		return s.reviews.ListByProfile(ctx, profileID, (page-1)*pageSize, pageSize)
	})
	if err != nil {
		return nil, sentinel.ToDomain(err, "review")
	}
	total, err := retry.Read(ctx, func(ctx context.Context) (int, error) {
		return s.reviews.CountByProfile(ctx, profileID)
	})
	if err != nil {
		return nil, sentinel.ToDomain(err, "review")
	}
	return &models.Page{Items: items, Page: page, PageSize: pageSize, Total: total}, nil
}

func (s *Service) findProfile(ctx context.Context, id domain.ProfileID) (*profilemodels.Profile, error) {
	p, err := retry.Read(ctx, func(ctx context.Context) (*profilemodels.Profile, error) {
		return s.profiles.FindByID(ctx, id)
	})
	if err != nil {
		return nil, sentinel.ToDomain(err, "profile")
	}
	return p, nil
}
