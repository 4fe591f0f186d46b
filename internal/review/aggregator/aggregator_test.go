package aggregator

//go:generate mockgen -source=aggregator.go -destination=mocks/mocks.go -package=mocks ReviewStore,ProfileStore,TxRunner

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	profilemodels "prodir/internal/profile/models"
	profilestore "prodir/internal/profile/store"
	"prodir/internal/review/aggregator/mocks"
	reviewstore "prodir/internal/review/store"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/requestcontext"
)

type AggregatorSuite struct {
	suite.Suite
	profiles *profilestore.InMemoryStore
	reviews  *reviewstore.InMemoryStore
	service  *Service
	ctx      context.Context
	now      time.Time
}

func TestAggregatorSuite(t *testing.T) {
	suite.Run(t, new(AggregatorSuite))
}

func (s *AggregatorSuite) SetupTest() {
	s.profiles = profilestore.NewInMemory()
	s.reviews = reviewstore.NewInMemory()
	svc, err := New(s.reviews, s.profiles, reviewstore.NewShardedTx(0),
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	s.Require().NoError(err)
	s.service = svc
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
}

func (s *AggregatorSuite) seedProfile() domain.ProfileID {
	p, err := profilemodels.NewProfile(domain.NewProfileID(), profilemodels.Fields{"fullName": "Grace"}, "", s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.profiles.Create(s.ctx, p))
	return p.ID
}

func (s *AggregatorSuite) stats(id domain.ProfileID) profilemodels.RatingStats {
	p, err := s.profiles.FindByID(s.ctx, id)
	s.Require().NoError(err)
	return p.Stats()
}

func (s *AggregatorSuite) TestNew() {
	_, err := New(nil, s.profiles, reviewstore.NewShardedTx(0))
	s.ErrorContains(err, "review store is required")
	_, err = New(s.reviews, nil, reviewstore.NewShardedTx(0))
	s.ErrorContains(err, "profile store is required")
	_, err = New(s.reviews, s.profiles, nil)
	s.ErrorContains(err, "tx runner is required")
}

func (s *AggregatorSuite) TestSubmit() {
	s.Run("returns the new aggregate", func() {
		id := s.seedProfile()
		_, stats, err := s.service.Submit(s.ctx, SubmitInput{ProfileID: id, Rating: 4})
		s.Require().NoError(err)
		s.Equal(profilemodels.RatingStats{AvgRating: 4, ReviewsCount: 1}, stats)

		_, stats, err = s.service.Submit(s.ctx, SubmitInput{ProfileID: id, Rating: 1, Comment: "meh", AuthorName: "Bo"})
		s.Require().NoError(err)
		s.Equal(2, stats.ReviewsCount)
		s.InDelta(2.5, stats.AvgRating, 1e-9)
	})

	s.Run("invalid ratings leave the aggregate and log unchanged", func() {
		id := s.seedProfile()
		_, _, err := s.service.Submit(s.ctx, SubmitInput{ProfileID: id, Rating: 3})
		s.Require().NoError(err)
		before := s.stats(id)

		for _, rating := range []float64{0, 6, 2.5} {
			_, _, err := s.service.Submit(s.ctx, SubmitInput{ProfileID: id, Rating: rating})
			s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument), "rating %v", rating)
		}
		s.Equal(before, s.stats(id))
		n, err := s.reviews.CountByProfile(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(1, n)
	})

	s.Run("unknown profile is not found", func() {
		_, _, err := s.service.Submit(s.ctx, SubmitInput{ProfileID: domain.NewProfileID(), Rating: 5})
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("author name defaults to Anonymous", func() {
		id := s.seedProfile()
		review, _, err := s.service.Submit(s.ctx, SubmitInput{ProfileID: id, Rating: 5, AuthorID: "u-1"})
		s.Require().NoError(err)
		s.Equal("Anonymous", review.AuthorName)
		s.Equal(domain.UserID("u-1"), review.AuthorID)
	})
}

func (s *AggregatorSuite) TestConcurrentSubmissions() {
	s.Run("no lost updates across many writers", func() {
		id := s.seedProfile()
		const n = 200
		var wg sync.WaitGroup
		for i := range n {
			wg.Add(1)
			go func(rating int) {
				defer wg.Done()
				_, _, err := s.service.Submit(s.ctx, SubmitInput{ProfileID: id, Rating: float64(rating)})
				s.NoError(err)
			}(i%5 + 1)
		}
		wg.Wait()

		stats := s.stats(id)
		s.Equal(n, stats.ReviewsCount)
		s.InDelta(3.0, stats.AvgRating, 1e-9)
		count, err := s.reviews.CountByProfile(s.ctx, id)
		s.Require().NoError(err)
		s.Equal(n, count)
	})

	s.Run("a five and a one racing give two reviews averaging three", func() {
		id := s.seedProfile()
		var wg sync.WaitGroup
		for _, rating := range []float64{5, 1} {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _, err := s.service.Submit(s.ctx, SubmitInput{ProfileID: id, Rating: rating})
				s.NoError(err)
			}()
		}
		wg.Wait()
		s.Equal(profilemodels.RatingStats{AvgRating: 3.0, ReviewsCount: 2}, s.stats(id))
	})
}

func (s *AggregatorSuite) TestList() {
	id := s.seedProfile()
	for i := range 12 {
		ctx := requestcontext.WithTime(s.ctx, s.now.Add(time.Duration(i)*time.Minute))
		_, _, err := s.service.Submit(ctx, SubmitInput{ProfileID: id, Rating: 5})
		s.Require().NoError(err)
	}
	// Same-instant reviews fall back to id order.
	for range 3 {
		_, _, err := s.service.Submit(s.ctx, SubmitInput{ProfileID: id, Rating: 2})
		s.Require().NoError(err)
	}

	s.Run("defaults to the first five, newest first", func() {
		page, err := s.service.List(s.ctx, id, 0, 0)
		s.Require().NoError(err)
		s.Equal(1, page.Page)
		s.Equal(DefaultPageSize, page.PageSize)
		s.Equal(15, page.Total)
		s.Len(page.Items, 5)
		s.Equal(s.now.Add(11*time.Minute), page.Items[0].CreatedAt)
	})

	s.Run("walks every review exactly once in order", func() {
		var all []string
		var prev *time.Time
		prevID := ""
		for p := 1; p <= 4; p++ {
			page, err := s.service.List(s.ctx, id, p, 4)
			s.Require().NoError(err)
			for _, r := range page.Items {
				if prev != nil {
					s.False(r.CreatedAt.After(*prev))
					if r.CreatedAt.Equal(*prev) {
						s.Less(r.ID.String(), prevID)
					}
				}
				at := r.CreatedAt
				prev, prevID = &at, r.ID.String()
				all = append(all, r.ID.String())
			}
		}
		s.Len(all, 15)
	})

	s.Run("page size is capped", func() {
		page, err := s.service.List(s.ctx, id, 1, 500)
		s.Require().NoError(err)
		s.Equal(MaxPageSize, page.PageSize)
	})

	s.Run("page past the addressable range is rejected", func() {
		_, err := s.service.List(s.ctx, id, math.MaxInt64/4+2, 4)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))

		page, err := s.service.List(s.ctx, id, math.MaxInt/4, 4)
		s.Require().NoError(err)
		s.Empty(page.Items)
		s.Equal(15, page.Total)
	})

	s.Run("unknown profile is not found", func() {
		_, err := s.service.List(s.ctx, domain.NewProfileID(), 1, 5)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})
}

type AggregatorFailureSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	reviews  *mocks.MockReviewStore
	profiles *mocks.MockProfileStore
	tx       *mocks.MockTxRunner
	service  *Service
}

func TestAggregatorFailureSuite(t *testing.T) {
	suite.Run(t, new(AggregatorFailureSuite))
}

func (s *AggregatorFailureSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.reviews = mocks.NewMockReviewStore(s.ctrl)
	s.profiles = mocks.NewMockProfileStore(s.ctrl)
	s.tx = mocks.NewMockTxRunner(s.ctrl)
	svc, err := New(s.reviews, s.profiles, s.tx)
	s.Require().NoError(err)
	s.service = svc
}

func (s *AggregatorFailureSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *AggregatorFailureSuite) TestAppendFailureIsUpstream() {
	id := domain.NewProfileID()
	s.profiles.EXPECT().FindByID(gomock.Any(), id).Return(&profilemodels.Profile{ID: id}, nil)
	s.tx.EXPECT().RunInTx(gomock.Any(), id, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.ProfileID, fn func(context.Context) error) error {
			return fn(ctx)
		})
	s.reviews.EXPECT().Append(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))
	// No ApplyRating expectation: a failed append must leave the aggregate alone.

	_, _, err := s.service.Submit(context.Background(), SubmitInput{ProfileID: id, Rating: 4})
	s.True(dErrors.HasCode(err, dErrors.CodeUpstream))
}

func (s *AggregatorFailureSuite) TestRatingAppliedAfterAppend() {
	id := domain.NewProfileID()
	s.profiles.EXPECT().FindByID(gomock.Any(), id).Return(&profilemodels.Profile{ID: id}, nil)
	s.tx.EXPECT().RunInTx(gomock.Any(), id, gomock.Any()).
		DoAndReturn(func(ctx context.Context, _ domain.ProfileID, fn func(context.Context) error) error {
			return fn(ctx)
		})
	gomock.InOrder(
		s.reviews.EXPECT().Append(gomock.Any(), gomock.Any()).Return(nil),
		s.profiles.EXPECT().ApplyRating(gomock.Any(), id, 4, gomock.Any()).
			Return(profilemodels.RatingStats{AvgRating: 4, ReviewsCount: 1}, nil),
	)

	_, stats, err := s.service.Submit(context.Background(), SubmitInput{ProfileID: id, Rating: 4})
	s.Require().NoError(err)
	s.Equal(1, stats.ReviewsCount)
}

func (s *AggregatorFailureSuite) TestInvalidRatingTouchesNothing() {
	_, _, err := s.service.Submit(context.Background(), SubmitInput{ProfileID: domain.NewProfileID(), Rating: 2.5})
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}
