package store

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"prodir/internal/review/models"
	"prodir/pkg/domain"
	"prodir/pkg/platform/sentinel"
)

type InMemoryReviewStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	base  time.Time
}

func TestInMemoryReviewStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryReviewStoreSuite))
}

func (s *InMemoryReviewStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.base = time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
}

func (s *InMemoryReviewStoreSuite) add(profileID domain.ProfileID, at time.Time) *models.Review {
	r, err := models.NewReview(domain.NewReviewID(), profileID, 3, "", "", "", at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Append(s.ctx, r))
	return r
}

func (s *InMemoryReviewStoreSuite) TestOrderingAndPaging() {
	pid := domain.NewProfileID()
	other := domain.NewProfileID()
	// Inserted out of order on purpose.
	for _, m := range []int{3, 1, 4, 0, 2} {
		s.add(pid, s.base.Add(time.Duration(m)*time.Minute))
	}
	s.add(other, s.base)

	page, err := s.store.ListByProfile(s.ctx, pid, 0, 3)
	s.Require().NoError(err)
	s.Require().Len(page, 3)
	s.Equal(s.base.Add(4*time.Minute), page[0].CreatedAt)
	s.Equal(s.base.Add(2*time.Minute), page[2].CreatedAt)

	rest, err := s.store.ListByProfile(s.ctx, pid, 3, 3)
	s.Require().NoError(err)
	s.Len(rest, 2)

	empty, err := s.store.ListByProfile(s.ctx, pid, 10, 3)
	s.Require().NoError(err)
	s.Empty(empty)

	clamped, err := s.store.ListByProfile(s.ctx, pid, -8, 2)
	s.Require().NoError(err)
	s.Len(clamped, 2)

	tail, err := s.store.ListByProfile(s.ctx, pid, 4, math.MaxInt)
	s.Require().NoError(err)
	s.Len(tail, 1)

	n, err := s.store.CountByProfile(s.ctx, pid)
	s.Require().NoError(err)
	s.Equal(5, n)
}

func (s *InMemoryReviewStoreSuite) TestTieBreakByID() {
	pid := domain.NewProfileID()
	for range 4 {
		s.add(pid, s.base)
	}
	page, err := s.store.ListByProfile(s.ctx, pid, 0, 4)
	s.Require().NoError(err)
	for i := 1; i < len(page); i++ {
		s.Greater(page[i-1].ID.String(), page[i].ID.String())
	}
}

func (s *InMemoryReviewStoreSuite) TestDuplicateID() {
	r := s.add(domain.NewProfileID(), s.base)
	s.ErrorIs(s.store.Append(s.ctx, r), sentinel.ErrConflict)
}
