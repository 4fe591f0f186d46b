//go:build integration

package store_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"prodir/internal/profile/models"
	"prodir/internal/profile/store"
	"prodir/pkg/domain"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/sentinel"
	"prodir/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	ctx      context.Context
	base     time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.Pool)
	s.ctx = context.Background()
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(s.ctx, "reviews", "profiles"))
}

func (s *PostgresStoreSuite) seed(region string, at time.Time) *models.Profile {
	p, err := models.NewProfile(domain.NewProfileID(),
		models.Fields{"fullName": "X", "region": region, "skills": []string{"go", "sql"}}, "prompt", at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, p))
	return p
}

func (s *PostgresStoreSuite) TestRoundTrip() {
	p := s.seed("Asia", s.base)
	found, err := s.store.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(p, found)

	_, err = s.store.FindByID(s.ctx, domain.NewProfileID())
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *PostgresStoreSuite) TestCompareAndSetStatus() {
	p := s.seed("Asia", s.base)

	_, err := s.store.CompareAndSetStatus(s.ctx, domain.NewProfileID(), models.StatusPending, models.StatusAdminApproved, s.base)
	s.ErrorIs(err, sentinel.ErrNotFound)

	var wins, conflicts atomic.Int32
	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.store.CompareAndSetStatus(s.ctx, p.ID, models.StatusPending, models.StatusAdminApproved, s.base)
			switch {
			case err == nil:
				wins.Add(1)
			case err == sentinel.ErrConflict:
				conflicts.Add(1)
			}
		}()
	}
	wg.Wait()
	s.Equal(int32(1), wins.Load())
	s.Equal(int32(15), conflicts.Load())
}

func (s *PostgresStoreSuite) TestExecuteUnderRowLock() {
	p := s.seed("Asia", s.base)
	updated, err := s.store.Execute(s.ctx, p.ID,
		func(cur *models.Profile) error {
			if cur.Status != models.StatusPending {
				return sentinel.ErrConflict
			}
			return nil
		},
		func(cur *models.Profile) { cur.ApplyPatch(models.Fields{"region": "Europe"}, s.base.Add(time.Minute)) })
	s.Require().NoError(err)
	s.Equal("Europe", updated.Region)

	found, err := s.store.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal("Europe", found.Region)
	s.Equal([]string{"go", "sql"}, found.Fields["skills"])
}

func (s *PostgresStoreSuite) TestApplyRatingConcurrently() {
	p := s.seed("Asia", s.base)
	var wg sync.WaitGroup
	for _, rating := range []int{5, 1} {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			_, err := s.store.ApplyRating(s.ctx, p.ID, r, s.base)
			s.NoError(err)
		}(rating)
	}
	wg.Wait()

	found, err := s.store.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(2, found.ReviewsCount)
	s.InDelta(3.0, found.AvgRating, 1e-9)
}

func (s *PostgresStoreSuite) TestListKeyset() {
	for i := range 25 {
		s.seed("Asia", s.base.Add(time.Duration(i)*time.Second))
	}
	s.seed("Europe", s.base)

	filter := models.ListFilter{Region: "Asia"}
	seen := map[domain.ProfileID]bool{}
	var cursor *pagination.Cursor
	for pages := 0; pages < 10; pages++ {
		page, err := s.store.List(s.ctx, filter, cursor, 10)
		s.Require().NoError(err)
		for _, p := range page {
			s.False(seen[p.ID])
			seen[p.ID] = true
		}
		if len(page) < 10 {
			break
		}
		last := page[len(page)-1]
		cursor = &pagination.Cursor{At: last.CreatedAt, ID: last.ID.String()}
	}
	s.Len(seen, 25)
}

func (s *PostgresStoreSuite) TestDelete() {
	p := s.seed("Asia", s.base)
	s.Require().NoError(s.store.Delete(s.ctx, p.ID))
	s.ErrorIs(s.store.Delete(s.ctx, p.ID), sentinel.ErrNotFound)
}
