package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"prodir/internal/profile/models"
	"prodir/pkg/domain"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/sentinel"
)

type InMemoryStoreSuite struct {
	suite.Suite
	store *InMemoryStore
	ctx   context.Context
	base  time.Time
}

func TestInMemoryStoreSuite(t *testing.T) {
	suite.Run(t, new(InMemoryStoreSuite))
}

func (s *InMemoryStoreSuite) SetupTest() {
	s.store = NewInMemory()
	s.ctx = context.Background()
	s.base = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
}

func (s *InMemoryStoreSuite) seed(region string, at time.Time) *models.Profile {
	p, err := models.NewProfile(domain.NewProfileID(), models.Fields{"fullName": "X", "region": region}, "", at)
	s.Require().NoError(err)
	s.Require().NoError(s.store.Create(s.ctx, p))
	return p
}

func (s *InMemoryStoreSuite) TestLookup() {
	s.Run("returns a copy, not the stored record", func() {
		p := s.seed("Asia", s.base)
		found, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		found.Fields["fullName"] = "mutated"

		again, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal("X", again.Fields["fullName"])
	})

	s.Run("unknown id is ErrNotFound", func() {
		_, err := s.store.FindByID(s.ctx, domain.NewProfileID())
		s.ErrorIs(err, sentinel.ErrNotFound)
	})

	s.Run("duplicate create is ErrConflict", func() {
		p := s.seed("Asia", s.base)
		s.ErrorIs(s.store.Create(s.ctx, p), sentinel.ErrConflict)
	})
}

func (s *InMemoryStoreSuite) TestCompareAndSetStatus() {
	s.Run("moves from the expected state", func() {
		p := s.seed("Asia", s.base)
		updated, err := s.store.CompareAndSetStatus(s.ctx, p.ID, models.StatusPending, models.StatusAdminApproved, s.base.Add(time.Minute))
		s.Require().NoError(err)
		s.Equal(models.StatusAdminApproved, updated.Status)
		s.Equal(s.base.Add(time.Minute), updated.UpdatedAt)
	})

	s.Run("stale expectation is ErrConflict and leaves the record", func() {
		p := s.seed("Asia", s.base)
		_, err := s.store.CompareAndSetStatus(s.ctx, p.ID, models.StatusSentToSuperAdmin, models.StatusPublished, s.base)
		s.ErrorIs(err, sentinel.ErrConflict)

		found, err := s.store.FindByID(s.ctx, p.ID)
		s.Require().NoError(err)
		s.Equal(models.StatusPending, found.Status)
	})

	s.Run("exactly one of many racing writers wins", func() {
		p := s.seed("Asia", s.base)
		var wins, conflicts atomic.Int32
		var wg sync.WaitGroup
		for range 32 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.store.CompareAndSetStatus(s.ctx, p.ID, models.StatusPending, models.StatusAdminApproved, s.base)
				if err == nil {
					wins.Add(1)
				} else if err == sentinel.ErrConflict {
					conflicts.Add(1)
				}
			}()
		}
		wg.Wait()
		s.Equal(int32(1), wins.Load())
		s.Equal(int32(31), conflicts.Load())
	})
}

func (s *InMemoryStoreSuite) TestExecute() {
	s.Run("validation failure leaves the record untouched", func() {
		p := s.seed("Asia", s.base)
		_, err := s.store.Execute(s.ctx, p.ID,
			func(*models.Profile) error { return sentinel.ErrConflict },
			func(p *models.Profile) { p.Status = models.StatusPublished })
		s.ErrorIs(err, sentinel.ErrConflict)

		found, _ := s.store.FindByID(s.ctx, p.ID)
		s.Equal(models.StatusPending, found.Status)
	})

	s.Run("mutation is persisted", func() {
		p := s.seed("Asia", s.base)
		updated, err := s.store.Execute(s.ctx, p.ID,
			func(*models.Profile) error { return nil },
			func(p *models.Profile) { p.ApplyPatch(models.Fields{"region": "Europe"}, s.base) })
		s.Require().NoError(err)
		s.Equal("Europe", updated.Region)

		found, _ := s.store.FindByID(s.ctx, p.ID)
		s.Equal("Europe", found.Region)
	})
}

func (s *InMemoryStoreSuite) TestApplyRatingConcurrently() {
	p := s.seed("Asia", s.base)
	const n = 100
	var wg sync.WaitGroup
	for i := range n {
		wg.Add(1)
		go func(rating int) {
			defer wg.Done()
			_, err := s.store.ApplyRating(s.ctx, p.ID, rating, s.base)
			s.NoError(err)
		}(i%5 + 1)
	}
	wg.Wait()

	found, err := s.store.FindByID(s.ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(n, found.ReviewsCount)
	s.Equal(300, found.RatingSum)
	s.InDelta(3.0, found.AvgRating, 1e-9)
}

func (s *InMemoryStoreSuite) TestListKeyset() {
	var asia []*models.Profile
	for i := range 25 {
		asia = append(asia, s.seed("Asia", s.base.Add(time.Duration(i)*time.Second)))
	}
	s.seed("Europe", s.base.Add(time.Hour))
	// Two rows sharing a timestamp exercise the id tie-break.
	asia = append(asia, s.seed("Asia", s.base), s.seed("Asia", s.base))

	filter := models.ListFilter{Region: "Asia"}
	seen := map[domain.ProfileID]bool{}
	var cursor *pagination.Cursor
	var prev *models.Profile
	for {
		page, err := s.store.List(s.ctx, filter, cursor, 10)
		s.Require().NoError(err)
		for _, p := range page {
			s.False(seen[p.ID], "profile returned twice")
			seen[p.ID] = true
			s.Equal("Asia", p.Region)
			if prev != nil {
				s.True(pagination.Less(prev.CreatedAt, prev.ID.String(), p.CreatedAt, p.ID.String()))
			}
			prev = p
		}
		if len(page) < 10 {
			break
		}
		last := page[len(page)-1]
		cursor = &pagination.Cursor{At: last.CreatedAt, ID: last.ID.String()}
	}
	s.Len(seen, len(asia))
}

func (s *InMemoryStoreSuite) TestDelete() {
	p := s.seed("Asia", s.base)
	s.Require().NoError(s.store.Delete(s.ctx, p.ID))
	_, err := s.store.FindByID(s.ctx, p.ID)
	s.ErrorIs(err, sentinel.ErrNotFound)
	s.ErrorIs(s.store.Delete(s.ctx, p.ID), sentinel.ErrNotFound)
}
