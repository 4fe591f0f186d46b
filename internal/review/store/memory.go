package store

import (
	"context"
	"sort"
	"sync"

	"prodir/internal/review/models"
	"prodir/pkg/domain"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/sentinel"
)

// InMemoryStore keeps each profile's reviews sorted newest first.
type InMemoryStore struct {
	mu        sync.RWMutex
	byProfile map[domain.ProfileID][]*models.Review
	ids       map[domain.ReviewID]struct{}
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{
		byProfile: make(map[domain.ProfileID][]*models.Review),
		ids:       make(map[domain.ReviewID]struct{}),
	}
}

func (s *InMemoryStore) Append(_ context.Context, r *models.Review) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[r.ID]; dup {
		return sentinel.ErrConflict
	}
	list := s.byProfile[r.ProfileID]
	cp := *r
	i := sort.Search(len(list), func(i int) bool {
		return pagination.Less(cp.CreatedAt, cp.ID.String(), list[i].CreatedAt, list[i].ID.String())
	})
	list = append(list, nil)
	copy(list[i+1:], list[i:])
	list[i] = &cp
	s.byProfile[r.ProfileID] = list
	s.ids[r.ID] = struct{}{}
	return nil
}

func (s *InMemoryStore) ListByProfile(_ context.Context, profileID domain.ProfileID, offset, limit int) ([]*models.Review, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	list := s.byProfile[profileID]
	offset = max(offset, 0)
	if offset >= len(list) || limit <= 0 {
		return []*models.Review{}, nil
	}
	end := offset + min(limit, len(list)-offset)
	out := make([]*models.Review, 0, end-offset)
	for _, r := range list[offset:end] {
		cp := *r
		out = append(out, &cp)
	}
	return out, nil
}

func (s *InMemoryStore) CountByProfile(_ context.Context, profileID domain.ProfileID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byProfile[profileID]), nil
}
