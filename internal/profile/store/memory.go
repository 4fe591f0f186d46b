package store

import (
	"context"
	"hash/fnv"
	"sort"
	"sync"
	"time"

	"prodir/internal/profile/models"
	"prodir/pkg/domain"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/sentinel"
)

// numShards spreads profiles over independent locks so operations on
// different profiles do not contend.
const numShards = 64

type shard struct {
	mu       sync.RWMutex
	profiles map[domain.ProfileID]*models.Profile
}

// InMemoryStore keeps profiles in process. Records are cloned on the way in
// and out so callers never alias stored state.
type InMemoryStore struct {
	shards [numShards]*shard
}

func NewInMemory() *InMemoryStore {
	s := &InMemoryStore{}
	for i := range s.shards {
		s.shards[i] = &shard{profiles: make(map[domain.ProfileID]*models.Profile)}
	}
	return s
}

func (s *InMemoryStore) shardFor(id domain.ProfileID) *shard {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return s.shards[h.Sum32()%numShards]
}

func (s *InMemoryStore) Create(_ context.Context, p *models.Profile) error {
	stampCreated(p)
	sh := s.shardFor(p.ID)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, exists := sh.profiles[p.ID]; exists {
		return sentinel.ErrConflict
	}
	sh.profiles[p.ID] = p.Clone()
	return nil
}

func (s *InMemoryStore) FindByID(_ context.Context, id domain.ProfileID) (*models.Profile, error) {
	sh := s.shardFor(id)
	sh.mu.RLock()
	defer sh.mu.RUnlock()
	p, ok := sh.profiles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p.Clone(), nil
}

// CompareAndSetStatus moves the profile from expected to next. A record in
// any other state yields ErrConflict and is left unchanged.
func (s *InMemoryStore) CompareAndSetStatus(_ context.Context, id domain.ProfileID, expected, next models.Status, now time.Time) (*models.Profile, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	p, ok := sh.profiles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if p.Status != expected {
		return nil, sentinel.ErrConflict
	}
	p.Status = next
	p.UpdatedAt = now
	return p.Clone(), nil
}

// Execute runs validate against the current record and, if it passes,
// applies mutate and persists the result atomically. Validation errors are
// returned unchanged.
func (s *InMemoryStore) Execute(_ context.Context, id domain.ProfileID, validate func(*models.Profile) error, mutate func(*models.Profile)) (*models.Profile, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	p, ok := sh.profiles[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	if err := validate(p.Clone()); err != nil {
		return nil, err
	}
	updated := p.Clone()
	mutate(updated)
	sh.profiles[id] = updated
	return updated.Clone(), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.ProfileID) error {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.profiles[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(sh.profiles, id)
	return nil
}

// ApplyRating folds one rating into the running aggregate under the
// profile's lock.
func (s *InMemoryStore) ApplyRating(_ context.Context, id domain.ProfileID, rating int, now time.Time) (models.RatingStats, error) {
	sh := s.shardFor(id)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	p, ok := sh.profiles[id]
	if !ok {
		return models.RatingStats{}, sentinel.ErrNotFound
	}
	return p.ApplyRating(rating, now), nil
}

// List returns up to limit profiles matching filter that sort after the
// cursor in (createdAt desc, id desc) order.
func (s *InMemoryStore) List(_ context.Context, filter models.ListFilter, after *pagination.Cursor, limit int) ([]*models.Profile, error) {
	var out []*models.Profile
	for _, sh := range s.shards {
		sh.mu.RLock()
		for _, p := range sh.profiles {
			if filter.Matches(p) && after.Before(p.CreatedAt, p.ID.String()) {
				out = append(out, p.Clone())
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(out, func(i, j int) bool {
		return pagination.Less(out[i].CreatedAt, out[i].ID.String(), out[j].CreatedAt, out[j].ID.String())
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// stampCreated normalizes timestamps to the precision PostgreSQL keeps so
// cursors issued by either store compare the same way.
func stampCreated(p *models.Profile) {
	p.CreatedAt = p.CreatedAt.UTC().Truncate(time.Microsecond)
	p.UpdatedAt = p.UpdatedAt.UTC().Truncate(time.Microsecond)
}
