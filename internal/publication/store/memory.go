package store

import (
	"context"
	"sort"
	"sync"

	"prodir/internal/publication/models"
	"prodir/pkg/domain"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/sentinel"
)

// InMemoryStore holds snapshots keyed by profile id.
type InMemoryStore struct {
	mu        sync.RWMutex
	snapshots map[domain.ProfileID]*models.Snapshot
}

func NewInMemory() *InMemoryStore {
	return &InMemoryStore{snapshots: make(map[domain.ProfileID]*models.Snapshot)}
}

// Put overwrites the snapshot for its profile.
func (s *InMemoryStore) Put(_ context.Context, snap *models.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *snap
	cp.Fields = snap.Fields.Clone()
	s.snapshots[snap.ID] = &cp
	return nil
}

func (s *InMemoryStore) Get(_ context.Context, id domain.ProfileID) (*models.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[id]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *snap
	cp.Fields = snap.Fields.Clone()
	return &cp, nil
}

func (s *InMemoryStore) Delete(_ context.Context, id domain.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.snapshots[id]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.snapshots, id)
	return nil
}

// List returns up to limit snapshots after the cursor in
// (publishedAt desc, id desc) order.
func (s *InMemoryStore) List(_ context.Context, after *pagination.Cursor, limit int) ([]*models.Snapshot, error) {
	s.mu.RLock()
	out := make([]*models.Snapshot, 0, len(s.snapshots))
	for _, snap := range s.snapshots {
		if after.Before(snap.PublishedAt, snap.ID.String()) {
			cp := *snap
			cp.Fields = snap.Fields.Clone()
			out = append(out, &cp)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		return pagination.Less(out[i].PublishedAt, out[i].ID.String(), out[j].PublishedAt, out[j].ID.String())
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
