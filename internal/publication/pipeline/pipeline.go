// Package pipeline publishes approved profiles by copying them into the
// public-read store, and serves the public listing.
package pipeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"prodir/internal/profile/approval"
	profilemodels "prodir/internal/profile/models"
	"prodir/internal/publication/models"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/retry"
	"prodir/pkg/platform/sentinel"
	"prodir/pkg/requestcontext"
)

// publishedScope binds public listing cursors to this listing.
const publishedScope = "published"

type ProfileStore interface {
	FindByID(ctx context.Context, id domain.ProfileID) (*profilemodels.Profile, error)
	CompareAndSetStatus(ctx context.Context, id domain.ProfileID, expected, next profilemodels.Status, now time.Time) (*profilemodels.Profile, error)
}

type SnapshotStore interface {
	Put(ctx context.Context, snap *models.Snapshot) error
	Get(ctx context.Context, id domain.ProfileID) (*models.Snapshot, error)
	List(ctx context.Context, after *pagination.Cursor, limit int) ([]*models.Snapshot, error)
}

// Result reports what a publish call did.
type Result struct {
	Snapshot *models.Snapshot
	// Changed is false when the profile was already published and its
	// snapshot present, so nothing was written.
	Changed bool
}

type Service struct {
	profiles  ProfileStore
	snapshots SnapshotStore
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

func New(profiles ProfileStore, snapshots SnapshotStore, opts ...Option) (*Service, error) {
	if profiles == nil {
		return nil, errors.New("profile store is required")
	}
	if snapshots == nil {
		return nil, errors.New("snapshot store is required")
	}
	s := &Service{profiles: profiles, snapshots: snapshots}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Publish copies a sentToSuperAdmin profile into the public store and marks
// it published. The snapshot is written before the status advances, so a
// call that fails between the two steps is completed by retrying it.
// Publishing an already published profile is a no-op, except that a
// missing snapshot is rewritten.
func (s *Service) Publish(ctx context.Context, id domain.ProfileID, role domain.Role) (*Result, error) {
	if !approval.Permits(approval.OpPublish, role) {
		return nil, dErrors.New(dErrors.CodeForbidden, "only super admins may publish")
	}
	p, err := retry.Read(ctx, func(ctx context.Context) (*profilemodels.Profile, error) {
		return s.profiles.FindByID(ctx, id)
	})
	if err != nil {
		return nil, sentinel.ToDomain(err, "profile")
	}

	now := requestcontext.Now(ctx)
	rule, _ := approval.RuleFor(approval.OpPublish)
	switch {
	case p.Status == rule.To:
		return s.ensureSnapshot(ctx, p, now)
	case rule.Accepts(p.Status):
	default:
		return nil, dErrors.New(dErrors.CodeConflict, "cannot publish a profile in status "+string(p.Status))
	}

	snap := models.FromProfile(p, now)
	if err := s.snapshots.Put(ctx, snap); err != nil {
		return nil, sentinel.ToDomain(err, "published profile")
	}
	_, err = s.profiles.CompareAndSetStatus(ctx, id, p.Status, rule.To, now)
	if errors.Is(err, sentinel.ErrConflict) {
		// A concurrent publish of the same profile counts as success.
		current, findErr := s.profiles.FindByID(ctx, id)
		if findErr == nil && current.Status == rule.To {
			return s.ensureSnapshot(ctx, current, now)
		}
	}
	if err != nil {
		return nil, sentinel.ToDomain(err, "profile")
	}
	s.logger.DebugContext(ctx, "profile published",
		"profile_id", id.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Result{Snapshot: snap, Changed: true}, nil
}

func (s *Service) ensureSnapshot(ctx context.Context, p *profilemodels.Profile, now time.Time) (*Result, error) {
	existing, err := s.snapshots.Get(ctx, p.ID)
	if err == nil {
		return &Result{Snapshot: existing}, nil
	}
	if !errors.Is(err, sentinel.ErrNotFound) {
		return nil, sentinel.ToDomain(err, "published profile")
	}
	snap := models.FromProfile(p, now)
	if err := s.snapshots.Put(ctx, snap); err != nil {
		return nil, sentinel.ToDomain(err, "published profile")
	}
	s.logger.InfoContext(ctx, "rewrote missing snapshot for published profile",
		"profile_id", p.ID.String(),
		"request_id", requestcontext.RequestID(ctx),
	)
	return &Result{Snapshot: snap, Changed: true}, nil
}

// Get returns the public copy of a profile.
func (s *Service) Get(ctx context.Context, id domain.ProfileID) (*models.Snapshot, error) {
	snap, err := retry.Read(ctx, func(ctx context.Context) (*models.Snapshot, error) {
		return s.snapshots.Get(ctx, id)
	})
	if err != nil {
		return nil, sentinel.ToDomain(err, "published profile")
	}
	return snap, nil
}

// List returns one page of published profiles, most recently published first.
func (s *Service) List(ctx context.Context, cursorToken string, limit int) (*pagination.Page[*models.Snapshot], error) {
	limit, err := pagination.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	after, err := pagination.Decode(cursorToken, publishedScope)
	if err != nil {
		return nil, err
	}
	rows, err := retry.Read(ctx, func(ctx context.Context) ([]*models.Snapshot, error) {
		return s.snapshots.List(ctx, after, limit+1)
	})
	if err != nil {
		return nil, sentinel.ToDomain(err, "published profile")
	}
	page := &pagination.Page[*models.Snapshot]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		last := page.Items[limit-1]
		page.NextCursor = pagination.Encode(pagination.Cursor{At: last.PublishedAt, ID: last.ID.String(), Scope: publishedScope})
	}
	if page.Items == nil {
		page.Items = []*models.Snapshot{}
	}
	return page, nil
}
