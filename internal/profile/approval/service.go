// Package approval implements the role-gated moderation state machine for
// profile drafts: approval, escalation, re-submission, edits and removal.
package approval

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"prodir/internal/profile/models"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/platform/retry"
	"prodir/pkg/platform/sentinel"
	"prodir/pkg/requestcontext"
)

// Store is the persistence port for profile drafts.
type Store interface {
	Create(ctx context.Context, p *models.Profile) error
	FindByID(ctx context.Context, id domain.ProfileID) (*models.Profile, error)
	CompareAndSetStatus(ctx context.Context, id domain.ProfileID, expected, next models.Status, now time.Time) (*models.Profile, error)
	Execute(ctx context.Context, id domain.ProfileID, validate func(*models.Profile) error, mutate func(*models.Profile)) (*models.Profile, error)
	Delete(ctx context.Context, id domain.ProfileID) error
	List(ctx context.Context, filter models.ListFilter, after *pagination.Cursor, limit int) ([]*models.Profile, error)
}

// SnapshotRemover drops the public copy of a removed profile.
type SnapshotRemover interface {
	Delete(ctx context.Context, id domain.ProfileID) error
}

// Service applies the transition table against the draft store.
type Service struct {
	store     Store
	snapshots SnapshotRemover
	logger    *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithSnapshotRemover lets Remove delete the published copy as well.
func WithSnapshotRemover(r SnapshotRemover) Option {
	return func(s *Service) {
		s.snapshots = r
	}
}

func New(store Store, opts ...Option) (*Service, error) {
	if store == nil {
		return nil, errors.New("profile store is required")
	}
	s := &Service{store: store}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s, nil
}

// Create stores a new pending draft.
func (s *Service) Create(ctx context.Context, p *models.Profile) error {
	if p.Status != models.StatusPending {
		return dErrors.New(dErrors.CodeInvalidArgument, "new profiles must be pending")
	}
	return sentinel.ToDomain(s.store.Create(ctx, p), "profile")
}

// Get returns the current draft.
func (s *Service) Get(ctx context.Context, id domain.ProfileID) (*models.Profile, error) {
	p, err := retry.Read(ctx, func(ctx context.Context) (*models.Profile, error) {
		return s.store.FindByID(ctx, id)
	})
	if err != nil {
		return nil, sentinel.ToDomain(err, "profile")
	}
	return p, nil
}

// Approve moves a pending draft to adminApproved.
func (s *Service) Approve(ctx context.Context, id domain.ProfileID, role domain.Role) (*models.Profile, error) {
	return s.Transition(ctx, OpApprove, id, role)
}

// SendToSuperAdmin escalates an admin-approved draft.
func (s *Service) SendToSuperAdmin(ctx context.Context, id domain.ProfileID, role domain.Role) (*models.Profile, error) {
	return s.Transition(ctx, OpSendToSuperAdmin, id, role)
}

// Transition runs a single-edge status change from the table as a
// compare-and-set. Permission is checked before the record is read, so a
// caller without the role learns nothing about existence.
func (s *Service) Transition(ctx context.Context, op Operation, id domain.ProfileID, role domain.Role) (*models.Profile, error) {
	rule, ok := RuleFor(op)
	if !ok || rule.To == "" || len(rule.From) != 1 {
		return nil, dErrors.New(dErrors.CodeInternal, "operation is not a single-edge transition")
	}
	if !Permits(op, role) {
		return nil, dErrors.New(dErrors.CodeForbidden, "role "+string(role)+" may not "+string(op))
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !rule.Accepts(current.Status) {
		return nil, dErrors.New(dErrors.CodeConflict, "cannot "+string(op)+" a profile in status "+string(current.Status))
	}
	updated, err := s.store.CompareAndSetStatus(ctx, id, rule.From[0], rule.To, requestcontext.Now(ctx))
	if err != nil {
		return nil, sentinel.ToDomain(err, "profile")
	}
	s.logger.DebugContext(ctx, "profile status changed",
		"profile_id", id.String(),
		"operation", string(op),
		"from", string(current.Status),
		"to", string(updated.Status),
		"request_id", requestcontext.RequestID(ctx),
	)
	return updated, nil
}

// Edit merges an allow-listed patch into the draft. Status is kept unless
// resubmit is set, in which case the draft goes back to pending; resubmitting
// a pending draft only applies the patch.
func (s *Service) Edit(ctx context.Context, id domain.ProfileID, role domain.Role, raw map[string]any, resubmit bool) (*models.Profile, error) {
	op := OpEdit
	if resubmit {
		op = OpResubmit
	}
	if !Permits(op, role) {
		return nil, dErrors.New(dErrors.CodeForbidden, "role "+string(role)+" may not "+string(op))
	}
	patch, err := models.NormalizePatch(raw)
	if err != nil {
		return nil, err
	}
	if len(patch) == 0 && !resubmit {
		return s.Get(ctx, id)
	}
	now := requestcontext.Now(ctx)
	resubmitRule, _ := RuleFor(OpResubmit)
	updated, err := s.store.Execute(ctx, id,
		func(current *models.Profile) error {
			if resubmit && current.Status != models.StatusPending && !resubmitRule.Accepts(current.Status) {
				return dErrors.New(dErrors.CodeConflict, "cannot resubmit a profile in status "+string(current.Status))
			}
			return nil
		},
		func(current *models.Profile) {
			current.ApplyPatch(patch, now)
			if resubmit {
				current.Status = resubmitRule.To
			}
		},
	)
	if err != nil {
		return nil, sentinel.ToDomain(err, "profile")
	}
	return updated, nil
}

// Remove hard-deletes the draft and its published snapshot. Only super
// admins may remove, whatever the status.
func (s *Service) Remove(ctx context.Context, id domain.ProfileID, role domain.Role) (*models.Profile, error) {
	if !Permits(OpRemove, role) {
		return nil, dErrors.New(dErrors.CodeForbidden, "role "+string(role)+" may not remove profiles")
	}
	current, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	// Snapshot first: a failure here leaves the draft in place for a retry.
	if s.snapshots != nil {
		if err := s.snapshots.Delete(ctx, id); err != nil && !errors.Is(err, sentinel.ErrNotFound) {
			return nil, sentinel.ToDomain(err, "published profile")
		}
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return nil, sentinel.ToDomain(err, "profile")
	}
	return current, nil
}

// List returns one keyset page of drafts matching filter. The cursor must
// have been issued for the same filter.
func (s *Service) List(ctx context.Context, filter models.ListFilter, cursorToken string, limit int) (*pagination.Page[*models.Profile], error) {
	if filter.Status != "" {
		st, err := models.ParseStatus(string(filter.Status))
		if err != nil || st == models.StatusDeleted {
			return nil, dErrors.New(dErrors.CodeInvalidArgument, "unknown status filter: "+string(filter.Status))
		}
	}
	limit, err := pagination.NormalizeLimit(limit)
	if err != nil {
		return nil, err
	}
	scope := filter.Fingerprint()
	after, err := pagination.Decode(cursorToken, scope)
	if err != nil {
		return nil, err
	}
	rows, err := retry.Read(ctx, func(ctx context.Context) ([]*models.Profile, error) {
		return s.store.List(ctx, filter, after, limit+1)
	})
	if err != nil {
		return nil, sentinel.ToDomain(err, "profile")
	}
	page := &pagination.Page[*models.Profile]{Items: rows}
	if len(rows) > limit {
		page.Items = rows[:limit]
		last := page.Items[limit-1]
		page.NextCursor = pagination.Encode(pagination.Cursor{At: last.CreatedAt, ID: last.ID.String(), Scope: scope})
	}
	if page.Items == nil {
		page.Items = []*models.Profile{}
	}
	return page, nil
}
