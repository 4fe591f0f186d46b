// Package workflow is the single surface the transport layer talks to. It
// reads the caller from the request context, delegates to the approval,
// review and publication services, and wraps every call with a span,
// metrics and an audit event for successful mutations.
package workflow

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"prodir/internal/audit"
	"prodir/internal/generation"
	"prodir/internal/platform/metrics"
	"prodir/internal/profile/approval"
	profilemodels "prodir/internal/profile/models"
	"prodir/internal/publication/pipeline"
	pubmodels "prodir/internal/publication/models"
	"prodir/internal/review/aggregator"
	reviewmodels "prodir/internal/review/models"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/platform/pagination"
	"prodir/pkg/requestcontext"
)

const tracerName = "prodir/internal/workflow"

// Service composes the workflow subsystems.
type Service struct {
	approval    *approval.Service
	reviews     *aggregator.Service
	publication *pipeline.Service
	generation  *generation.Service
	audit       *audit.Publisher
	metrics     *metrics.Metrics
	tracer      trace.Tracer
	logger      *slog.Logger
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Service) { s.metrics = m }
}

func WithAudit(p *audit.Publisher) Option {
	return func(s *Service) { s.audit = p }
}

func WithTracer(t trace.Tracer) Option {
	return func(s *Service) { s.tracer = t }
}

// WithGeneration enables draft generation. Without it Generate fails
// with an upstream error.
func WithGeneration(g *generation.Service) Option {
	return func(s *Service) { s.generation = g }
}

func New(approvals *approval.Service, reviews *aggregator.Service, publication *pipeline.Service, opts ...Option) (*Service, error) {
	if approvals == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "approval service is required")
	}
	if reviews == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "review service is required")
	}
	if publication == nil {
		return nil, dErrors.New(dErrors.CodeInternal, "publication service is required")
	}
	s := &Service{approval: approvals, reviews: reviews, publication: publication}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.tracer == nil {
		s.tracer = otel.Tracer(tracerName)
	}
	if s.audit == nil {
		s.audit = audit.NewPublisher(s.logger)
	}
	return s, nil
}

// begin opens a span for op and returns a finisher that records the
// outcome on the span and in metrics.
func (s *Service) begin(ctx context.Context, op string, attrs ...attribute.KeyValue) (context.Context, func(error)) {
	start := time.Now()
	role := requestcontext.Role(ctx)
	attrs = append(attrs,
		attribute.String("caller.role", string(role)),
		attribute.String("request.id", requestcontext.RequestID(ctx)),
	)
	ctx, span := s.tracer.Start(ctx, "workflow."+op, trace.WithAttributes(attrs...))
	return ctx, func(err error) {
		outcome := outcomeOf(err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, string(dErrors.CodeOf(err)))
			if outcome == metrics.OutcomeError {
				s.logger.ErrorContext(ctx, "workflow operation failed",
					"operation", op,
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
			}
		}
		span.SetAttributes(attribute.String("outcome", outcome))
		span.End()
		if s.metrics != nil {
			s.metrics.ObserveOperation(op, outcome, time.Since(start))
		}
	}
}

func outcomeOf(err error) string {
	if err == nil {
		return metrics.OutcomeOK
	}
	switch dErrors.CodeOf(err) {
	case dErrors.CodeForbidden, dErrors.CodeUnauthorized:
		return metrics.OutcomeForbidden
	case dErrors.CodeConflict:
		return metrics.OutcomeConflict
	case dErrors.CodeNotFound:
		return metrics.OutcomeNotFound
	case dErrors.CodeInvalidArgument:
		return metrics.OutcomeInvalid
	default:
		return metrics.OutcomeError
	}
}

func profileAttr(id domain.ProfileID) attribute.KeyValue {
	return attribute.String("profile.id", id.String())
}

func (s *Service) emit(ctx context.Context, action audit.Action, id domain.ProfileID, from, to string) {
	s.audit.Emit(ctx, audit.Event{
		Action:    action,
		ProfileID: id,
		Role:      requestcontext.Role(ctx),
		From:      from,
		To:        to,
	})
}

// GetProfile returns a draft.
func (s *Service) GetProfile(ctx context.Context, id domain.ProfileID) (p *profilemodels.Profile, err error) {
	ctx, end := s.begin(ctx, "get_profile", profileAttr(id))
	defer func() { end(err) }()
	return s.approval.Get(ctx, id)
}

// ListProfiles returns one keyset page of drafts.
func (s *Service) ListProfiles(ctx context.Context, filter profilemodels.ListFilter, cursor string, limit int) (page *pagination.Page[*profilemodels.Profile], err error) {
	ctx, end := s.begin(ctx, "list_profiles",
		attribute.String("filter.region", filter.Region),
		attribute.String("filter.category", filter.Category),
		attribute.String("filter.status", string(filter.Status)),
	)
	defer func() { end(err) }()
	return s.approval.List(ctx, filter, cursor, limit)
}

// Approve moves a pending draft to adminApproved.
func (s *Service) Approve(ctx context.Context, id domain.ProfileID) (p *profilemodels.Profile, err error) {
	return s.transition(ctx, "approve", approval.OpApprove, audit.ActionProfileApproved, id)
}

// SendToSuperAdmin escalates an approved draft.
func (s *Service) SendToSuperAdmin(ctx context.Context, id domain.ProfileID) (p *profilemodels.Profile, err error) {
	return s.transition(ctx, "send_to_superadmin", approval.OpSendToSuperAdmin, audit.ActionSentToSuperAdmin, id)
}

func (s *Service) transition(ctx context.Context, name string, op approval.Operation, action audit.Action, id domain.ProfileID) (p *profilemodels.Profile, err error) {
	ctx, end := s.begin(ctx, name, profileAttr(id))
	defer func() { end(err) }()

	p, err = s.approval.Transition(ctx, op, id, requestcontext.Role(ctx))
	if err != nil {
		return nil, err
	}
	rule, _ := approval.RuleFor(op)
	from := ""
	if len(rule.From) == 1 {
		from = string(rule.From[0])
	}
	s.emit(ctx, action, id, from, string(p.Status))
	return p, nil
}

// EditProfile applies an allow-listed patch, optionally resubmitting the
// draft for review.
func (s *Service) EditProfile(ctx context.Context, id domain.ProfileID, patch map[string]any, resubmit bool) (p *profilemodels.Profile, err error) {
	ctx, end := s.begin(ctx, "edit_profile", profileAttr(id), attribute.Bool("resubmit", resubmit))
	defer func() { end(err) }()

	p, err = s.approval.Edit(ctx, id, requestcontext.Role(ctx), patch, resubmit)
	if err != nil {
		return nil, err
	}
	action := audit.ActionProfileEdited
	if resubmit {
		action = audit.ActionProfileResubmitted
	}
	s.emit(ctx, action, id, "", string(p.Status))
	return p, nil
}

// Remove hard-deletes a draft and its public snapshot.
func (s *Service) Remove(ctx context.Context, id domain.ProfileID) (err error) {
	ctx, end := s.begin(ctx, "remove", profileAttr(id))
	defer func() { end(err) }()

	removed, err := s.approval.Remove(ctx, id, requestcontext.Role(ctx))
	if err != nil {
		return err
	}
	s.emit(ctx, audit.ActionProfileRemoved, id, string(removed.Status), "deleted")
	return nil
}

// Publish copies a draft to the public store.
func (s *Service) Publish(ctx context.Context, id domain.ProfileID) (res *pipeline.Result, err error) {
	ctx, end := s.begin(ctx, "publish", profileAttr(id))
	defer func() { end(err) }()

	res, err = s.publication.Publish(ctx, id, requestcontext.Role(ctx))
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.IncPublish(res.Changed)
	}
	if res.Changed {
		s.emit(ctx, audit.ActionProfilePublished, id, string(profilemodels.StatusSentToSuperAdmin), string(profilemodels.StatusPublished))
	}
	return res, nil
}

// GetPublished returns a public snapshot.
func (s *Service) GetPublished(ctx context.Context, id domain.ProfileID) (snap *pubmodels.Snapshot, err error) {
	ctx, end := s.begin(ctx, "get_published", profileAttr(id))
	defer func() { end(err) }()
	return s.publication.Get(ctx, id)
}

// ListPublished returns one page of public snapshots.
func (s *Service) ListPublished(ctx context.Context, cursor string, limit int) (page *pagination.Page[*pubmodels.Snapshot], err error) {
	ctx, end := s.begin(ctx, "list_published")
	defer func() { end(err) }()
	return s.publication.List(ctx, cursor, limit)
}

// ReviewResult is a stored review with the profile's updated aggregate.
type ReviewResult struct {
	Review *reviewmodels.Review      `json:"review"`
	Stats  profilemodels.RatingStats `json:"stats"`
}

// SubmitReview records a rating from the calling user. An empty authorName
// falls back to the name carried by the caller's token.
func (s *Service) SubmitReview(ctx context.Context, id domain.ProfileID, rating float64, comment, authorName string) (res *ReviewResult, err error) {
	ctx, end := s.begin(ctx, "submit_review", profileAttr(id))
	defer func() { end(err) }()

	if authorName == "" {
		authorName = requestcontext.CallerName(ctx)
	}
	review, stats, err := s.reviews.Submit(ctx, aggregator.SubmitInput{
		ProfileID:  id,
		Rating:     rating,
		Comment:    comment,
		AuthorID:   requestcontext.UserID(ctx),
		AuthorName: authorName,
	})
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		s.metrics.ReviewsSubmitted.Inc()
	}
	s.emit(ctx, audit.ActionReviewSubmitted, id, "", "")
	return &ReviewResult{Review: review, Stats: stats}, nil
}

// ListReviews returns one offset page of a profile's reviews.
func (s *Service) ListReviews(ctx context.Context, id domain.ProfileID, page, pageSize int) (out *reviewmodels.Page, err error) {
	ctx, end := s.begin(ctx, "list_reviews", profileAttr(id))
	defer func() { end(err) }()
	return s.reviews.List(ctx, id, page, pageSize)
}

// Generate creates pending drafts from a prompt.
func (s *Service) Generate(ctx context.Context, req generation.Request) (created []*profilemodels.Profile, err error) {
	ctx, end := s.begin(ctx, "generate", attribute.String("region", req.Region), attribute.String("category", req.Category))
	defer func() { end(err) }()

	if s.generation == nil {
		return nil, dErrors.New(dErrors.CodeUpstream, "profile generation is not configured")
	}
	created, err = s.generation.Generate(ctx, requestcontext.Role(ctx), req)
	for _, p := range created {
		s.emit(ctx, audit.ActionProfileCreated, p.ID, "", string(p.Status))
	}
	return created, err
}
