package workflow_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/suite"

	"prodir/internal/audit"
	"prodir/internal/generation"
	"prodir/internal/platform/metrics"
	"prodir/internal/profile/models"
	"prodir/internal/workflow"
	"prodir/pkg/domain"
	dErrors "prodir/pkg/domain-errors"
	"prodir/pkg/requestcontext"
)

type fixedGenerator struct {
	names []string
}

func (g fixedGenerator) Generate(context.Context, string) ([]generation.Candidate, error) {
	out := make([]generation.Candidate, 0, len(g.names))
	for _, n := range g.names {
		out = append(out, generation.Candidate{Country: "Japan", Fields: map[string]any{"fullName": n}})
	}
	return out, nil
}

type WorkflowSuite struct {
	suite.Suite
	svc     *workflow.Service
	sink    *audit.MemorySink
	metrics *metrics.Metrics
	now     time.Time
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s.sink = audit.NewMemorySink()
	s.metrics = metrics.New(prometheus.NewRegistry())
	svc, err := workflow.Build(workflow.InMemoryStores(), fixedGenerator{names: []string{"Sato Yuki", "Kim Min", "Tran Anh"}}, logger,
		workflow.WithAudit(audit.NewPublisher(logger, s.sink)),
		workflow.WithMetrics(s.metrics),
	)
	s.Require().NoError(err)
	s.svc = svc
	s.now = time.Date(2026, 6, 1, 8, 0, 0, 0, time.UTC)
}

func (s *WorkflowSuite) as(userID string, role domain.Role) context.Context {
	ctx := requestcontext.WithTime(context.Background(), s.now)
	ctx = requestcontext.WithRequestID(ctx, "req-"+userID)
	return requestcontext.WithCaller(ctx, domain.UserID(userID), role)
}

func (s *WorkflowSuite) generate(region string) []*models.Profile {
	created, err := s.svc.Generate(s.as("admin-1", domain.RoleAdmin), generation.Request{Prompt: "engineers", Region: region})
	s.Require().NoError(err)
	s.Require().Len(created, 3)
	return created
}

func (s *WorkflowSuite) actions(id domain.ProfileID) []audit.Action {
	var out []audit.Action
	for _, e := range s.sink.ByProfile(id) {
		out = append(out, e.Action)
	}
	return out
}

func (s *WorkflowSuite) TestEscalationToPublication() {
	p := s.generate("Asia")[0]
	admin := s.as("admin-1", domain.RoleAdmin)
	director := s.as("director-1", domain.RoleDirectorAdmin)
	super := s.as("super-1", domain.RoleSuperAdmin)

	approved, err := s.svc.Approve(admin, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusAdminApproved, approved.Status)

	sent, err := s.svc.SendToSuperAdmin(director, p.ID)
	s.Require().NoError(err)
	s.Equal(models.StatusSentToSuperAdmin, sent.Status)

	_, err = s.svc.Publish(director, p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	res, err := s.svc.Publish(super, p.ID)
	s.Require().NoError(err)
	s.True(res.Changed)

	again, err := s.svc.Publish(super, p.ID)
	s.Require().NoError(err)
	s.False(again.Changed)
	s.Equal(res.Snapshot.PublishedAt, again.Snapshot.PublishedAt)

	snap, err := s.svc.GetPublished(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Equal("Sato Yuki", snap.Fields["fullName"])

	s.Equal([]audit.Action{
		audit.ActionProfileCreated,
		audit.ActionProfileApproved,
		audit.ActionSentToSuperAdmin,
		audit.ActionProfilePublished,
	}, s.actions(p.ID))

	events := s.sink.ByProfile(p.ID)
	s.Equal(domain.UserID("admin-1"), events[1].ActorID)
	s.Equal("pending", events[1].From)
	s.Equal("adminApproved", events[1].To)
	s.Equal("req-admin-1", events[1].RequestID)

	s.Equal(1.0, testutil.ToFloat64(s.metrics.Operations.WithLabelValues("publish", metrics.OutcomeForbidden)))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.Operations.WithLabelValues("publish", metrics.OutcomeOK)))
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Publishes.WithLabelValues("false")))
}

func (s *WorkflowSuite) TestFailedMutationsLeaveNoAuditTrail() {
	p := s.generate("Europe")[0]
	before := len(s.sink.Events())

	_, err := s.svc.Approve(s.as("u", domain.RoleUser), p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	err = s.svc.Remove(s.as("director-1", domain.RoleDirectorAdmin), p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))

	_, err = s.svc.SendToSuperAdmin(s.as("admin-1", domain.RoleAdmin), p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeConflict))

	s.Len(s.sink.Events(), before)
	s.Equal(1.0, testutil.ToFloat64(s.metrics.Operations.WithLabelValues("send_to_superadmin", metrics.OutcomeConflict)))
}

func (s *WorkflowSuite) TestReviewsUseCallerIdentity() {
	p := s.generate("Asia")[0]
	ctx := requestcontext.WithCallerName(s.as("reader-1", domain.RoleUser), "Reader One")

	res, err := s.svc.SubmitReview(ctx, p.ID, 5, "great", "")
	s.Require().NoError(err)
	s.Equal(domain.UserID("reader-1"), res.Review.AuthorID)
	s.Equal("Reader One", res.Review.AuthorName)
	s.Equal(1, res.Stats.ReviewsCount)

	res, err = s.svc.SubmitReview(ctx, p.ID, 1, "", "Pen Name")
	s.Require().NoError(err)
	s.Equal("Pen Name", res.Review.AuthorName)
	s.Equal(3.0, res.Stats.AvgRating)

	page, err := s.svc.ListReviews(context.Background(), p.ID, 0, 0)
	s.Require().NoError(err)
	s.Equal(2, page.Total)

	_, err = s.svc.SubmitReview(ctx, p.ID, 6, "", "")
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
	s.Equal(2.0, testutil.ToFloat64(s.metrics.ReviewsSubmitted))
}

func (s *WorkflowSuite) TestEditResubmitAndRemove() {
	p := s.generate("Africa")[0]
	admin := s.as("admin-1", domain.RoleAdmin)
	super := s.as("super-1", domain.RoleSuperAdmin)

	_, err := s.svc.Approve(admin, p.ID)
	s.Require().NoError(err)

	edited, err := s.svc.EditProfile(admin, p.ID, map[string]any{"bio": "updated"}, true)
	s.Require().NoError(err)
	s.Equal(models.StatusPending, edited.Status)
	s.Equal("updated", edited.Fields["bio"])

	s.Require().NoError(s.svc.Remove(super, p.ID))
	_, err = s.svc.GetProfile(super, p.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	s.Equal([]audit.Action{
		audit.ActionProfileCreated,
		audit.ActionProfileApproved,
		audit.ActionProfileResubmitted,
		audit.ActionProfileRemoved,
	}, s.actions(p.ID))
}

func (s *WorkflowSuite) TestListProfilesByRegion() {
	s.generate("Asia")
	s.generate("Europe")
	ctx := s.as("admin-1", domain.RoleAdmin)

	first, err := s.svc.ListProfiles(ctx, models.ListFilter{Region: "Asia"}, "", 2)
	s.Require().NoError(err)
	s.Len(first.Items, 2)
	s.NotEmpty(first.NextCursor)

	second, err := s.svc.ListProfiles(ctx, models.ListFilter{Region: "Asia"}, first.NextCursor, 2)
	s.Require().NoError(err)
	s.Len(second.Items, 1)
	s.Empty(second.NextCursor)

	_, err = s.svc.ListProfiles(ctx, models.ListFilter{Region: "Europe"}, first.NextCursor, 2)
	s.True(dErrors.HasCode(err, dErrors.CodeInvalidArgument))
}

func (s *WorkflowSuite) TestGenerateRequiresModerator() {
	_, err := s.svc.Generate(s.as("u", domain.RoleUser), generation.Request{Prompt: "x"})
	s.True(dErrors.HasCode(err, dErrors.CodeForbidden))
	s.Empty(s.sink.Events())
}

func TestGenerateWithoutGenerator(t *testing.T) {
	svc, err := workflow.Build(workflow.InMemoryStores(), nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	ctx := requestcontext.WithCaller(context.Background(), "a", domain.RoleAdmin)
	_, err = svc.Generate(ctx, generation.Request{Prompt: "x"})
	if !dErrors.HasCode(err, dErrors.CodeUpstream) {
		t.Fatalf("expected upstream error, got %v", err)
	}
}
