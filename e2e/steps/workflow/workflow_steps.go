package workflow

import (
	"context"
	"fmt"
	"net/http"
	"slices"
	"strings"

	"github.com/cucumber/godog"
)

// TestContext is what the workflow steps need from the scenario harness.
type TestContext interface {
	Request(method, path, role string, body any) error
	LastStatus() int
	LastBody() []byte
	ResponseField(field string) (any, error)
	ProfileID() string
	SetProfileID(id string)
	SetGeneratedCountries(countries []string)
	AuditActions() []string
}

// RegisterSteps registers approval, publication and removal steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &workflowSteps{tc: tc}

	ctx.Step(`^an? "([^"]*)" generates drafts for "([^"]*)" in region "([^"]*)"$`, steps.generateDrafts)
	ctx.Step(`^a generated draft profile$`, steps.generatedDraft)
	ctx.Step(`^the "([^"]*)" runs "([^"]*)" on the profile$`, steps.runTransition)
	ctx.Step(`^the "([^"]*)" removes the profile$`, steps.removeProfile)
	ctx.Step(`^the "([^"]*)" edits the profile bio to "([^"]*)"$`, steps.editBio)
	ctx.Step(`^the "([^"]*)" edits the profile bio to "([^"]*)" with resubmit$`, steps.editBioResubmit)
	ctx.Step(`^the response status should be (\d+)$`, steps.responseStatusShouldBe)
	ctx.Step(`^the response error should be "([^"]*)"$`, steps.responseErrorShouldBe)
	ctx.Step(`^the profile status should be "([^"]*)"$`, steps.profileStatusShouldBe)
	ctx.Step(`^the publish should report changed "(true|false)"$`, steps.publishChanged)
	ctx.Step(`^(\d+) drafts? should be created$`, steps.draftsCreated)
	ctx.Step(`^the profile should be publicly visible$`, steps.publiclyVisible)
	ctx.Step(`^the profile should not be publicly visible$`, steps.notPubliclyVisible)
	ctx.Step(`^the audit trail should be "([^"]*)"$`, steps.auditTrail)
}

type workflowSteps struct {
	tc      TestContext
	created int
}

func (s *workflowSteps) generateDrafts(ctx context.Context, role, countries, region string) error {
	var list []string
	for _, c := range strings.Split(countries, ",") {
		list = append(list, strings.TrimSpace(c))
	}
	s.tc.SetGeneratedCountries(list)
	if err := s.tc.Request(http.MethodPost, "/profiles/generate", role, map[string]any{
		"prompt": "film directors",
		"region": region,
	}); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusCreated {
		return nil
	}
	items, err := s.tc.ResponseField("items")
	if err != nil {
		return err
	}
	drafts, ok := items.([]any)
	if !ok {
		return fmt.Errorf("items is %T, want a list", items)
	}
	s.created = len(drafts)
	if len(drafts) > 0 {
		first, _ := drafts[0].(map[string]any)
		id, _ := first["id"].(string)
		s.tc.SetProfileID(id)
	}
	return nil
}

func (s *workflowSteps) generatedDraft(ctx context.Context) error {
	if err := s.generateDrafts(ctx, "admin", "Japan", "Asia"); err != nil {
		return err
	}
	if s.tc.ProfileID() == "" {
		return fmt.Errorf("no draft was generated: %d %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *workflowSteps) runTransition(ctx context.Context, role, op string) error {
	return s.tc.Request(http.MethodPost, "/profiles/"+s.tc.ProfileID()+"/"+op, role, nil)
}

func (s *workflowSteps) removeProfile(ctx context.Context, role string) error {
	return s.tc.Request(http.MethodDelete, "/profiles/"+s.tc.ProfileID(), role, nil)
}

func (s *workflowSteps) editBio(ctx context.Context, role, bio string) error {
	return s.tc.Request(http.MethodPatch, "/profiles/"+s.tc.ProfileID(), role, map[string]any{"bio": bio})
}

func (s *workflowSteps) editBioResubmit(ctx context.Context, role, bio string) error {
	return s.tc.Request(http.MethodPatch, "/profiles/"+s.tc.ProfileID()+"?resubmit=true", role, map[string]any{"bio": bio})
}

func (s *workflowSteps) responseStatusShouldBe(ctx context.Context, status int) error {
	if got := s.tc.LastStatus(); got != status {
		return fmt.Errorf("expected status %d, got %d: %s", status, got, s.tc.LastBody())
	}
	return nil
}

func (s *workflowSteps) responseErrorShouldBe(ctx context.Context, code string) error {
	got, err := s.tc.ResponseField("error")
	if err != nil {
		return err
	}
	if got != code {
		return fmt.Errorf("expected error %q, got %v", code, got)
	}
	return nil
}

func (s *workflowSteps) profileStatusShouldBe(ctx context.Context, status string) error {
	if err := s.tc.Request(http.MethodGet, "/profiles/"+s.tc.ProfileID(), "admin", nil); err != nil {
		return err
	}
	got, err := s.tc.ResponseField("status")
	if err != nil {
		return err
	}
	if got != status {
		return fmt.Errorf("expected status %q, got %v", status, got)
	}
	return nil
}

func (s *workflowSteps) publishChanged(ctx context.Context, want string) error {
	got, err := s.tc.ResponseField("changed")
	if err != nil {
		return err
	}
	if fmt.Sprint(got) != want {
		return fmt.Errorf("expected changed=%s, got %v", want, got)
	}
	return nil
}

func (s *workflowSteps) draftsCreated(ctx context.Context, n int) error {
	if s.created != n {
		return fmt.Errorf("expected %d drafts, got %d", n, s.created)
	}
	return nil
}

func (s *workflowSteps) publiclyVisible(ctx context.Context) error {
	if err := s.tc.Request(http.MethodGet, "/published/"+s.tc.ProfileID(), "", nil); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusOK {
		return fmt.Errorf("expected published snapshot, got %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *workflowSteps) notPubliclyVisible(ctx context.Context) error {
	if err := s.tc.Request(http.MethodGet, "/published/"+s.tc.ProfileID(), "", nil); err != nil {
		return err
	}
	if s.tc.LastStatus() != http.StatusNotFound {
		return fmt.Errorf("expected no snapshot, got %d: %s", s.tc.LastStatus(), s.tc.LastBody())
	}
	return nil
}

func (s *workflowSteps) auditTrail(ctx context.Context, want string) error {
	expected := strings.Split(want, ",")
	for i := range expected {
		expected[i] = strings.TrimSpace(expected[i])
	}
	got := s.tc.AuditActions()
	if !slices.Equal(got, expected) {
		return fmt.Errorf("expected audit trail %v, got %v", expected, got)
	}
	return nil
}
