package reviews

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"github.com/cucumber/godog"
)

// TestContext is what the review steps need from the scenario harness.
type TestContext interface {
	Request(method, path, role string, body any) error
	LastStatus() int
	LastBody() []byte
	ResponseField(field string) (any, error)
	ProfileID() string
}

// RegisterSteps registers review submission and aggregate steps.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &reviewSteps{tc: tc}

	ctx.Step(`^a "([^"]*)" rates the profile (-?[\d.]+)(?: with comment "([^"]*)")?$`, steps.rateProfile)
	ctx.Step(`^the following ratings are submitted:$`, steps.submitRatings)
	ctx.Step(`^the profile should have (\d+) reviews? averaging ([\d.]+)$`, steps.aggregateShouldBe)
	ctx.Step(`^an anonymous visitor lists the reviews$`, steps.listReviewsAnonymously)
	ctx.Step(`^the review listing should total (\d+)$`, steps.listingTotal)
}

type reviewSteps struct {
	tc TestContext
}

func (s *reviewSteps) rateProfile(ctx context.Context, role, rating, comment string) error {
	value, err := strconv.ParseFloat(rating, 64)
	if err != nil {
		return err
	}
	return s.tc.Request(http.MethodPost, "/profiles/"+s.tc.ProfileID()+"/reviews", role, map[string]any{
		"rating":  value,
		"comment": comment,
	})
}

func (s *reviewSteps) submitRatings(ctx context.Context, table *godog.Table) error {
	for i, row := range table.Rows {
		if i == 0 {
			continue
		}
		if len(row.Cells) < 2 {
			return fmt.Errorf("row %d: want role and rating", i)
		}
		if err := s.rateProfile(ctx, row.Cells[0].Value, row.Cells[1].Value, ""); err != nil {
			return err
		}
		if s.tc.LastStatus() != http.StatusCreated {
			return fmt.Errorf("row %d: rating rejected with %d: %s", i, s.tc.LastStatus(), s.tc.LastBody())
		}
	}
	return nil
}

func (s *reviewSteps) aggregateShouldBe(ctx context.Context, count int, avg float64) error {
	if err := s.tc.Request(http.MethodGet, "/profiles/"+s.tc.ProfileID(), "user", nil); err != nil {
		return err
	}
	gotCount, err := s.tc.ResponseField("reviews_count")
	if err != nil {
		return err
	}
	gotAvg, err := s.tc.ResponseField("avg_rating")
	if err != nil {
		return err
	}
	if gotCount != float64(count) || gotAvg != avg {
		return fmt.Errorf("expected %d reviews averaging %v, got %v averaging %v", count, avg, gotCount, gotAvg)
	}
	return nil
}

func (s *reviewSteps) listReviewsAnonymously(ctx context.Context) error {
	return s.tc.Request(http.MethodGet, "/profiles/"+s.tc.ProfileID()+"/reviews", "", nil)
}

func (s *reviewSteps) listingTotal(ctx context.Context, total int) error {
	got, err := s.tc.ResponseField("total")
	if err != nil {
		return err
	}
	if got != float64(total) {
		return fmt.Errorf("expected total %d, got %v", total, got)
	}
	return nil
}
