package e2e

import (
	"context"
	"testing"

	"github.com/cucumber/godog"
)

func TestFeatures(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping feature suite in short mode")
	}
	suite := godog.TestSuite{
		Name:                "prodir",
		ScenarioInitializer: initializeScenario(t),
		Options: &godog.Options{
			Format:   "pretty",
			Paths:    []string{"features"},
			TestingT: t,
			Strict:   true,
		},
	}
	if suite.Run() != 0 {
		t.Fatal("feature suite failed")
	}
}

func initializeScenario(t *testing.T) func(*godog.ScenarioContext) {
	return func(ctx *godog.ScenarioContext) {
		tc, err := NewTestContext()
		if err != nil {
			t.Fatalf("start scenario server: %v", err)
		}
		RegisterSteps(ctx, tc)
		ctx.After(func(ctx context.Context, _ *godog.Scenario, err error) (context.Context, error) {
			tc.Close()
			return ctx, err
		})
	}
}
