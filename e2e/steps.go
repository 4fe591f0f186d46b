package e2e

import (
	"github.com/cucumber/godog"

	"prodir/e2e/steps/reviews"
	"prodir/e2e/steps/workflow"
)

// RegisterSteps registers all step definitions from modular packages.
func RegisterSteps(ctx *godog.ScenarioContext, tc *TestContext) {
	workflow.RegisterSteps(ctx, tc)
	reviews.RegisterSteps(ctx, tc)
}
