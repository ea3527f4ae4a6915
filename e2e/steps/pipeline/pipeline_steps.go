// Package pipeline registers the step definitions for the authorization
// pipeline's Gherkin feature set. One package per concern is the reference
// gateway's own e2e convention (steps/auth, steps/consent, steps/ratelimit);
// this repo has a single cohesive scenario set, so it gets one.
package pipeline

import (
	"fmt"

	"github.com/cucumber/godog"
)

// TestContext is the subset of e2e.TestContext these steps need.
type TestContext interface {
	CreateSession(label string, mfaVerified bool) error
	RequestFromBoundDevice(method, label string, extraHeaders map[string]string) error
	RequestFromUnboundDevice(label string) error
	RequestWithSignals(label, ip, userAgent, geo string, automation bool) error
	RequestTimes(label string, n int) ([]int, error)
	StatusCode() int
	BodyContains(substr string) bool
	IsSessionLive(label string) (bool, error)
	GrantEntitlement(label string) error
	RevokeEntitlement(label string) error
}

// RegisterSteps registers every step definition this feature set uses.
func RegisterSteps(ctx *godog.ScenarioContext, tc TestContext) {
	steps := &pipelineSteps{tc: tc}

	ctx.Step(`^a session "([^"]*)" bound to its device with MFA (verified|not verified)$`, steps.createSession)
	ctx.Step(`^a session "([^"]*)" for the same subject bound to its device with MFA (verified|not verified)$`, steps.createSession)
	ctx.Step(`^a throttled session "([^"]*)" with a cap of (\d+), bound to its device, with MFA (verified|not verified)$`, steps.createThrottledSession)

	ctx.Step(`^I request from the bound device using session "([^"]*)"$`, steps.requestFromBoundDevice)
	ctx.Step(`^I request from the bound device using session "([^"]*)" (\d+) times$`, steps.requestFromBoundDeviceNTimes)
	ctx.Step(`^I request from a different device using session "([^"]*)"$`, steps.requestFromDifferentDevice)
	ctx.Step(`^I send a request from the bound device using session "([^"]*)" with ip "([^"]*)", user agent "([^"]*)" and geo "([^"]*)"$`, steps.requestWithSignals)
	ctx.Step(`^I send a request from the bound device using session "([^"]*)" with ip "([^"]*)", user agent "([^"]*)", geo "([^"]*)" and automation flagged$`, steps.requestWithAutomationSignal)

	ctx.Step(`^session "([^"]*)" has an active entitlement$`, steps.grantEntitlement)
	ctx.Step(`^the entitlement for session "([^"]*)" is revoked$`, steps.revokeEntitlement)

	ctx.Step(`^the response status is (\d+)$`, steps.responseStatusIs)
	ctx.Step(`^the response body contains "([^"]*)"$`, steps.responseBodyContains)
	ctx.Step(`^each of the last (\d+) responses has status (\d+)$`, steps.lastNResponsesHaveStatus)
	ctx.Step(`^session "([^"]*)" is still live$`, steps.sessionIsLive)
	ctx.Step(`^session "([^"]*)" is no longer live$`, steps.sessionIsNotLive)
}

type pipelineSteps struct {
	tc           TestContext
	lastStatuses []int
}

func (s *pipelineSteps) createSession(label, mfaState string) error {
	return s.tc.CreateSession(label, mfaState == "verified")
}

// createThrottledSession ignores the cap argument: it's already baked into
// the TestContext at construction (NewThrottledTestContext), this step just
// creates the session against that already-configured harness.
func (s *pipelineSteps) createThrottledSession(label string, _ int, mfaState string) error {
	return s.tc.CreateSession(label, mfaState == "verified")
}

func (s *pipelineSteps) requestFromBoundDevice(label string) error {
	return s.tc.RequestFromBoundDevice("GET", label, nil)
}

func (s *pipelineSteps) requestFromBoundDeviceNTimes(label string, n int) error {
	statuses, err := s.tc.RequestTimes(label, n)
	s.lastStatuses = statuses
	return err
}

func (s *pipelineSteps) requestFromDifferentDevice(label string) error {
	return s.tc.RequestFromUnboundDevice(label)
}

func (s *pipelineSteps) requestWithSignals(label, ip, userAgent, geo string) error {
	return s.tc.RequestWithSignals(label, ip, userAgent, geo, false)
}

func (s *pipelineSteps) requestWithAutomationSignal(label, ip, userAgent, geo string) error {
	return s.tc.RequestWithSignals(label, ip, userAgent, geo, true)
}

func (s *pipelineSteps) grantEntitlement(label string) error {
	return s.tc.GrantEntitlement(label)
}

func (s *pipelineSteps) revokeEntitlement(label string) error {
	return s.tc.RevokeEntitlement(label)
}

func (s *pipelineSteps) responseStatusIs(want int) error {
	if got := s.tc.StatusCode(); got != want {
		return fmt.Errorf("expected status %d, got %d", want, got)
	}
	return nil
}

func (s *pipelineSteps) responseBodyContains(substr string) error {
	if !s.tc.BodyContains(substr) {
		return fmt.Errorf("expected response body to contain %q", substr)
	}
	return nil
}

func (s *pipelineSteps) lastNResponsesHaveStatus(n, want int) error {
	if len(s.lastStatuses) != n {
		return fmt.Errorf("expected %d recorded responses, have %d", n, len(s.lastStatuses))
	}
	for i, got := range s.lastStatuses {
		if got != want {
			return fmt.Errorf("response %d: expected status %d, got %d", i+1, want, got)
		}
	}
	return nil
}

func (s *pipelineSteps) sessionIsLive(label string) error {
	live, err := s.tc.IsSessionLive(label)
	if err != nil {
		return err
	}
	if !live {
		return fmt.Errorf("expected session %q to still be live", label)
	}
	return nil
}

func (s *pipelineSteps) sessionIsNotLive(label string) error {
	live, err := s.tc.IsSessionLive(label)
	if err != nil {
		return err
	}
	if live {
		return fmt.Errorf("expected session %q to no longer be live", label)
	}
	return nil
}
