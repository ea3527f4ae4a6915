package e2e

// tcAdapter satisfies steps/pipeline.TestContext by forwarding to whatever
// *TestContext get currently returns. RegisterSteps runs once per scenario
// initialization, before the Before hook has built that scenario's
// TestContext, so the steps package is handed this indirection instead of
// a concrete *TestContext.
type tcAdapter struct {
	get func() *TestContext
}

func (a *tcAdapter) CreateSession(label string, mfaVerified bool) error {
	return a.get().CreateSession(label, mfaVerified)
}

func (a *tcAdapter) RequestFromBoundDevice(method, label string, extraHeaders map[string]string) error {
	return a.get().RequestFromBoundDevice(method, label, extraHeaders)
}

func (a *tcAdapter) RequestFromUnboundDevice(label string) error {
	return a.get().RequestFromUnboundDevice(label)
}

func (a *tcAdapter) RequestWithSignals(label, ip, userAgent, geo string, automation bool) error {
	return a.get().RequestWithSignals(label, ip, userAgent, geo, automation)
}

func (a *tcAdapter) RequestTimes(label string, n int) ([]int, error) {
	return a.get().RequestTimes(label, n)
}

func (a *tcAdapter) StatusCode() int {
	return a.get().StatusCode()
}

func (a *tcAdapter) BodyContains(substr string) bool {
	return a.get().BodyContains(substr)
}

func (a *tcAdapter) IsSessionLive(label string) (bool, error) {
	return a.get().IsSessionLive(label)
}

func (a *tcAdapter) GrantEntitlement(label string) error {
	return a.get().GrantEntitlement(label)
}

func (a *tcAdapter) RevokeEntitlement(label string) error {
	return a.get().RevokeEntitlement(label)
}
