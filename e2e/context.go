// Package e2e drives the authorization pipeline over real HTTP, the way a
// deployed caller would, rather than calling internal packages directly.
// TestContext is the per-scenario state godog steps operate on.
package e2e

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"credo/internal/ratelimit"
	"credo/internal/session"
	"credo/internal/testserver"
	id "credo/pkg/domain"
)

// TestContext holds one scenario's harness, the session/device under test,
// and the last HTTP response received, so step definitions can chain
// "when I request ... / then the response ..." without threading values
// through godog's step arguments.
type TestContext struct {
	harness *testserver.Harness

	sessions map[string]*session.Session
	devices  map[string]id.DeviceID
	subject  id.SubjectID
	tenant   id.TenantID

	entitlementID id.EntitlementID

	lastStatus int
	lastBody   []byte
}

// NewTestContext builds a fresh, empty scenario context with default
// throttle caps. Each scenario gets its own in-memory harness, so there is
// no cross-scenario bleed to reset between runs.
func NewTestContext() *TestContext {
	return newTestContext(testserver.DefaultCaps())
}

// NewThrottledTestContext is NewTestContext with a throttle cap tight
// enough to reach in a handful of requests, for S5.
func NewThrottledTestContext(cap int) *TestContext {
	caps := testserver.DefaultCaps()
	caps.Low, caps.Medium, caps.High, caps.DefaultLimit = cap, cap, cap, cap
	return newTestContext(caps)
}

func newTestContext(caps ratelimit.Caps) *TestContext {
	return &TestContext{
		harness:  testserver.NewWithCaps(caps),
		sessions: make(map[string]*session.Session),
		devices:  make(map[string]id.DeviceID),
		subject:  id.NewSubjectID(),
		tenant:   id.NewTenantID(),
	}
}

// Close tears down the scenario's harness server.
func (tc *TestContext) Close() {
	tc.harness.Close()
}

// CreateSession creates a session named label, bound to a freshly minted
// device, with the given MFA state. Every session a scenario creates shares
// the context's one subject/tenant, matching S6's "one subject, two
// sessions" setup; scenarios that only need one session just create one.
func (tc *TestContext) CreateSession(label string, mfaVerified bool) error {
	deviceID := id.NewDeviceID()
	sess, err := tc.harness.CreateSessionForSubject(context.Background(), tc.subject, tc.tenant, deviceID, mfaVerified)
	if err != nil {
		return err
	}
	tc.sessions[label] = sess
	tc.devices[label] = deviceID
	return nil
}

func (tc *TestContext) session(label string) (*session.Session, error) {
	sess, ok := tc.sessions[label]
	if !ok {
		return nil, fmt.Errorf("no session named %q", label)
	}
	return sess, nil
}

// Request issues method against the resource using the named session's
// credential, with deviceHeader set verbatim - a mismatched device header
// is how S2 is driven.
func (tc *TestContext) Request(method, label, deviceHeader string, extraHeaders map[string]string) error {
	sess, err := tc.session(label)
	if err != nil {
		return err
	}

	token, err := tc.harness.IssueToken(sess)
	if err != nil {
		return err
	}

	req, err := http.NewRequest(method, tc.harness.Server.URL+testserver.Resource, nil)
	if err != nil {
		return err
	}
	req.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
	if deviceHeader != "" {
		req.Header.Set("X-Device-Id", deviceHeader)
	}
	for k, v := range extraHeaders {
		req.Header.Set(k, v)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	tc.lastStatus = resp.StatusCode
	tc.lastBody = body
	return nil
}

// RequestFromBoundDevice issues a request for label using the device that
// session was created with - the device-matches-session happy path.
func (tc *TestContext) RequestFromBoundDevice(method, label string, extraHeaders map[string]string) error {
	deviceID, ok := tc.devices[label]
	if !ok {
		return fmt.Errorf("no device bound for session %q", label)
	}
	return tc.Request(method, label, deviceID.String(), extraHeaders)
}

// RequestFromUnboundDevice issues a request for label carrying a freshly
// minted device id that was never bound to that session - S2's device
// mismatch.
func (tc *TestContext) RequestFromUnboundDevice(label string) error {
	return tc.Request(http.MethodGet, label, id.NewDeviceID().String(), nil)
}

// RequestWithSignals issues a request from label's bound device carrying
// the given IP/user-agent/geo/automation signals, the shape S3 and S4 drive
// a session from LOW into MEDIUM or CRITICAL risk with.
func (tc *TestContext) RequestWithSignals(label, ip, userAgent, geo string, automation bool) error {
	headers := map[string]string{}
	if ip != "" {
		headers["X-Forwarded-For"] = ip
	}
	if userAgent != "" {
		headers["User-Agent"] = userAgent
	}
	if geo != "" {
		headers["X-Geo"] = geo
	}
	if automation {
		headers["X-Automation"] = "1"
	}
	return tc.RequestFromBoundDevice(http.MethodGet, label, headers)
}

// RequestTimes issues n requests from label's bound device in sequence and
// returns each one's status code, for S5's "fire N requests" setup.
func (tc *TestContext) RequestTimes(label string, n int) ([]int, error) {
	statuses := make([]int, 0, n)
	for i := 0; i < n; i++ {
		if err := tc.RequestFromBoundDevice(http.MethodGet, label, nil); err != nil {
			return nil, err
		}
		statuses = append(statuses, tc.lastStatus)
	}
	return statuses, nil
}

// StatusCode returns the last response's HTTP status.
func (tc *TestContext) StatusCode() int {
	return tc.lastStatus
}

// BodyContains reports whether the last response body contains substr.
func (tc *TestContext) BodyContains(substr string) bool {
	return strings.Contains(string(tc.lastBody), substr)
}

// IsSessionLive reports whether the named session is still live.
func (tc *TestContext) IsSessionLive(label string) (bool, error) {
	sess, err := tc.session(label)
	if err != nil {
		return false, err
	}
	return tc.harness.SessionLive(context.Background(), sess.ID)
}

// GrantEntitlement grants the subject behind label an active entitlement.
func (tc *TestContext) GrantEntitlement(label string) error {
	sess, err := tc.session(label)
	if err != nil {
		return err
	}
	entitlementID, err := tc.harness.GrantEntitlement(context.Background(), sess.SubjectID)
	if err != nil {
		return err
	}
	tc.entitlementID = entitlementID
	return nil
}

// RevokeEntitlement revokes the entitlement GrantEntitlement granted, for
// the subject behind label.
func (tc *TestContext) RevokeEntitlement(label string) error {
	sess, err := tc.session(label)
	if err != nil {
		return err
	}
	return tc.harness.RevokeEntitlement(context.Background(), tc.entitlementID, sess.SubjectID)
}
