package pipeline

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"credo/internal/credential"
	"credo/internal/device"
	"credo/internal/entitlement"
	"credo/internal/policy"
	"credo/internal/ratelimit"
	"credo/internal/replay"
	"credo/internal/risk"
	"credo/internal/session"
	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"
	memorystore "credo/pkg/platform/audit/store/memory"

	"github.com/stretchr/testify/suite"
)

const testResource = "/api/x"
const testAction = "GET"

// syncAuditor appends straight to the store: the tests care about chain
// content, not the publisher's buffering/retry behavior, which is covered
// separately by the publisher and worker package tests.
type syncAuditor struct {
	store audit.Store
}

func (a syncAuditor) Emit(ctx context.Context, d audit.Draft) error {
	_, err := a.store.Append(ctx, d)
	return err
}

type PipelineSuite struct {
	suite.Suite

	sessions     *session.MemoryStore
	auditStore   *memorystore.InMemoryStore
	auditor      syncAuditor
	entitlements *entitlement.Service
	limiter      *ratelimit.MemoryStore
	caps         ratelimit.Caps
	policyEngine policy.Engine
	verifier     *credential.Verifier
	chain        *Chain
}

func TestPipelineSuite(t *testing.T) {
	suite.Run(t, new(PipelineSuite))
}

func (s *PipelineSuite) SetupTest() {
	s.sessions = session.NewMemoryStore(8 * time.Hour)
	s.auditStore = memorystore.NewInMemoryStore()
	s.auditor = syncAuditor{store: s.auditStore}
	s.entitlements = entitlement.NewService(entitlement.NewMemoryStore(), s.sessions, s.auditor, nil)
	s.limiter = ratelimit.NewMemoryStore()
	s.caps = ratelimit.Caps{Window: time.Minute, Low: 1000, Medium: 200, High: 20, DefaultLimit: 10}
	s.policyEngine = policy.NewEmbeddedEngine([]policy.Rule{
		{Resource: testResource, Action: testAction},
	})
	s.verifier = credential.NewVerifier([]byte("test-signing-key"), "")
	s.chain = s.buildChain(s.policyEngine, s.caps)
}

func (s *PipelineSuite) buildChain(engine policy.Engine, caps ratelimit.Caps) *Chain {
	deviceSvc := device.NewService(true)
	riskSvc := risk.NewService(risk.NewEngine(risk.DefaultConfig()), s.sessions, s.auditor, nil)

	return New(
		NewRequireSessionStep(s.sessions, s.verifier, time.Second, nil),
		NewEnforceDeviceBindingStep(s.auditor, nil),
		NewContinuousAccessEvaluationStep(riskSvc, deviceSvc, (*replay.Guard)(nil), 5*time.Minute, nil),
		NewRiskThrottleStep(s.limiter, caps, time.Second, nil),
		NewBuildPolicyInputStep(s.entitlements, nil),
		NewOpaAuthorizeStep(engine, s.auditor, time.Second, nil),
		NewAuditDecisionStep(s.auditor, nil),
	)
}

func (s *PipelineSuite) createSession(deviceID id.DeviceID, mfaVerified bool) *session.Session {
	sess, err := s.sessions.Create(context.Background(), id.NewSubjectID(), id.NewTenantID(), deviceID, mfaVerified)
	s.Require().NoError(err)
	return sess
}

func (s *PipelineSuite) newRequest(sess *session.Session, deviceHeader string) *http.Request {
	token, err := s.verifier.Issue(sess.ID, sess.SubjectID.String(), sess.TenantID.String(), time.Hour)
	s.Require().NoError(err)

	r := httptest.NewRequest(testAction, testResource, nil)
	r.AddCookie(&http.Cookie{Name: "accessToken", Value: token})
	if deviceHeader != "" {
		r.Header.Set("X-Device-Id", deviceHeader)
	}
	return r
}

func (s *PipelineSuite) runThroughHandler(chain *Chain, r *http.Request) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	handler := Middleware(chain, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	handler.ServeHTTP(rr, r)
	return rr
}

// S1 - happy path.
func (s *PipelineSuite) TestHappyPathAllows() {
	deviceID := id.NewDeviceID()
	sess := s.createSession(deviceID, true)
	r := s.newRequest(sess, deviceID.String())

	rr := s.runThroughHandler(s.chain, r)

	s.Equal(http.StatusOK, rr.Code)
	records, err := s.auditStore.ListBySubject(context.Background(), sess.SubjectID)
	s.Require().NoError(err)
	s.Require().Len(records, 1)
	s.Equal(audit.DecisionAllow, records[0].Decision)
}

// S2 - device mismatch.
func (s *PipelineSuite) TestDeviceMismatchRejects() {
	deviceID := id.NewDeviceID()
	sess := s.createSession(deviceID, true)
	r := s.newRequest(sess, id.NewDeviceID().String())

	rr := s.runThroughHandler(s.chain, r)

	s.Equal(http.StatusUnauthorized, rr.Code)
	s.Contains(rr.Body.String(), "Device mismatch")
}

// S3 - risk escalation causes a policy deny without terminating the session.
func (s *PipelineSuite) TestMediumRiskWithoutMFADeniesButSessionSurvives() {
	deviceID := id.NewDeviceID()
	sess := s.createSession(deviceID, false)

	chain := s.buildChain(policy.NewEmbeddedEngine([]policy.Rule{
		{Resource: testResource, Action: testAction, RequireMFA: true},
	}), s.caps)

	// First request establishes the observed baseline (no drift signals).
	r1 := s.newRequest(sess, deviceID.String())
	r1.Header.Set("X-Forwarded-For", "203.0.113.5")
	_ = s.runThroughHandler(chain, r1)

	// Second request drifts IP and device fingerprint enough to land MEDIUM
	// ((3 + 7) * 5 = 50), without crossing CRITICAL.
	r2 := s.newRequest(sess, deviceID.String())
	r2.Header.Set("X-Forwarded-For", "198.51.100.9")
	r2.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")

	rr := s.runThroughHandler(chain, r2)

	s.Equal(http.StatusForbidden, rr.Code)
	result, err := s.sessions.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	_, live := result.AsLive()
	s.True(live, "a MEDIUM-risk deny must not revoke the session")
}

// S4 - CRITICAL risk terminates the session outright.
func (s *PipelineSuite) TestCriticalRiskTerminatesSession() {
	deviceID := id.NewDeviceID()
	sess := s.createSession(deviceID, true)

	r1 := s.newRequest(sess, deviceID.String())
	r1.Header.Set("X-Forwarded-For", "203.0.113.5")
	r1.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15) Safari/605 Version/17")
	r1.Header.Set("X-Geo", "US")
	_ = s.runThroughHandler(s.chain, r1)

	r2 := s.newRequest(sess, deviceID.String())
	r2.Header.Set("X-Forwarded-For", "198.51.100.9")
	r2.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) Chrome/120.0")
	r2.Header.Set("X-Geo", "RU")
	r2.Header.Set("X-Automation", "1")

	rr := s.runThroughHandler(s.chain, r2)

	s.Equal(http.StatusForbidden, rr.Code)
	s.Contains(rr.Body.String(), "Session terminated")

	result, err := s.sessions.Get(context.Background(), sess.ID)
	s.Require().NoError(err)
	s.Equal(session.Absent, result.State)
}

// S5 - throttle.
func (s *PipelineSuite) TestThrottleRejectsOverCap() {
	deviceID := id.NewDeviceID()
	sess := s.createSession(deviceID, true)

	tightCaps := ratelimit.Caps{Window: time.Minute, Low: 2, Medium: 2, High: 2, DefaultLimit: 2}
	chain := s.buildChain(s.policyEngine, tightCaps)

	for i := 0; i < 2; i++ {
		r := s.newRequest(sess, deviceID.String())
		rr := s.runThroughHandler(chain, r)
		s.Equal(http.StatusOK, rr.Code, "request %d should be admitted", i+1)
	}

	r := s.newRequest(sess, deviceID.String())
	rr := s.runThroughHandler(chain, r)
	s.Equal(http.StatusTooManyRequests, rr.Code)
}

// S6 - entitlement revoke forces re-auth: both sessions for the subject
// become absent, and a later request with either cookie is rejected.
func (s *PipelineSuite) TestEntitlementRevokeForcesReauth() {
	ctx := context.Background()
	subjectID := id.NewSubjectID()
	tenantID := id.NewTenantID()
	d1, d2 := id.NewDeviceID(), id.NewDeviceID()

	sess1, err := s.sessions.Create(ctx, subjectID, tenantID, d1, true)
	s.Require().NoError(err)
	sess2, err := s.sessions.Create(ctx, subjectID, tenantID, d2, true)
	s.Require().NoError(err)

	granted, err := s.entitlements.Grant(ctx, "user", subjectID, "invoice", "inv-1", []string{"read:invoices"}, id.NewSubjectID(), "onboarding", nil)
	s.Require().NoError(err)

	err = s.entitlements.Revoke(ctx, granted.ID, subjectID)
	s.Require().NoError(err)

	for _, sessID := range []id.SessionID{sess1.ID, sess2.ID} {
		result, err := s.sessions.Get(ctx, sessID)
		s.Require().NoError(err)
		s.Equal(session.Absent, result.State)
	}

	r := s.newRequest(sess1, d1.String())
	rr := s.runThroughHandler(s.chain, r)
	s.Equal(http.StatusUnauthorized, rr.Code)
}

var _ Auditor = syncAuditor{}
