// Package testserver assembles the full authorization pipeline against
// in-memory stores and serves it over net/http/httptest, so black-box
// suites (e2e/godog included) can drive real HTTP traffic through the same
// router production does, rather than calling package functions directly.
package testserver

import (
	"context"
	"net/http"
	"net/http/httptest"
	"time"

	"credo/internal/credential"
	"credo/internal/device"
	"credo/internal/entitlement"
	"credo/internal/pipeline"
	"credo/internal/policy"
	"credo/internal/ratelimit"
	"credo/internal/replay"
	"credo/internal/risk"
	"credo/internal/session"
	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"
	memorystore "credo/pkg/platform/audit/store/memory"
)

// Resource is the single protected route the harness fronts. One resource
// is enough to exercise every pipeline step; the harness is about wiring,
// not a realistic route table.
const Resource = "/api/x"

// SigningKey is the access-credential signing key the harness's Verifier
// uses. Fixed rather than random, so step definitions can mint their own
// tokens for setup without reaching back into the harness.
const SigningKey = "e2e-harness-signing-key"

// syncAuditor appends straight to the audit store instead of going through
// the buffered channel/worker production uses, so an e2e assertion made
// immediately after a request sees the record. Grounded on the identical
// test double in internal/pipeline/pipeline_test.go.
type syncAuditor struct {
	store audit.Store
}

func (a syncAuditor) Emit(ctx context.Context, d audit.Draft) error {
	_, err := a.store.Append(ctx, d)
	return err
}

// Harness is a fully-wired pipeline plus the service handles a black-box
// suite needs for setup that has no HTTP surface of its own (minting
// sessions with specific device/MFA state, granting and revoking
// entitlements). The protected resource itself is only ever exercised over
// HTTP, through Server.
type Harness struct {
	Sessions     session.Store
	Entitlements *entitlement.Service
	Verifier     *credential.Verifier
	AuditStore   audit.Store
	Limiter      *ratelimit.MemoryStore

	Server *httptest.Server
}

// DefaultCaps mirrors the production defaults closely enough to exercise
// S1-S4 without ever tripping the throttle step; S5 builds its own harness
// with NewWithCaps so a tight cap is reachable in a handful of requests.
func DefaultCaps() ratelimit.Caps {
	return ratelimit.Caps{Window: time.Minute, Low: 1000, Medium: 200, High: 20, DefaultLimit: 10}
}

// New builds a harness whose single policy rule requires MFA on Resource
// unconditionally - the embedded engine evaluates RequireMFA regardless of
// risk level, so one rule drives both the MFA-satisfied allow path and the
// MFA-missing deny path a scenario needs.
func New() *Harness {
	return NewWithCaps(DefaultCaps())
}

// NewWithCaps is New with caller-supplied throttle caps, for scenarios that
// need to reach the cap in a small, deterministic number of requests.
func NewWithCaps(caps ratelimit.Caps) *Harness {
	sessions := session.NewMemoryStore(8 * time.Hour)
	auditStore := memorystore.NewInMemoryStore()
	auditor := syncAuditor{store: auditStore}
	entitlements := entitlement.NewService(entitlement.NewMemoryStore(), sessions, auditor, nil)
	limiter := ratelimit.NewMemoryStore()
	verifier := credential.NewVerifier([]byte(SigningKey), "")
	deviceSvc := device.NewService(true)
	riskSvc := risk.NewService(risk.NewEngine(risk.DefaultConfig()), sessions, auditor, nil)
	policyEngine := policy.NewEmbeddedEngine([]policy.Rule{
		{Resource: Resource, Action: http.MethodGet, RequireMFA: true},
	})

	chain := pipeline.New(
		pipeline.NewRequireSessionStep(sessions, verifier, time.Second, nil),
		pipeline.NewEnforceDeviceBindingStep(auditor, nil),
		pipeline.NewContinuousAccessEvaluationStep(riskSvc, deviceSvc, (*replay.Guard)(nil), 5*time.Minute, nil),
		pipeline.NewRiskThrottleStep(limiter, caps, time.Second, nil),
		pipeline.NewBuildPolicyInputStep(entitlements, nil),
		pipeline.NewOpaAuthorizeStep(policyEngine, auditor, time.Second, nil),
		pipeline.NewAuditDecisionStep(auditor, nil),
	)

	mux := http.NewServeMux()
	mux.Handle(Resource, pipeline.Middleware(chain, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})))

	return &Harness{
		Sessions:     sessions,
		Entitlements: entitlements,
		Verifier:     verifier,
		AuditStore:   auditStore,
		Limiter:      limiter,
		Server:       httptest.NewServer(mux),
	}
}

// Close tears down the underlying httptest.Server.
func (h *Harness) Close() {
	h.Server.Close()
}

// IssueToken mints a signed access credential bound to sess, suitable for
// the accessToken cookie.
func (h *Harness) IssueToken(sess *session.Session) (string, error) {
	return h.Verifier.Issue(sess.ID, sess.SubjectID.String(), sess.TenantID.String(), time.Hour)
}

// CreateSessionForSubject creates a session bound to deviceID with the
// given MFA state, for subjectID/tenantID. There is no HTTP-exposed way to
// do this in the production API - sessions come from a separate
// authentication flow this core doesn't own - so scenario setup goes
// straight through the store, matching §1's scope boundary (authentication
// is out of scope; session state is not).
func (h *Harness) CreateSessionForSubject(ctx context.Context, subjectID id.SubjectID, tenantID id.TenantID, deviceID id.DeviceID, mfaVerified bool) (*session.Session, error) {
	return h.Sessions.Create(ctx, subjectID, tenantID, deviceID, mfaVerified)
}

// GrantEntitlement and RevokeEntitlement expose the admin-side entitlement
// lifecycle directly, for the same reason CreateSession does: this core has
// no standing HTTP route for granting (cmd/server/admin.go's grant route
// belongs to the deployed binary, not the harness), so setup goes through
// the service.
func (h *Harness) GrantEntitlement(ctx context.Context, subjectID id.SubjectID) (id.EntitlementID, error) {
	e, err := h.Entitlements.Grant(ctx, "user", subjectID, "invoice", "inv-1", []string{"read:invoices"}, id.NewSubjectID(), "onboarding", nil)
	if err != nil {
		return id.EntitlementID{}, err
	}
	return e.ID, nil
}

func (h *Harness) RevokeEntitlement(ctx context.Context, entitlementID id.EntitlementID, subjectID id.SubjectID) error {
	return h.Entitlements.Revoke(ctx, entitlementID, subjectID)
}

// SessionLive reports whether sessionID still resolves to a live session,
// the shape S4 and S6 assert on after their triggering action.
func (h *Harness) SessionLive(ctx context.Context, sessionID id.SessionID) (bool, error) {
	result, err := h.Sessions.Get(ctx, sessionID)
	if err != nil {
		return false, err
	}
	_, live := result.AsLive()
	return live, nil
}
