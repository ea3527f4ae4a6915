package pipeline

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"credo/internal/policy"
	policymocks "credo/internal/policy/mocks"
	"credo/internal/session"
	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"
)

// OpaAuthorizeStepSuite exercises the policy-decision step against a gomock
// Engine double rather than the in-memory EmbeddedEngine: the behavior under
// test is call discipline (exactly one Evaluate per request, none after a
// short-circuiting earlier step) and fail-closed translation of an engine
// error into a deny, not rule evaluation itself.
type OpaAuthorizeStepSuite struct {
	suite.Suite

	ctrl   *gomock.Controller
	engine *policymocks.MockEngine
}

func TestOpaAuthorizeStepSuite(t *testing.T) {
	suite.Run(t, new(OpaAuthorizeStepSuite))
}

func (s *OpaAuthorizeStepSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.engine = policymocks.NewMockEngine(s.ctrl)
}

func (s *OpaAuthorizeStepSuite) newRequest() *Request {
	return &Request{
		Resource: testResource,
		Action:   testAction,
		Session: &session.Session{
			ID:        id.NewSessionID(),
			SubjectID: id.NewSubjectID(),
			TenantID:  id.NewTenantID(),
		},
		PolicyInput: policy.Input{
			Resource: testResource,
			Action:   testAction,
		},
	}
}

func (s *OpaAuthorizeStepSuite) TestEvaluatesExactlyOnceAndContinuesOnAllow() {
	s.engine.EXPECT().
		Evaluate(gomock.Any(), gomock.Any()).
		Return(policy.Decision{Allow: true, Package: "authz.adaptive", Rule: "default_allow"}, nil).
		Times(1)

	step := NewOpaAuthorizeStep(s.engine, nil, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	outcome := step.Apply(context.Background(), s.newRequest())

	s.True(outcome.IsContinue())
}

func (s *OpaAuthorizeStepSuite) TestEngineErrorFailsClosedWithoutRetry() {
	s.engine.EXPECT().
		Evaluate(gomock.Any(), gomock.Any()).
		Return(policy.Decision{}, context.DeadlineExceeded).
		Times(1)

	step := NewOpaAuthorizeStep(s.engine, &recordingAuditor{}, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	outcome := step.Apply(context.Background(), s.newRequest())

	s.False(outcome.IsContinue())
	s.Equal(403, outcome.Status())
}

func (s *OpaAuthorizeStepSuite) TestDenyAuditsReasonFromEngine() {
	s.engine.EXPECT().
		Evaluate(gomock.Any(), gomock.Any()).
		Return(policy.Decision{Allow: false, Reason: "insufficient_scope"}, nil).
		Times(1)

	auditor := &recordingAuditor{}
	step := NewOpaAuthorizeStep(s.engine, auditor, time.Second, slog.New(slog.NewTextHandler(io.Discard, nil)))
	outcome := step.Apply(context.Background(), s.newRequest())

	s.False(outcome.IsContinue())
	s.Require().Len(auditor.drafts, 1)
	s.Equal(audit.DecisionDeny, auditor.drafts[0].Decision)
}

func (s *OpaAuthorizeStepSuite) TearDownTest() {
	s.ctrl.Finish()
}

// recordingAuditor is a minimal Auditor double for assertions that need the
// emitted draft itself rather than just a call count, which gomock's
// argument matchers make awkward to assert against a struct literal.
type recordingAuditor struct {
	drafts []audit.Draft
}

func (a *recordingAuditor) Emit(ctx context.Context, d audit.Draft) error {
	a.drafts = append(a.drafts, d)
	return nil
}
