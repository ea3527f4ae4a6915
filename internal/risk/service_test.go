package risk

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"credo/internal/session"
	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"

	"github.com/stretchr/testify/suite"
)

type fakeAuditor struct {
	mu      sync.Mutex
	drafts  []audit.Draft
}

func (f *fakeAuditor) Emit(_ context.Context, d audit.Draft) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drafts = append(f.drafts, d)
	return nil
}

type ServiceSuite struct {
	suite.Suite
	store   *session.MemoryStore
	auditor *fakeAuditor
	svc     *Service
}

func (s *ServiceSuite) SetupTest() {
	s.store = session.NewMemoryStore(time.Hour)
	s.auditor = &fakeAuditor{}
	s.svc = NewService(NewEngine(DefaultConfig()), s.store, s.auditor, nil)
}

func TestServiceSuite(t *testing.T) {
	suite.Run(t, new(ServiceSuite))
}

func (s *ServiceSuite) createSession() *session.Session {
	ctx := context.Background()
	created, err := s.store.Create(ctx, id.NewSubjectID(), id.NewTenantID(), id.NewDeviceID(), true)
	s.Require().NoError(err)
	return created
}

func (s *ServiceSuite) TestLowRiskContinuesAndPersistsObserved() {
	ctx := context.Background()
	sess := s.createSession()

	in := Input{IP: "203.0.113.1", UserAgent: "agent/1.0", DeviceFingerprint: "fp-1", GeoCountry: "US"}
	profile, revoked, err := s.svc.Enforce(ctx, sess, in, time.Now())
	s.Require().NoError(err)
	s.False(revoked)
	s.Equal(LevelLow, profile.Level)

	result, err := s.store.Get(ctx, sess.ID)
	s.Require().NoError(err)
	live, ok := result.AsLive()
	s.Require().True(ok)
	s.Equal(in.Observed(), live.Observed)
}

func (s *ServiceSuite) TestCriticalRiskRevokesSessionAndAudits() {
	ctx := context.Background()
	sess := s.createSession()

	// First evaluation establishes a baseline Observed snapshot.
	baseline := Input{IP: "203.0.113.1", UserAgent: "agent/1.0", DeviceFingerprint: "fp-1", GeoCountry: "US"}
	_, _, err := s.svc.Enforce(ctx, sess, baseline, time.Now())
	s.Require().NoError(err)

	live, err := s.store.Get(ctx, sess.ID)
	s.Require().NoError(err)
	current, ok := live.AsLive()
	s.Require().True(ok)

	// Stack enough drift to cross the critical threshold.
	drifted := Input{IP: "198.51.100.7", UserAgent: "other-agent", DeviceFingerprint: "fp-2", GeoCountry: "FR", Automation: true, Replayed: true}
	current.LastEvaluatedAt = time.Now().Add(-2 * time.Hour)
	profile, revoked, err := s.svc.Enforce(ctx, current, drifted, time.Now())
	s.Require().NoError(err)
	s.True(revoked)
	s.Equal(LevelCritical, profile.Level)

	result, err := s.store.Get(ctx, sess.ID)
	s.Require().NoError(err)
	s.Equal(session.Absent, result.State)

	s.auditor.mu.Lock()
	defer s.auditor.mu.Unlock()
	s.Require().Len(s.auditor.drafts, 1)
	s.Equal(audit.ActionSessionTerminated, s.auditor.drafts[0].Action)
	s.Equal(audit.DecisionRevoked, s.auditor.drafts[0].Decision)
}

func (s *ServiceSuite) TestAuditFailureDoesNotFailEnforce() {
	ctx := context.Background()
	sess := s.createSession()
	s.svc = NewService(NewEngine(DefaultConfig()), s.store, erroringAuditor{}, nil)

	current := *sess
	current.LastEvaluatedAt = time.Now().Add(-2 * time.Hour)
	drifted := Input{IP: "198.51.100.7", UserAgent: "other-agent", DeviceFingerprint: "fp-2", GeoCountry: "FR", Automation: true, Replayed: true}

	_, revoked, err := s.svc.Enforce(ctx, &current, drifted, time.Now())
	s.Require().NoError(err)
	s.True(revoked)
}

type erroringAuditor struct{}

func (erroringAuditor) Emit(context.Context, audit.Draft) error { return errors.New("audit unreachable") }
