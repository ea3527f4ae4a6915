//go:build integration

package session_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	id "credo/pkg/domain"
	"credo/internal/session"
	"credo/pkg/testutil/containers"
)

type RedisStoreSuite struct {
	suite.Suite
	redis *containers.RedisContainer
	store *session.RedisStore
}

func TestRedisStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisStoreSuite))
}

func (s *RedisStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.redis = mgr.GetRedis(s.T())
	s.store = session.NewRedisStore(s.redis.Client, time.Hour, time.Minute)
}

func (s *RedisStoreSuite) SetupTest() {
	ctx := context.Background()
	s.Require().NoError(s.redis.FlushAll(ctx))
}

func (s *RedisStoreSuite) TestCreateThenGetRoundTrips() {
	ctx := context.Background()
	subjectID := id.NewSubjectID()

	created, err := s.store.Create(ctx, subjectID, id.NewTenantID(), id.NewDeviceID(), true)
	s.Require().NoError(err)

	result, err := s.store.Get(ctx, created.ID)
	s.Require().NoError(err)
	live, ok := result.AsLive()
	s.Require().True(ok)
	s.Equal(created.ID, live.ID)
	s.Equal(subjectID, live.SubjectID)
	s.True(live.MFAVerified)
}

func (s *RedisStoreSuite) TestUpdateRiskPreservesTTL() {
	ctx := context.Background()
	created, err := s.store.Create(ctx, id.NewSubjectID(), id.NewTenantID(), id.NewDeviceID(), false)
	s.Require().NoError(err)

	key := "session:" + created.ID.String()
	initialTTL, err := s.redis.Client.TTL(ctx, key).Result()
	s.Require().NoError(err)
	s.Greater(initialTTL, time.Duration(0))

	time.Sleep(50 * time.Millisecond)

	err = s.store.UpdateRisk(ctx, created.ID, session.RiskHigh, time.Now(), session.Observed{IP: "203.0.113.9", DeviceFingerprint: "fp-abc"})
	s.Require().NoError(err)

	newTTL, err := s.redis.Client.TTL(ctx, key).Result()
	s.Require().NoError(err)
	s.InDelta(initialTTL.Seconds(), newTTL.Seconds(), 5.0)

	result, err := s.store.Get(ctx, created.ID)
	s.Require().NoError(err)
	live, ok := result.AsLive()
	s.Require().True(ok)
	s.Equal(session.RiskHigh, live.RiskLevel)
}

// TestWATCHConflictDetection verifies that exactly one concurrent revoke
// succeeds against the same session key while the rest observe a no-op
// absence, proving the WATCH/MULTI path serializes correctly.
func (s *RedisStoreSuite) TestWATCHConflictDetection() {
	ctx := context.Background()
	created, err := s.store.Create(ctx, id.NewSubjectID(), id.NewTenantID(), id.NewDeviceID(), false)
	s.Require().NoError(err)

	const goroutines = 20
	var wg sync.WaitGroup
	var errCount atomic.Int32

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := s.store.Revoke(ctx, created.ID); err != nil {
				errCount.Add(1)
			}
		}()
	}
	wg.Wait()

	s.Equal(int32(0), errCount.Load(), "revoke is idempotent, no goroutine should error")

	result, err := s.store.Get(ctx, created.ID)
	s.Require().NoError(err)
	s.Equal(session.Absent, result.State)
}

func (s *RedisStoreSuite) TestRevokeAllForSubjectRemovesEveryIndexedSession() {
	ctx := context.Background()
	subjectID := id.NewSubjectID()
	tenantID := id.NewTenantID()

	var ids []id.SessionID
	for i := 0; i < 5; i++ {
		created, err := s.store.Create(ctx, subjectID, tenantID, id.NewDeviceID(), false)
		s.Require().NoError(err)
		ids = append(ids, created.ID)
	}

	count, err := s.store.RevokeAllForSubject(ctx, subjectID)
	s.Require().NoError(err)
	s.Equal(5, count)

	for _, sid := range ids {
		result, err := s.store.Get(ctx, sid)
		s.Require().NoError(err)
		s.Equal(session.Absent, result.State)
	}
}

func (s *RedisStoreSuite) TestGetAbsentSession() {
	result, err := s.store.Get(context.Background(), id.NewSessionID())
	s.Require().NoError(err)
	s.Equal(session.Absent, result.State)
}
