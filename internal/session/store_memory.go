package session

import (
	"context"
	"sync"
	"time"

	id "credo/pkg/domain"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var memoryStoreOps = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "session_store_operations_total",
	Help: "Session store operations by backend and outcome.",
}, []string{"backend", "op", "outcome"})

// MemoryStore is a single-process Store backed by a guarded map, used for
// tests and local development. It is safe for concurrent use.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[id.SessionID]*Session
	index    map[id.SubjectID]map[id.SessionID]struct{}
	ttl      time.Duration
}

// NewMemoryStore constructs an empty MemoryStore with the given session TTL.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[id.SessionID]*Session),
		index:    make(map[id.SubjectID]map[id.SessionID]struct{}),
		ttl:      ttl,
	}
}

func (m *MemoryStore) Create(_ context.Context, subjectID id.SubjectID, tenantID id.TenantID, deviceID id.DeviceID, mfaVerified bool) (*Session, error) {
	now := time.Now()
	s := &Session{
		ID:              id.NewSessionID(),
		SubjectID:       subjectID,
		TenantID:        tenantID,
		DeviceID:        deviceID,
		CreatedAt:       now,
		ExpiresAt:       now.Add(m.ttl),
		RiskLevel:       RiskLow,
		MFAVerified:     mfaVerified,
		LastEvaluatedAt: now,
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	if m.index[subjectID] == nil {
		m.index[subjectID] = make(map[id.SessionID]struct{})
	}
	m.index[subjectID][s.ID] = struct{}{}
	m.mu.Unlock()

	memoryStoreOps.WithLabelValues("memory", "create", "ok").Inc()
	return s, nil
}

func (m *MemoryStore) Get(_ context.Context, sessionID id.SessionID) (GetResult, error) {
	m.mu.RLock()
	s, ok := m.sessions[sessionID]
	m.mu.RUnlock()

	if !ok {
		memoryStoreOps.WithLabelValues("memory", "get", "absent").Inc()
		return absentResult(), nil
	}
	if s.expired(time.Now()) {
		memoryStoreOps.WithLabelValues("memory", "get", "expired").Inc()
		return absentResult(), nil
	}
	if !s.Live() {
		memoryStoreOps.WithLabelValues("memory", "get", "revoked").Inc()
		cp := *s
		return revokedResult(&cp), nil
	}
	cp := *s
	memoryStoreOps.WithLabelValues("memory", "get", "live").Inc()
	return liveResult(&cp), nil
}

func (s *Session) expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

func (m *MemoryStore) UpdateRisk(_ context.Context, sessionID id.SessionID, level RiskLevel, evaluatedAt time.Time, observed Observed) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok || !s.Live() || s.expired(time.Now()) {
		memoryStoreOps.WithLabelValues("memory", "update_risk", "noop").Inc()
		return nil
	}
	s.RiskLevel = level
	s.LastEvaluatedAt = evaluatedAt
	s.Observed = observed
	memoryStoreOps.WithLabelValues("memory", "update_risk", "ok").Inc()
	return nil
}

func (m *MemoryStore) Revoke(_ context.Context, sessionID id.SessionID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[sessionID]
	if !ok {
		memoryStoreOps.WithLabelValues("memory", "revoke", "noop").Inc()
		return nil
	}
	if s.RevokedAt == nil {
		now := time.Now()
		s.RevokedAt = &now
	}
	delete(m.sessions, sessionID)
	if set := m.index[s.SubjectID]; set != nil {
		delete(set, sessionID)
		if len(set) == 0 {
			delete(m.index, s.SubjectID)
		}
	}
	memoryStoreOps.WithLabelValues("memory", "revoke", "ok").Inc()
	return nil
}

func (m *MemoryStore) RevokeAllForSubject(_ context.Context, subjectID id.SubjectID) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	set, ok := m.index[subjectID]
	if !ok {
		return 0, nil
	}

	now := time.Now()
	count := 0
	for sid := range set {
		if s, ok := m.sessions[sid]; ok {
			if s.RevokedAt == nil {
				s.RevokedAt = &now
			}
			delete(m.sessions, sid)
			count++
		}
	}
	delete(m.index, subjectID)

	memoryStoreOps.WithLabelValues("memory", "revoke_all_for_subject", "ok").Inc()
	return count, nil
}
