package session

import (
	"context"
	"fmt"
	"time"

	id "credo/pkg/domain"
)

// Store is the authoritative session persistence contract (C1). Two
// backends implement it: MemoryStore for tests and single-process
// deployments, RedisStore for production.
type Store interface {
	// Create generates a fresh session id, sets CreatedAt=now,
	// ExpiresAt=now+TTL, RiskLevel=LOW, and adds the id to the subject
	// index. Fails only if the backing store is unreachable.
	Create(ctx context.Context, subjectID id.SubjectID, tenantID id.TenantID, deviceID id.DeviceID, mfaVerified bool) (*Session, error)

	// Get returns the current tagged-variant result for id.
	Get(ctx context.Context, sessionID id.SessionID) (GetResult, error)

	// UpdateRisk is a read-modify-write that preserves the remaining TTL.
	// No-op if the session no longer exists. observed becomes the new
	// Observed snapshot for the next request's signal derivation.
	UpdateRisk(ctx context.Context, sessionID id.SessionID, level RiskLevel, evaluatedAt time.Time, observed Observed) error

	// Revoke deletes the session key, removes it from the subject index,
	// and is idempotent.
	Revoke(ctx context.Context, sessionID id.SessionID) error

	// RevokeAllForSubject deletes every live session for subjectID in one
	// logical step and returns the count removed. Idempotent.
	RevokeAllForSubject(ctx context.Context, subjectID id.SubjectID) (int, error)
}

// sessionKey is the Redis-like key for one session record: session:{uuid}.
func sessionKey(sessionID id.SessionID) string {
	return fmt.Sprintf("session:%s", sessionID.String())
}

// subjectIndexKey is the Redis-like key for a subject's live-session set:
// subject:sessions:{subjectId}.
func subjectIndexKey(subjectID id.SubjectID) string {
	return fmt.Sprintf("subject:sessions:%s", subjectID.String())
}
