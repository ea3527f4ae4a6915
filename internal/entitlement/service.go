package entitlement

import (
	"context"
	"errors"
	"log/slog"
	"time"

	id "credo/pkg/domain"
	dErrors "credo/pkg/domain-errors"
	audit "credo/pkg/platform/audit"
	"credo/pkg/platform/sentinel"
)

// Auditor is the subset of the audit publisher Service needs.
type Auditor interface {
	Emit(ctx context.Context, d audit.Draft) error
}

// SessionRevoker is the subset of session.Store a revoke needs: every live
// session for the subject must be torn down so nothing is served against a
// now-revoked grant.
type SessionRevoker interface {
	RevokeAllForSubject(ctx context.Context, subjectID id.SubjectID) (int, error)
}

// Service manages entitlement grants and their effect on live sessions.
type Service struct {
	store    Store
	sessions SessionRevoker
	auditor  Auditor
	logger   *slog.Logger
}

func NewService(store Store, sessions SessionRevoker, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{store: store, sessions: sessions, auditor: auditor, logger: logger}
}

// Grant records a new entitlement and audits the grant.
func (s *Service) Grant(ctx context.Context, subjectType string, subjectID id.SubjectID, resourceType, resourceID string, scopes []string, grantedBy id.SubjectID, reason string, validUntil *time.Time) (*Entitlement, error) {
	now := time.Now()
	e := &Entitlement{
		ID:           id.NewEntitlementID(),
		SubjectType:  subjectType,
		SubjectID:    subjectID,
		ResourceType: resourceType,
		ResourceID:   resourceID,
		Scopes:       scopes,
		Status:       StatusActive,
		ValidFrom:    now,
		ValidUntil:   validUntil,
		GrantedBy:    grantedBy,
		GrantReason:  reason,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.store.Grant(ctx, e); err != nil {
		return nil, err
	}

	s.audit(ctx, subjectID, audit.ActionEntitlementGranted, audit.DecisionGranted, 0)
	return e, nil
}

// Revoke marks the entitlement revoked, tears down every live session the
// subject holds, and audits both outcomes. The session teardown happens
// even if the audit write later fails - a failed audit must never leave a
// stale session alive under a revoked grant.
func (s *Service) Revoke(ctx context.Context, entitlementID id.EntitlementID, subjectID id.SubjectID) error {
	if err := s.store.Revoke(ctx, entitlementID); err != nil {
		if errors.Is(err, sentinel.ErrNotFound) {
			return dErrors.Wrap(dErrors.CodeNotFound, "entitlement not found", err)
		}
		return err
	}

	revoked, err := s.sessions.RevokeAllForSubject(ctx, subjectID)
	if err != nil {
		return err
	}

	s.audit(ctx, subjectID, audit.ActionEntitlementRevoked, audit.DecisionRevoked, 0)
	s.audit(ctx, subjectID, audit.ActionSessionsRevoked, audit.DecisionRevoked, revoked)
	return nil
}

// Suspend takes an ACTIVE entitlement out of service without revoking it
// outright - GetActiveForSubject stops returning it immediately, but unlike
// Revoke it does not force the subject's sessions to re-authorize, and it
// can later be reversed with Reactivate. Attempting to suspend an
// entitlement that has already reached a terminal REVOKED or EXPIRED state
// fails rather than silently no-oping.
func (s *Service) Suspend(ctx context.Context, entitlementID id.EntitlementID, subjectID id.SubjectID) error {
	if err := s.store.Suspend(ctx, entitlementID); err != nil {
		return s.translateTransitionError(err)
	}
	s.audit(ctx, subjectID, audit.ActionEntitlementSuspended, audit.DecisionRevoked, 0)
	return nil
}

// Reactivate restores a SUSPENDED entitlement to ACTIVE. A REVOKED or
// EXPIRED entitlement can never transition back to ACTIVE - the store
// enforces this and Reactivate surfaces that as a conflict rather than
// pretending the grant is live again.
func (s *Service) Reactivate(ctx context.Context, entitlementID id.EntitlementID, subjectID id.SubjectID) error {
	if err := s.store.Reactivate(ctx, entitlementID); err != nil {
		return s.translateTransitionError(err)
	}
	s.audit(ctx, subjectID, audit.ActionEntitlementReactivated, audit.DecisionGranted, 0)
	return nil
}

func (s *Service) translateTransitionError(err error) error {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return dErrors.Wrap(dErrors.CodeNotFound, "entitlement not found", err)
	case errors.Is(err, sentinel.ErrInvalidState):
		return dErrors.Wrap(dErrors.CodeConflict, "entitlement cannot transition from its current status", err)
	default:
		return err
	}
}

// GetActiveForSubject returns every currently-active grant for subjectID.
func (s *Service) GetActiveForSubject(ctx context.Context, subjectID id.SubjectID) ([]*Entitlement, error) {
	return s.store.GetActiveForSubject(ctx, subjectID)
}

// BuildPolicyInput flattens active entitlements into the scope strings the
// policy input schema expects.
func (s *Service) BuildPolicyInput(ctx context.Context, subjectID id.SubjectID) ([]string, error) {
	active, err := s.GetActiveForSubject(ctx, subjectID)
	if err != nil {
		return nil, err
	}

	var scopes []string
	for _, e := range active {
		scopes = append(scopes, e.Scopes...)
	}
	return scopes, nil
}

func (s *Service) audit(ctx context.Context, subjectID id.SubjectID, action string, decision audit.Decision, revokedCount int) {
	if s.auditor == nil {
		return
	}
	draft := audit.Draft{SubjectID: subjectID, Action: action, Decision: decision, RevokedCount: revokedCount}
	if err := s.auditor.Emit(ctx, draft); err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", action, "subject_id", subjectID, "error", err)
	}
}
