package pipeline

import (
	"context"
	"log/slog"
	"time"

	"credo/internal/credential"
	"credo/internal/session"
	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"
	"credo/pkg/requestcontext"
)

// requireSessionStep is phase-1 step 1: verify the signed access credential
// (§6) and resolve the session id it's bound to against the authoritative
// store. Issuing and refreshing the credential is an authentication-
// collaborator concern out of scope here; this step only ever verifies.
type requireSessionStep struct {
	store    session.Store
	verifier *credential.Verifier
	budget   time.Duration
	logger   *slog.Logger
}

func NewRequireSessionStep(store session.Store, verifier *credential.Verifier, budget time.Duration, logger *slog.Logger) Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &requireSessionStep{store: store, verifier: verifier, budget: budget, logger: logger}
}

func (s *requireSessionStep) Apply(ctx context.Context, req *Request) Outcome {
	sessionID, err := s.verifier.VerifySessionID(req.AccessTokenCookie)
	if err != nil {
		return Respond(401, map[string]string{"error": "missing or invalid session"})
	}

	storeCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()
	result, err := s.store.Get(storeCtx, sessionID)
	if err != nil {
		s.logger.ErrorContext(ctx, "session store unavailable", "error", err)
		return Respond(503, map[string]string{"error": "session store unavailable"})
	}

	sess, live := result.AsLive()
	if !live {
		return Respond(401, map[string]string{"error": "session not found"})
	}

	req.Session = sess
	ctx = requestcontext.WithSessionID(ctx, sess.ID)
	ctx = requestcontext.WithSubjectID(ctx, sess.SubjectID)
	ctx = requestcontext.WithTenantID(ctx, sess.TenantID)
	ctx = requestcontext.WithClientMetadata(ctx, req.ClientIP, req.UserAgent)
	return Continue(ctx)
}

// enforceDeviceBindingStep is phase-1 step 2: a session bound to a device at
// creation must see that same device header on every subsequent request.
type enforceDeviceBindingStep struct {
	auditor Auditor
	logger  *slog.Logger
}

func NewEnforceDeviceBindingStep(auditor Auditor, logger *slog.Logger) Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &enforceDeviceBindingStep{auditor: auditor, logger: logger}
}

func (s *enforceDeviceBindingStep) Apply(ctx context.Context, req *Request) Outcome {
	sess := req.Session
	if sess.DeviceID.IsNil() {
		return Continue(ctx)
	}

	deviceID, err := id.ParseDeviceID(req.DeviceHeader)
	if err != nil || deviceID != sess.DeviceID {
		s.audit(ctx, sess)
		return Respond(401, map[string]string{"error": "Device mismatch"})
	}

	return Continue(ctx)
}

func (s *enforceDeviceBindingStep) audit(ctx context.Context, sess *session.Session) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Draft{
		SubjectID:   sess.SubjectID,
		SessionID:   sess.ID,
		Action:      audit.ActionAccessDecision,
		Decision:    audit.DecisionDeny,
		RiskLevel:   string(sess.RiskLevel),
		MFAVerified: sess.MFAVerified,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "reason", "device_mismatch", "error", err)
	}
}
