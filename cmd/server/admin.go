package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"credo/internal/entitlement"
	"credo/internal/session"
	id "credo/pkg/domain"
	dErrors "credo/pkg/domain-errors"
	audit "credo/pkg/platform/audit"
	"credo/pkg/platform/httputil"

	"github.com/go-chi/chi/v5"
)

// Auditor is the subset of the audit publisher adminHandlers needs.
type Auditor interface {
	Emit(ctx context.Context, d audit.Draft) error
}

// adminHandlers exposes the EntitlementService lifecycle, plus a standalone
// session-revocation path, over HTTP for the identity-provider side of the
// system; these routes sit in front of the authorization pipeline since they
// act on the issuer's authority, not a subject's own session.
type adminHandlers struct {
	sessions     session.Store
	entitlements *entitlement.Service
	auditor      Auditor
	logger       *slog.Logger
}

type grantEntitlementRequest struct {
	SubjectType  string     `json:"subject_type"`
	SubjectID    string     `json:"subject_id"`
	ResourceType string     `json:"resource_type"`
	ResourceID   string     `json:"resource_id"`
	Scopes       []string   `json:"scopes"`
	GrantedBy    string     `json:"granted_by"`
	Reason       string     `json:"reason"`
	ValidUntil   *time.Time `json:"valid_until,omitempty"`
}

func (r *grantEntitlementRequest) Validate() error {
	if r.SubjectType == "" || r.SubjectID == "" || r.ResourceType == "" || r.ResourceID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "subject_type, subject_id, resource_type, and resource_id are required")
	}
	if len(r.Scopes) == 0 {
		return dErrors.New(dErrors.CodeInvalidInput, "at least one scope is required")
	}
	return nil
}

func (h *adminHandlers) grantEntitlement(w http.ResponseWriter, r *http.Request) {
	req, err := httputil.DecodeAndPrepare[grantEntitlementRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	subjectID, err := id.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid subject_id", err))
		return
	}
	grantedBy, err := id.ParseSubjectID(req.GrantedBy)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid granted_by", err))
		return
	}

	granted, err := h.entitlements.Grant(r.Context(), req.SubjectType, subjectID, req.ResourceType, req.ResourceID, req.Scopes, grantedBy, req.Reason, req.ValidUntil)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "grant entitlement failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, granted)
}

type revokeEntitlementRequest struct {
	SubjectID string `json:"subject_id"`
}

func (r *revokeEntitlementRequest) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "subject_id is required")
	}
	return nil
}

func (h *adminHandlers) revokeEntitlement(w http.ResponseWriter, r *http.Request) {
	entitlementID, err := id.ParseEntitlementID(chi.URLParam(r, "entitlementID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid entitlement id", err))
		return
	}

	req, err := httputil.DecodeAndPrepare[revokeEntitlementRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	subjectID, err := id.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid subject_id", err))
		return
	}

	if err := h.entitlements.Revoke(r.Context(), entitlementID, subjectID); err != nil {
		h.logger.ErrorContext(r.Context(), "revoke entitlement failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

type suspendEntitlementRequest struct {
	SubjectID string `json:"subject_id"`
}

func (r *suspendEntitlementRequest) Validate() error {
	if r.SubjectID == "" {
		return dErrors.New(dErrors.CodeInvalidInput, "subject_id is required")
	}
	return nil
}

func (h *adminHandlers) suspendEntitlement(w http.ResponseWriter, r *http.Request) {
	entitlementID, err := id.ParseEntitlementID(chi.URLParam(r, "entitlementID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid entitlement id", err))
		return
	}

	req, err := httputil.DecodeAndPrepare[suspendEntitlementRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	subjectID, err := id.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid subject_id", err))
		return
	}

	if err := h.entitlements.Suspend(r.Context(), entitlementID, subjectID); err != nil {
		h.logger.ErrorContext(r.Context(), "suspend entitlement failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "suspended"})
}

func (h *adminHandlers) reactivateEntitlement(w http.ResponseWriter, r *http.Request) {
	entitlementID, err := id.ParseEntitlementID(chi.URLParam(r, "entitlementID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid entitlement id", err))
		return
	}

	req, err := httputil.DecodeAndPrepare[suspendEntitlementRequest](r)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	subjectID, err := id.ParseSubjectID(req.SubjectID)
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid subject_id", err))
		return
	}

	if err := h.entitlements.Reactivate(r.Context(), entitlementID, subjectID); err != nil {
		h.logger.ErrorContext(r.Context(), "reactivate entitlement failed", "error", err)
		httputil.WriteError(w, err)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "active"})
}

// revokeSession tears down a single session on the issuer's own authority -
// e.g. a support-desk or self-service "sign out this device" action - rather
// than as a side effect of risk scoring or an entitlement change. §4.1
// contracts SESSION_REVOKED to every Revoke regardless of caller, so this is
// the path that actually exercises it outside of a test literal.
func (h *adminHandlers) revokeSession(w http.ResponseWriter, r *http.Request) {
	sessionID, err := id.ParseSessionID(chi.URLParam(r, "sessionID"))
	if err != nil {
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeInvalidInput, "invalid session id", err))
		return
	}

	result, err := h.sessions.Get(r.Context(), sessionID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "session store unavailable", "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "session store unavailable", err))
		return
	}

	sess, live := result.AsLive()
	if !live {
		httputil.WriteError(w, dErrors.New(dErrors.CodeNotFound, "session not found"))
		return
	}

	if err := h.sessions.Revoke(r.Context(), sessionID); err != nil {
		h.logger.ErrorContext(r.Context(), "revoke session failed", "error", err)
		httputil.WriteError(w, dErrors.Wrap(dErrors.CodeUnavailable, "revoke session failed", err))
		return
	}

	h.audit(r.Context(), sess)
	httputil.WriteJSON(w, http.StatusOK, map[string]string{"status": "revoked"})
}

func (h *adminHandlers) audit(ctx context.Context, sess *session.Session) {
	if h.auditor == nil {
		return
	}
	err := h.auditor.Emit(ctx, audit.Draft{
		SubjectID:   sess.SubjectID,
		SessionID:   sess.ID,
		Action:      audit.ActionSessionRevoked,
		Decision:    audit.DecisionRevoked,
		RiskLevel:   string(sess.RiskLevel),
		MFAVerified: sess.MFAVerified,
	})
	if err != nil {
		h.logger.ErrorContext(ctx, "audit emit failed", "action", audit.ActionSessionRevoked, "error", err)
	}
}
