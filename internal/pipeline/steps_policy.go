package pipeline

import (
	"context"
	"log/slog"
	"time"

	"credo/internal/entitlement"
	"credo/internal/policy"
	"credo/internal/session"
	audit "credo/pkg/platform/audit"
)

// buildPolicyInputStep is phase-2 step 5: C7, fed by the subject's active
// entitlements (C10's projection) and the risk level step 3 just computed.
type buildPolicyInputStep struct {
	entitlements *entitlement.Service
	logger       *slog.Logger
}

func NewBuildPolicyInputStep(entitlements *entitlement.Service, logger *slog.Logger) Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &buildPolicyInputStep{entitlements: entitlements, logger: logger}
}

func (s *buildPolicyInputStep) Apply(ctx context.Context, req *Request) Outcome {
	scopes, err := s.entitlements.BuildPolicyInput(ctx, req.Session.SubjectID)
	if err != nil {
		s.logger.ErrorContext(ctx, "entitlement store unavailable", "error", err)
		return Respond(503, map[string]string{"error": "entitlement store unavailable"})
	}

	builder := policy.Builder{
		TenantID: req.Session.TenantID,
		// No per-tenant billing/plan registry exists in this core - that's a
		// separate collaborator's data, out of scope per the pipeline's
		// authorization-only purview - so every tenant reports the same plan.
		// Throttled mirrors whether this request's session is already paying
		// a reduced-capacity risk tax: true whenever its risk level has
		// pushed it off the LOW baseline rate cap.
		TenantPlan:      "standard",
		TenantThrottled: req.Risk.Level != session.RiskLow,
		SubjectID:       req.Session.SubjectID,
		RiskLevel:       string(req.Risk.Level),
		MFAVerified:     req.Session.MFAVerified,
		Entitlements:    scopes,
	}
	req.PolicyInput = builder.Build(req.Resource, req.Action)
	return Continue(ctx)
}

// opaAuthorizeStep is phase-2 step 6: C6.Decide. A policy-engine error is
// treated the same as an explicit deny, per §4.5's "do not raise into the
// pipeline beyond a 403 + audit DENY reason=policy_unavailable".
type opaAuthorizeStep struct {
	engine  policy.Engine
	auditor Auditor
	budget  time.Duration
	logger  *slog.Logger
}

func NewOpaAuthorizeStep(engine policy.Engine, auditor Auditor, budget time.Duration, logger *slog.Logger) Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &opaAuthorizeStep{engine: engine, auditor: auditor, budget: budget, logger: logger}
}

func (s *opaAuthorizeStep) Apply(ctx context.Context, req *Request) Outcome {
	engineCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()
	decision, err := s.engine.Evaluate(engineCtx, req.PolicyInput)
	if err != nil {
		decision = policy.Decision{Allow: false, Reason: "policy_unavailable"}
	}
	req.PolicyDecision = decision

	if !decision.Allow {
		s.audit(ctx, req, decision)
		return Respond(403, map[string]string{"error": "Forbidden"})
	}

	return Continue(ctx)
}

func (s *opaAuthorizeStep) audit(ctx context.Context, req *Request, decision policy.Decision) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Draft{
		SubjectID:       req.Session.SubjectID,
		SessionID:       req.Session.ID,
		Action:          audit.ActionAccessDecision,
		Resource:        req.Resource,
		Decision:        audit.DecisionDeny,
		PolicyPackage:   decision.Package,
		PolicyRule:      decision.Rule,
		Entitlements:    req.PolicyInput.Entitlements,
		RiskLevel:       string(req.Risk.Level),
		MFAVerified:     req.Session.MFAVerified,
		IP:              req.ClientIP,
		UserAgent:       req.UserAgent,
		PolicyInputHash: policy.Fingerprint(req.PolicyInput),
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "error", err)
	}
}

// auditDecisionStep is phase-2 step 7: the terminal ALLOW audit write. It
// only ever runs once every earlier step has continued, so by construction
// it never records an ALLOW for a request that a prior step denied.
type auditDecisionStep struct {
	auditor Auditor
	logger  *slog.Logger
}

func NewAuditDecisionStep(auditor Auditor, logger *slog.Logger) Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &auditDecisionStep{auditor: auditor, logger: logger}
}

func (s *auditDecisionStep) Apply(ctx context.Context, req *Request) Outcome {
	if s.auditor != nil {
		err := s.auditor.Emit(ctx, audit.Draft{
			SubjectID:       req.Session.SubjectID,
			SessionID:       req.Session.ID,
			Action:          audit.ActionAccessDecision,
			Resource:        req.Resource,
			Decision:        audit.DecisionAllow,
			PolicyPackage:   req.PolicyDecision.Package,
			PolicyRule:      req.PolicyDecision.Rule,
			Entitlements:    req.PolicyInput.Entitlements,
			RiskLevel:       string(req.Risk.Level),
			MFAVerified:     req.Session.MFAVerified,
			IP:              req.ClientIP,
			UserAgent:       req.UserAgent,
			PolicyInputHash: policy.Fingerprint(req.PolicyInput),
		})
		if err != nil {
			s.logger.ErrorContext(ctx, "audit emit failed", "error", err)
		}
	}

	return Continue(ctx)
}
