package risk

import (
	"context"
	"log/slog"
	"time"

	"credo/internal/session"
	audit "credo/pkg/platform/audit"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var evaluationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "risk_evaluations_total",
	Help: "Continuous access evaluations by resulting level and action taken.",
}, []string{"level", "action"})

// Auditor is the subset of the audit publisher Service needs. Enforce never
// fails the request because an audit write failed; it only logs.
type Auditor interface {
	Emit(ctx context.Context, d audit.Draft) error
}

// Service scores each request's signals and enforces the result against the
// session: CRITICAL revokes the session outright, anything else persists
// the new risk level and observed snapshot for the next evaluation.
type Service struct {
	engine  *Engine
	store   session.Store
	auditor Auditor
	logger  *slog.Logger
}

func NewService(engine *Engine, store session.Store, auditor Auditor, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{engine: engine, store: store, auditor: auditor, logger: logger}
}

// Enforce scores in against s, then applies the result: on CRITICAL it
// revokes the session and reports revoked=true so the caller can short
// circuit the request with a 403 before reaching policy evaluation.
func (s *Service) Enforce(ctx context.Context, sess *session.Session, in Input, now time.Time) (Profile, bool, error) {
	signals := Derive(in, sess)
	profile := s.engine.Score(sess.ID, sess.SubjectID, signals, now)

	if profile.Level == LevelCritical {
		if err := s.store.Revoke(ctx, sess.ID); err != nil {
			return profile, false, err
		}
		evaluationsTotal.WithLabelValues(string(profile.Level), "revoked").Inc()
		s.audit(ctx, sess, profile, in, audit.ActionSessionTerminated, audit.DecisionRevoked)
		return profile, true, nil
	}

	if err := s.store.UpdateRisk(ctx, sess.ID, profile.Level, now, in.Observed()); err != nil {
		return profile, false, err
	}
	evaluationsTotal.WithLabelValues(string(profile.Level), "continued").Inc()
	return profile, false, nil
}

func (s *Service) audit(ctx context.Context, sess *session.Session, profile Profile, in Input, action string, decision audit.Decision) {
	if s.auditor == nil {
		return
	}
	err := s.auditor.Emit(ctx, audit.Draft{
		SubjectID:   sess.SubjectID,
		SessionID:   sess.ID,
		Action:      action,
		Decision:    decision,
		RiskLevel:   string(profile.Level),
		MFAVerified: sess.MFAVerified,
		IP:          in.IP,
		UserAgent:   in.UserAgent,
		EvaluatedAt: profile.EvaluatedAt,
	})
	if err != nil {
		s.logger.ErrorContext(ctx, "audit emit failed", "action", action, "subject_id", sess.SubjectID, "error", err)
	}
}
