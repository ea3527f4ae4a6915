package pipeline

import (
	"context"
	"log/slog"
	"time"

	"credo/internal/device"
	"credo/internal/replay"
	"credo/internal/risk"
	"credo/pkg/requestcontext"
)

// continuousAccessEvaluationStep is phase-2 step 3: C2/C3/C4 run against the
// current request and either terminate a now-CRITICAL session or persist
// the refreshed risk level for the remainder of the chain to read.
type continuousAccessEvaluationStep struct {
	riskService *risk.Service
	device      *device.Service
	replayGuard *replay.Guard
	replayTTL   time.Duration
	logger      *slog.Logger
}

func NewContinuousAccessEvaluationStep(riskService *risk.Service, deviceSvc *device.Service, replayGuard *replay.Guard, replayTTL time.Duration, logger *slog.Logger) Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &continuousAccessEvaluationStep{
		riskService: riskService,
		device:      deviceSvc,
		replayGuard: replayGuard,
		replayTTL:   replayTTL,
		logger:      logger,
	}
}

func (s *continuousAccessEvaluationStep) Apply(ctx context.Context, req *Request) Outcome {
	in := risk.Input{
		IP:                req.ClientIP,
		UserAgent:         req.UserAgent,
		DeviceFingerprint: s.device.ComputeFingerprint(req.UserAgent),
		GeoCountry:        req.GeoCountry,
		Automation:        req.Automation,
		Replayed:          s.checkReplay(ctx, req),
	}

	now := requestcontext.Now(ctx)
	profile, revoked, err := s.riskService.Enforce(ctx, req.Session, in, now)
	if err != nil {
		s.logger.ErrorContext(ctx, "risk evaluation failed", "error", err)
		return Respond(503, map[string]string{"error": "risk evaluation unavailable"})
	}

	req.Risk = profile
	if revoked {
		return Respond(403, map[string]string{"message": "Session terminated"})
	}

	return Continue(ctx)
}

// checkReplay is best-effort: a request that carries no nonce, or a
// deployment with no guard wired, never produces a SESSION_REUSE signal.
func (s *continuousAccessEvaluationStep) checkReplay(ctx context.Context, req *Request) bool {
	if s.replayGuard == nil || req.RequestNonce == "" {
		return false
	}
	fresh, err := s.replayGuard.CheckAndRecord(ctx, req.RequestNonce, s.replayTTL)
	if err != nil {
		s.logger.WarnContext(ctx, "replay guard check failed", "error", err)
		return false
	}
	return !fresh
}
