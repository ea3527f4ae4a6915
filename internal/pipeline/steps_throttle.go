package pipeline

import (
	"context"
	"log/slog"
	"time"

	"credo/internal/ratelimit"
	"credo/pkg/requestcontext"
)

// riskThrottleStep is phase-2 step 4: C5, capped per the session's current
// risk level. A limiter outage fails closed rather than admitting
// unlimited traffic.
type riskThrottleStep struct {
	limiter ratelimit.Limiter
	caps    ratelimit.Caps
	budget  time.Duration
	logger  *slog.Logger
}

func NewRiskThrottleStep(limiter ratelimit.Limiter, caps ratelimit.Caps, budget time.Duration, logger *slog.Logger) Step {
	if logger == nil {
		logger = slog.Default()
	}
	return &riskThrottleStep{limiter: limiter, caps: caps, budget: budget, logger: logger}
}

func (s *riskThrottleStep) Apply(ctx context.Context, req *Request) Outcome {
	now := requestcontext.Now(ctx)
	key := ratelimit.Key(req.Session.ID, s.caps.Window, now)
	limit := s.caps.LimitFor(req.Risk.Level)

	limiterCtx, cancel := context.WithTimeout(ctx, s.budget)
	defer cancel()
	result, err := s.limiter.Allow(limiterCtx, key, limit, s.caps.Window)
	if err != nil {
		s.logger.ErrorContext(ctx, "rate limiter unavailable", "error", err)
		return Respond(429, map[string]string{"error": "Too many requests, try again later"})
	}

	req.RateLimit = result
	if !result.Allowed {
		return Respond(429, map[string]string{"error": "Too many requests, try again later"})
	}

	return Continue(ctx)
}
