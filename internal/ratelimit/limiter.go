// Package ratelimit enforces the risk-adaptive per-session request cap: a
// fixed window keyed by session and window bucket, with the cap itself
// selected by the session's current risk level.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"credo/internal/session"
)

// Result is what a cap check reports back to the pipeline step.
type Result struct {
	Allowed   bool
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// Limiter enforces a fixed window cap of limit requests per window for key.
// Both backends share this contract so the pipeline step is backend-agnostic.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Result, error)
}

// Caps maps a risk level to its request cap. CRITICAL sessions never reach
// here - RiskService revokes them before the pipeline's throttle step runs -
// so Caps has no CRITICAL entry; callers that somehow see one should reject.
type Caps struct {
	Window       time.Duration
	Low          int
	Medium       int
	High         int
	DefaultLimit int
}

// LimitFor returns the request cap for level, or DefaultLimit for any level
// Caps does not recognize. CRITICAL always gets a zero cap: RiskService
// revokes a session the moment its score crosses into CRITICAL, so the
// throttle step should never see one, but if it ever does, a limit of 0
// rejects outright rather than quietly falling back to DefaultLimit.
func (c Caps) LimitFor(level session.RiskLevel) int {
	switch level {
	case session.RiskLow:
		return c.Low
	case session.RiskMedium:
		return c.Medium
	case session.RiskHigh:
		return c.High
	case session.RiskCritical:
		return 0
	default:
		return c.DefaultLimit
	}
}

// Key builds the fixed-window bucket key for sessionID at now: the window
// boundary is baked into the key itself, so no separate reset logic is
// needed - a new window is just a new key that expires on its own. Counters
// are per-session, not per-subject, so two concurrent sessions for the same
// subject at different risk levels never share - and so never exhaust -
// each other's cap.
func Key(sessionID fmt.Stringer, window time.Duration, now time.Time) string {
	bucket := now.Unix() / int64(window.Seconds())
	return fmt.Sprintf("rate:%s:%d", sessionID.String(), bucket)
}
