package risk

import (
	"time"

	id "credo/pkg/domain"
)

// Config exposes the scoring knobs as configuration rather than constants,
// so threshold tuning and the signal-weight multiplier can be adjusted per
// deployment without a code change.
type Config struct {
	SeverityWeight float64
	MediumAt       int
	HighAt         int
	CriticalAt     int
}

// DefaultConfig matches the documented defaults: W=5, LOW<30,
// MEDIUM[30,60), HIGH[60,80), CRITICAL>=80.
func DefaultConfig() Config {
	return Config{
		SeverityWeight: 5.0,
		MediumAt:       30,
		HighAt:         60,
		CriticalAt:     80,
	}
}

// Engine scores a set of signals deterministically and explainably: no
// probabilistic model, just a weighted sum clamped to [0,100].
type Engine struct {
	cfg Config
}

// NewEngine constructs an Engine with cfg.
func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Score computes score = min(100, Σ severity_i × W) and maps it to a level.
// Thresholds are inclusive at the lower bound.
func (e *Engine) Score(sessionID id.SessionID, subjectID id.SubjectID, signals []Signal, evaluatedAt time.Time) Profile {
	total := 0.0
	for _, sig := range signals {
		total += float64(sig.Severity) * e.cfg.SeverityWeight
	}

	score := int(total)
	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	return Profile{
		SessionID:   sessionID,
		SubjectID:   subjectID,
		Score:       score,
		Level:       e.level(score),
		Signals:     signals,
		EvaluatedAt: evaluatedAt,
	}
}

func (e *Engine) level(score int) Level {
	switch {
	case score >= e.cfg.CriticalAt:
		return LevelCritical
	case score >= e.cfg.HighAt:
		return LevelHigh
	case score >= e.cfg.MediumAt:
		return LevelMedium
	default:
		return LevelLow
	}
}
