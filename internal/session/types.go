// Package session owns the authoritative, TTL-bounded session record and
// its subject secondary index. Every other component (risk, rate limiter,
// entitlements, pipeline) reads and mutates sessions only through this
// package's Store interface.
package session

import (
	"time"

	id "credo/pkg/domain"
)

// RiskLevel is the session's current continuous-access-evaluation level.
type RiskLevel string

const (
	RiskLow      RiskLevel = "LOW"
	RiskMedium   RiskLevel = "MEDIUM"
	RiskHigh     RiskLevel = "HIGH"
	RiskCritical RiskLevel = "CRITICAL"
)

// Session is the authoritative record for one authenticated session.
// Fields are mutated in place only for RiskLevel, LastEvaluatedAt,
// RevokedAt (set-once), and the two last-seen fields tracked for signal
// derivation; every other field is immutable after Create.
type Session struct {
	ID              id.SessionID `json:"id"`
	SubjectID       id.SubjectID `json:"subjectId"`
	TenantID        id.TenantID  `json:"tenantId"`
	DeviceID        id.DeviceID  `json:"deviceId,omitempty"`
	CreatedAt       time.Time    `json:"createdAt"`
	ExpiresAt       time.Time    `json:"expiresAt"`
	RevokedAt       *time.Time   `json:"revokedAt,omitempty"`
	RiskLevel       RiskLevel    `json:"riskLevel"`
	MFAVerified     bool         `json:"mfaVerified"`
	LastEvaluatedAt time.Time    `json:"lastEvaluatedAt"`

	// Observed tracks the last-seen request attributes that the risk
	// signal derivation compares against: each signal is a pure function
	// of (request, session), so the comparison value has to live on the
	// session rather than in a side map. RiskService writes Observed in
	// the same update as RiskLevel.
	Observed Observed `json:"observed"`
}

// Observed is the subset of request attributes a session remembers purely
// to support drift-based risk signals on the next request.
type Observed struct {
	IP                string `json:"ip,omitempty"`
	UserAgent         string `json:"userAgent,omitempty"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
	GeoCountry        string `json:"geoCountry,omitempty"`
}

// Live reports whether the session record exists and RevokedAt is unset -
// the single liveness invariant from §3.
func (s *Session) Live() bool {
	return s != nil && s.RevokedAt == nil
}

// State is the tagged variant returned by Get, replacing a
// null+optional-field representation per the design note in §9: "model
// {live, revoked, absent} as a tagged variant ... mutations become total
// functions on the variant."
type State int

const (
	Absent State = iota
	Live
	Revoked
)

func (st State) String() string {
	switch st {
	case Live:
		return "LIVE"
	case Revoked:
		return "REVOKED"
	default:
		return "ABSENT"
	}
}

// GetResult wraps the tagged variant. Session is populated for Live and, for
// diagnostic purposes only, Revoked; it is nil for Absent.
type GetResult struct {
	State   State
	Session *Session
}

// AsLive returns the session and true only when State == Live. Every caller
// that needs to act on a session should use this rather than branching on
// State directly.
func (r GetResult) AsLive() (*Session, bool) {
	if r.State == Live {
		return r.Session, true
	}
	return nil, false
}

func absentResult() GetResult { return GetResult{State: Absent} }

func liveResult(s *Session) GetResult { return GetResult{State: Live, Session: s} }

func revokedResult(s *Session) GetResult { return GetResult{State: Revoked, Session: s} }
