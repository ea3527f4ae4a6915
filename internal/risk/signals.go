package risk

import (
	"fmt"
	"time"

	"credo/internal/session"
)

// Severity weights for each derivable signal, per the fixed set of
// comparisons the engine runs against a session's last-observed request
// attributes. Geo discontinuity scores higher when it implies impossible
// travel (a country change within the recency window) than a plain geo
// change.
const (
	severityIPAnomaly        = 3
	severityDeviceMismatch   = 7
	severityBehaviorAnomaly  = 4
	severityThreatIntel      = 6
	severityGeoAnomaly       = 5
	severityImpossibleTravel = 8
	severitySessionReuse     = 10
)

// impossibleTravelWindow bounds how recently the session must have been
// evaluated for a country change to be scored as impossible travel rather
// than an ordinary geo anomaly.
const impossibleTravelWindow = time.Hour

// Input is the subset of the current request that signal derivation reads.
// It intentionally carries no session state of its own: every comparison
// is made against session.Observed, keeping Derive a pure function of
// (Input, *session.Session).
type Input struct {
	IP                string
	UserAgent         string
	DeviceFingerprint string
	GeoCountry        string
	Automation        bool
	Replayed          bool
}

// Derive maps the current request and session to the signals it implies.
// Only fields the session has previously observed are compared against;
// a session's first evaluation after Create produces no drift signals.
func Derive(in Input, s *session.Session) []Signal {
	var signals []Signal
	last := s.Observed

	if last.IP != "" && in.IP != "" && last.IP != in.IP {
		signals = append(signals, Signal{
			Type:     TypeIPAnomaly,
			Severity: severityIPAnomaly,
			Evidence: fmt.Sprintf("ip changed from %s to %s", last.IP, in.IP),
		})
	}

	if last.DeviceFingerprint != "" && in.DeviceFingerprint != "" && last.DeviceFingerprint != in.DeviceFingerprint {
		signals = append(signals, Signal{
			Type:     TypeDeviceMismatch,
			Severity: severityDeviceMismatch,
			Evidence: "device fingerprint drifted from last-seen value",
		})
	}

	if last.UserAgent != "" && in.UserAgent != "" && last.UserAgent != in.UserAgent {
		signals = append(signals, Signal{
			Type:     TypeBehaviorAnomaly,
			Severity: severityBehaviorAnomaly,
			Evidence: "user-agent changed since last request",
		})
	}

	if in.Automation {
		signals = append(signals, Signal{
			Type:     TypeThreatIntel,
			Severity: severityThreatIntel,
			Evidence: "automation header present",
		})
	}

	if last.GeoCountry != "" && in.GeoCountry != "" && last.GeoCountry != in.GeoCountry {
		if time.Since(s.LastEvaluatedAt) < impossibleTravelWindow {
			signals = append(signals, Signal{
				Type:     TypeImpossibleTravel,
				Severity: severityImpossibleTravel,
				Evidence: fmt.Sprintf("country changed from %s to %s within %s", last.GeoCountry, in.GeoCountry, impossibleTravelWindow),
			})
		} else {
			signals = append(signals, Signal{
				Type:     TypeGeoAnomaly,
				Severity: severityGeoAnomaly,
				Evidence: fmt.Sprintf("country changed from %s to %s", last.GeoCountry, in.GeoCountry),
			})
		}
	}

	if in.Replayed {
		signals = append(signals, Signal{
			Type:     TypeSessionReuse,
			Severity: severitySessionReuse,
			Evidence: "request nonce was already consumed",
		})
	}

	return signals
}

// Observed snapshots the request's attributes into the form SessionStore
// persists for the next evaluation's comparison.
func (in Input) Observed() session.Observed {
	return session.Observed{
		IP:                in.IP,
		UserAgent:         in.UserAgent,
		DeviceFingerprint: in.DeviceFingerprint,
		GeoCountry:        in.GeoCountry,
	}
}
