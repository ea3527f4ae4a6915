package risk

import (
	"testing"
	"time"

	"credo/internal/session"
	id "credo/pkg/domain"

	"github.com/stretchr/testify/require"
)

func baseSession() *session.Session {
	return &session.Session{
		ID:              id.NewSessionID(),
		SubjectID:       id.NewSubjectID(),
		LastEvaluatedAt: time.Now(),
		Observed: session.Observed{
			IP:                "203.0.113.1",
			UserAgent:         "agent/1.0",
			DeviceFingerprint: "fp-1",
			GeoCountry:        "US",
		},
	}
}

func TestDeriveFirstEvaluationProducesNoSignals(t *testing.T) {
	s := &session.Session{ID: id.NewSessionID(), SubjectID: id.NewSubjectID(), LastEvaluatedAt: time.Now()}
	signals := Derive(Input{IP: "203.0.113.1", UserAgent: "agent/1.0"}, s)
	require.Empty(t, signals)
}

func TestDeriveIPChangeProducesIPAnomaly(t *testing.T) {
	s := baseSession()
	signals := Derive(Input{IP: "198.51.100.7", UserAgent: s.Observed.UserAgent, DeviceFingerprint: s.Observed.DeviceFingerprint, GeoCountry: s.Observed.GeoCountry}, s)
	require.Len(t, signals, 1)
	require.Equal(t, TypeIPAnomaly, signals[0].Type)
	require.Equal(t, severityIPAnomaly, signals[0].Severity)
}

func TestDeriveDeviceFingerprintDriftProducesDeviceMismatch(t *testing.T) {
	s := baseSession()
	signals := Derive(Input{IP: s.Observed.IP, UserAgent: s.Observed.UserAgent, DeviceFingerprint: "fp-2", GeoCountry: s.Observed.GeoCountry}, s)
	require.Len(t, signals, 1)
	require.Equal(t, TypeDeviceMismatch, signals[0].Type)
}

func TestDeriveAutomationHeaderProducesThreatIntel(t *testing.T) {
	s := baseSession()
	signals := Derive(Input{IP: s.Observed.IP, UserAgent: s.Observed.UserAgent, DeviceFingerprint: s.Observed.DeviceFingerprint, GeoCountry: s.Observed.GeoCountry, Automation: true}, s)
	require.Len(t, signals, 1)
	require.Equal(t, TypeThreatIntel, signals[0].Type)
}

func TestDeriveGeoChangeWithinWindowProducesImpossibleTravel(t *testing.T) {
	s := baseSession()
	s.LastEvaluatedAt = time.Now().Add(-5 * time.Minute)
	signals := Derive(Input{IP: s.Observed.IP, UserAgent: s.Observed.UserAgent, DeviceFingerprint: s.Observed.DeviceFingerprint, GeoCountry: "FR"}, s)
	require.Len(t, signals, 1)
	require.Equal(t, TypeImpossibleTravel, signals[0].Type)
}

func TestDeriveGeoChangeOutsideWindowProducesGeoAnomaly(t *testing.T) {
	s := baseSession()
	s.LastEvaluatedAt = time.Now().Add(-2 * time.Hour)
	signals := Derive(Input{IP: s.Observed.IP, UserAgent: s.Observed.UserAgent, DeviceFingerprint: s.Observed.DeviceFingerprint, GeoCountry: "FR"}, s)
	require.Len(t, signals, 1)
	require.Equal(t, TypeGeoAnomaly, signals[0].Type)
}

func TestDeriveReplayedProducesSessionReuse(t *testing.T) {
	s := baseSession()
	signals := Derive(Input{IP: s.Observed.IP, UserAgent: s.Observed.UserAgent, DeviceFingerprint: s.Observed.DeviceFingerprint, GeoCountry: s.Observed.GeoCountry, Replayed: true}, s)
	require.Len(t, signals, 1)
	require.Equal(t, TypeSessionReuse, signals[0].Type)
	require.Equal(t, severitySessionReuse, signals[0].Severity)
}

func TestDeriveStacksMultipleSignals(t *testing.T) {
	s := baseSession()
	s.LastEvaluatedAt = time.Now().Add(-2 * time.Hour)
	signals := Derive(Input{IP: "198.51.100.7", UserAgent: "other-agent", DeviceFingerprint: "fp-2", GeoCountry: "FR", Automation: true, Replayed: true}, s)
	require.Len(t, signals, 6)
}
