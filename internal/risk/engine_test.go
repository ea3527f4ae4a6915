package risk

import (
	"testing"
	"time"

	id "credo/pkg/domain"

	"github.com/stretchr/testify/require"
)

func TestScoreWithNoSignalsIsLow(t *testing.T) {
	e := NewEngine(DefaultConfig())
	profile := e.Score(id.NewSessionID(), id.NewSubjectID(), nil, time.Now())
	require.Equal(t, 0, profile.Score)
	require.Equal(t, LevelLow, profile.Level)
}

func TestScoreThresholds(t *testing.T) {
	e := NewEngine(DefaultConfig())
	cases := []struct {
		name     string
		signals  []Signal
		wantLvl  Level
	}{
		{"just below medium", []Signal{{Severity: 5}}, LevelLow},     // 25
		{"at medium boundary", []Signal{{Severity: 6}}, LevelMedium}, // 30
		{"at high boundary", []Signal{{Severity: 12}}, LevelHigh},    // 60
		{"at critical boundary", []Signal{{Severity: 16}}, LevelCritical}, // 80
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			profile := e.Score(id.NewSessionID(), id.NewSubjectID(), tc.signals, time.Now())
			require.Equal(t, tc.wantLvl, profile.Level)
		})
	}
}

func TestScoreClampsAtOneHundred(t *testing.T) {
	e := NewEngine(DefaultConfig())
	signals := []Signal{{Severity: 10}, {Severity: 10}, {Severity: 10}}
	profile := e.Score(id.NewSessionID(), id.NewSubjectID(), signals, time.Now())
	require.Equal(t, 100, profile.Score)
	require.Equal(t, LevelCritical, profile.Level)
}
