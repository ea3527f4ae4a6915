package policy

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	id "credo/pkg/domain"
	"credo/pkg/platform/circuit"

	"github.com/stretchr/testify/require"
)

func TestRemoteEngineEvaluatesSuccessfully(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/data/authz/adaptive", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]Decision{"result": {Allow: true, Package: "authz.adaptive"}})
	}))
	defer server.Close()

	engine := NewRemoteEngine(server.URL, 5*time.Second, nil)
	decision, err := engine.Evaluate(t.Context(), Input{Tenant: TenantInput{ID: id.NewTenantID()}, Subject: SubjectInput{ID: id.NewSubjectID()}})
	require.NoError(t, err)
	require.True(t, decision.Allow)
}

func TestRemoteEngineOpensBreakerOnSustainedFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	breaker := circuit.New("test-policy", circuit.WithFailureThreshold(2))
	engine := NewRemoteEngine(server.URL, time.Second, breaker)

	// First failure just increments the breaker's counter: the caller still
	// sees the real error.
	_, err := engine.Evaluate(t.Context(), Input{})
	require.Error(t, err)

	// Second failure crosses the threshold: the breaker opens and this call
	// gets the fallback decision instead of the error.
	decision, err := engine.Evaluate(t.Context(), Input{})
	require.NoError(t, err)
	require.False(t, decision.Allow)
	require.Equal(t, "policy_engine_unavailable", decision.Reason)

	require.True(t, breaker.IsOpen())

	decision, err = engine.Evaluate(t.Context(), Input{})
	require.NoError(t, err)
	require.False(t, decision.Allow)
}
