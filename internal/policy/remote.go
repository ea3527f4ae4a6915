package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	dErrors "credo/pkg/domain-errors"
	"credo/pkg/platform/circuit"
)

// RemoteEngine evaluates Input against an external policy decision service
// over HTTP, guarded by a circuit breaker so sustained outages short-circuit
// to a deny without paying the full timeout on every call.
type RemoteEngine struct {
	baseURL string
	client  *http.Client
	breaker *circuit.Breaker
}

func NewRemoteEngine(baseURL string, timeout time.Duration, breaker *circuit.Breaker) *RemoteEngine {
	if breaker == nil {
		breaker = circuit.New("policy-engine")
	}
	return &RemoteEngine{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		breaker: breaker,
	}
}

func (e *RemoteEngine) Evaluate(ctx context.Context, in Input) (Decision, error) {
	if e.breaker.IsOpen() {
		return Decision{Allow: false, Reason: "policy_engine_unavailable"}, nil
	}

	decision, err := e.evaluate(ctx, in)
	if err != nil {
		if useFallback, _ := e.breaker.RecordFailure(); useFallback {
			return Decision{Allow: false, Reason: "policy_engine_unavailable"}, nil
		}
		return Decision{}, err
	}

	e.breaker.RecordSuccess()
	return decision, nil
}

func (e *RemoteEngine) evaluate(ctx context.Context, in Input) (Decision, error) {
	body, err := json.Marshal(map[string]Input{"input": in})
	if err != nil {
		return Decision{}, dErrors.Wrap(dErrors.CodeInternal, "marshal policy input", err)
	}

	url := fmt.Sprintf("%s/v1/data/authz/adaptive", e.baseURL)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Decision{}, dErrors.Wrap(dErrors.CodeInternal, "build policy request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return Decision{}, dErrors.Wrap(dErrors.CodeUnavailable, "policy engine request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Decision{}, dErrors.Newf(dErrors.CodeUnavailable, "policy engine returned status %d", resp.StatusCode)
	}

	var wire struct {
		Result Decision `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&wire); err != nil {
		return Decision{}, dErrors.Wrap(dErrors.CodeUnavailable, "decode policy response", err)
	}

	return wire.Result, nil
}
