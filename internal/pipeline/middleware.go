package pipeline

import (
	"net/http"

	"credo/pkg/platform/httputil"
)

// New builds the fixed seven-step chain described in §4.7. The order
// matches the component table exactly: requireSession, enforceDeviceBinding,
// continuousAccessEvaluation, riskThrottle, buildPolicyInput, opaAuthorize,
// auditDecision. Callers construct each Step with NewXxxStep and pass them
// here; there is no way to reorder them short of changing this call.
func New(requireSession, deviceBinding, continuousEval, throttle, buildPolicyInput, opaAuthorize, auditDecision Step) *Chain {
	return NewChain(requireSession, deviceBinding, continuousEval, throttle, buildPolicyInput, opaAuthorize, auditDecision)
}

// Middleware mounts chain as chi-compatible middleware. On Continue it
// stashes the populated Request on the context and calls next; on Respond
// it writes the response itself and next is never called - no handler ever
// sees a request the chain denied.
func Middleware(chain *Chain, resolver ResourceResolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			req := NewRequest(r, resolver)
			ctx, outcome := chain.Run(r.Context(), req)

			if !outcome.IsContinue() {
				httputil.WriteJSON(w, outcome.Status(), outcome.Body())
				return
			}

			ctx = WithPipelineRequest(ctx, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
