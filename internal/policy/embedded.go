package policy

import "context"

// Rule is one row of the embedded rule table: resource/action match against
// a required role or entitlement.
type Rule struct {
	Resource           string
	Action             string
	RequireRole        string
	RequireEntitlement string
	MaxRiskLevel       string // "" means no risk ceiling
	RequireMFA         bool
}

// EmbeddedEngine evaluates a small in-process rule table. It stands in for
// a compiled policy bundle: same Engine interface, no sandboxed bytecode VM,
// no network call.
type EmbeddedEngine struct {
	rules []Rule
}

func NewEmbeddedEngine(rules []Rule) *EmbeddedEngine {
	return &EmbeddedEngine{rules: rules}
}

var riskRank = map[string]int{"LOW": 0, "MEDIUM": 1, "HIGH": 2, "CRITICAL": 3}

func (e *EmbeddedEngine) Evaluate(_ context.Context, in Input) (Decision, error) {
	for _, rule := range e.rules {
		if rule.Resource != in.Resource || rule.Action != in.Action {
			continue
		}

		if rule.RequireMFA && !in.Subject.MFAVerified {
			return Decision{Allow: false, Reason: "mfa_required", Package: "embedded", Rule: ruleName(rule)}, nil
		}
		if rule.MaxRiskLevel != "" && riskRank[in.Risk.RiskLevel] > riskRank[rule.MaxRiskLevel] {
			return Decision{Allow: false, Reason: "risk_too_high", Package: "embedded", Rule: ruleName(rule)}, nil
		}
		if rule.RequireRole != "" && !contains(in.Roles, rule.RequireRole) {
			return Decision{Allow: false, Reason: "missing_role", Package: "embedded", Rule: ruleName(rule)}, nil
		}
		if rule.RequireEntitlement != "" && !contains(in.Entitlements, rule.RequireEntitlement) {
			return Decision{Allow: false, Reason: "missing_entitlement", Package: "embedded", Rule: ruleName(rule)}, nil
		}

		return Decision{Allow: true, Package: "embedded", Rule: ruleName(rule)}, nil
	}

	return Decision{Allow: false, Reason: "no_matching_rule", Package: "embedded"}, nil
}

func ruleName(r Rule) string {
	return r.Resource + ":" + r.Action
}

func contains(ss []string, s string) bool {
	for _, v := range ss {
		if v == s {
			return true
		}
	}
	return false
}
