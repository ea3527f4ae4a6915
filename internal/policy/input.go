// Package policy builds the policy input for one request, evaluates it
// against an external (or embedded) decision engine, and caches the
// decision for a short TTL keyed by the input's canonical fingerprint.
package policy

import (
	id "credo/pkg/domain"
)

// TenantInput is the `tenant` object of the policy wire schema.
type TenantInput struct {
	ID        id.TenantID `json:"id"`
	Plan      string      `json:"plan"`
	Throttled bool        `json:"throttled"`
}

// SubjectInput is the `subject` object of the policy wire schema.
type SubjectInput struct {
	ID          id.SubjectID `json:"id"`
	MFAVerified bool         `json:"mfa_verified"`
}

// RiskInput is the `risk` object of the policy wire schema.
type RiskInput struct {
	RiskLevel string `json:"riskLevel"`
}

// Input is the schema sent to the policy engine, matching the external wire
// contract verbatim: `{tenant:{id,plan,throttled}, subject:{id,mfa_verified},
// risk:{riskLevel}, resource, action, entitlements}`. Roles never crosses
// the wire - nothing in the schema names it - so it carries `json:"-"` and
// exists only so the embedded engine's RequireRole rules have something to
// evaluate in-process.
type Input struct {
	Tenant       TenantInput  `json:"tenant"`
	Subject      SubjectInput `json:"subject"`
	Risk         RiskInput    `json:"risk"`
	Resource     string       `json:"resource"`
	Action       string       `json:"action"`
	Entitlements []string     `json:"entitlements,omitempty"`
	Roles        []string     `json:"-"`
}

// Decision is the engine's verdict for one Input.
type Decision struct {
	Allow   bool   `json:"allow"`
	Reason  string `json:"reason,omitempty"`
	Package string `json:"package,omitempty"`
	Rule    string `json:"rule,omitempty"`
}

// Builder assembles Input from the pieces each pipeline step contributes.
type Builder struct {
	TenantID        id.TenantID
	TenantPlan      string
	TenantThrottled bool
	SubjectID       id.SubjectID
	RiskLevel       string
	MFAVerified     bool
	Roles           []string
	Entitlements    []string
}

// Build produces the Input for one resource/action pair. Roles and
// Entitlements are copied so the returned Input is safe to hash and cache
// independently of the builder's mutable state.
func (b Builder) Build(resource, action string) Input {
	return Input{
		Tenant:       TenantInput{ID: b.TenantID, Plan: b.TenantPlan, Throttled: b.TenantThrottled},
		Subject:      SubjectInput{ID: b.SubjectID, MFAVerified: b.MFAVerified},
		Risk:         RiskInput{RiskLevel: b.RiskLevel},
		Resource:     resource,
		Action:       action,
		Roles:        append([]string{}, b.Roles...),
		Entitlements: append([]string{}, b.Entitlements...),
	}
}
