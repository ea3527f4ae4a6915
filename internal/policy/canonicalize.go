package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// Canonicalize renders in as a deterministic byte sequence: the wire
// schema's nested tenant/subject/risk objects, a sorted entitlement list, no
// whitespace variance, stable field order. Roles never crosses the wire, so
// it is excluded here too. Both the decision cache's key and the audit
// record's policyInputHash go through this one function, so they always
// agree on what "the same input" means.
func Canonicalize(in Input) []byte {
	entitlements := append([]string{}, in.Entitlements...)
	sort.Strings(entitlements)

	canonical := struct {
		Tenant       TenantInput  `json:"tenant"`
		Subject      SubjectInput `json:"subject"`
		Risk         RiskInput    `json:"risk"`
		Resource     string       `json:"resource"`
		Action       string       `json:"action"`
		Entitlements []string     `json:"entitlements,omitempty"`
	}{
		Tenant:       in.Tenant,
		Subject:      in.Subject,
		Risk:         in.Risk,
		Resource:     in.Resource,
		Action:       in.Action,
		Entitlements: entitlements,
	}

	out, err := json.Marshal(canonical)
	if err != nil {
		panic(fmt.Sprintf("policy: canonical input must always marshal: %v", err))
	}
	return out
}

// Fingerprint is the hex-encoded SHA-256 of Canonicalize(in), used as both
// the decision cache key suffix and the audit record's policyInputHash.
func Fingerprint(in Input) string {
	sum := sha256.Sum256(Canonicalize(in))
	return hex.EncodeToString(sum[:])
}
