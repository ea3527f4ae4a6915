// Package audit implements the append-only, hash-chained audit log. Every
// record's contentHash covers the previous record's hash, so any tamper or
// gap in the chain is detectable by recomputing hashes forward from
// "GENESIS".
package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	id "credo/pkg/domain"
)

// Decision is the outcome recorded against one audited action.
type Decision string

const (
	DecisionAllow     Decision = "ALLOW"
	DecisionDeny      Decision = "DENY"
	DecisionChallenge Decision = "CHALLENGE"
	DecisionGranted   Decision = "GRANTED"
	DecisionRevoked   Decision = "REVOKED"
)

// GenesisHash is the prevHash value for the first record in the chain.
const GenesisHash = "GENESIS"

// Well-known action names emitted by the pipeline and entitlement service.
// Kept as typed constants rather than free-form strings so callers and
// consumers agree on spelling.
const (
	ActionAccessDecision         = "access_decision"
	ActionSessionRevoked         = "SESSION_REVOKED"
	ActionSessionsRevoked        = "SESSIONS_REVOKED_SUBJECT"
	ActionSessionTerminated      = "SESSION_TERMINATED_HIGH_RISK"
	ActionEntitlementGranted     = "ENTITLEMENT_GRANTED"
	ActionEntitlementRevoked     = "ENTITLEMENT_REVOKED"
	ActionEntitlementSuspended   = "ENTITLEMENT_SUSPENDED"
	ActionEntitlementReactivated = "ENTITLEMENT_REACTIVATED"
)

// Draft is everything the caller supplies about one audited action. The
// chain-dependent fields (ID, PrevHash, ContentHash) are filled in by the
// store at append time, under whatever lock or transaction it uses to
// serialize writes.
type Draft struct {
	SubjectID       id.SubjectID
	SessionID       id.SessionID // zero value if the action has no session
	Action          string
	Resource        string
	Decision        Decision
	PolicyPackage   string
	PolicyRule      string
	Roles           []string
	Entitlements    []string
	RiskLevel       string
	MFAVerified     bool
	IP              string
	UserAgent       string
	PolicyInputHash string
	EvaluatedAt     time.Time
	RevokedCount    int // sessions revoked by this action; 0 if not applicable
}

// Record is one append-only, chained audit entry.
type Record struct {
	ID              string       `json:"id"`
	PrevHash        string       `json:"prevHash"`
	SubjectID       id.SubjectID `json:"subjectId"`
	SessionID       id.SessionID `json:"sessionId,omitempty"`
	Action          string       `json:"action"`
	Resource        string       `json:"resource,omitempty"`
	Decision        Decision     `json:"decision"`
	PolicyPackage   string       `json:"policyPackage,omitempty"`
	PolicyRule      string       `json:"policyRule,omitempty"`
	Roles           []string     `json:"roles,omitempty"`
	Entitlements    []string     `json:"entitlements,omitempty"`
	RiskLevel       string       `json:"riskLevel"`
	MFAVerified     bool         `json:"mfaVerified"`
	IP              string       `json:"ip,omitempty"`
	UserAgent       string       `json:"userAgent,omitempty"`
	PolicyInputHash string       `json:"policyInputHash,omitempty"`
	EvaluatedAt     time.Time    `json:"evaluatedAt"`
	RevokedCount    int          `json:"revokedCount,omitempty"`
	ContentHash     string       `json:"contentHash"`
}

// signingView is the subset of Record hashed to produce ContentHash. It
// excludes ID and ContentHash themselves, per the chain invariant
// contentHash = H(canonical(record \ {contentHash}) || prevHash).
type signingView struct {
	PrevHash        string       `json:"prevHash"`
	SubjectID       id.SubjectID `json:"subjectId"`
	SessionID       id.SessionID `json:"sessionId,omitempty"`
	Action          string       `json:"action"`
	Resource        string       `json:"resource,omitempty"`
	Decision        Decision     `json:"decision"`
	PolicyPackage   string       `json:"policyPackage,omitempty"`
	PolicyRule      string       `json:"policyRule,omitempty"`
	Roles           []string     `json:"roles,omitempty"`
	Entitlements    []string     `json:"entitlements,omitempty"`
	RiskLevel       string       `json:"riskLevel"`
	MFAVerified     bool         `json:"mfaVerified"`
	IP              string       `json:"ip,omitempty"`
	UserAgent       string       `json:"userAgent,omitempty"`
	PolicyInputHash string       `json:"policyInputHash,omitempty"`
	EvaluatedAt     time.Time    `json:"evaluatedAt"`
	RevokedCount    int          `json:"revokedCount,omitempty"`
}

// NextRecord builds the record that chains onto prevHash. Callers must hold
// whatever lock serializes the store's append path before calling this, so
// that no two records are ever computed from the same prevHash.
func NextRecord(prevHash string, d Draft) *Record {
	if prevHash == "" {
		prevHash = GenesisHash
	}
	if d.EvaluatedAt.IsZero() {
		d.EvaluatedAt = time.Now()
	}

	view := signingView{
		PrevHash:        prevHash,
		SubjectID:       d.SubjectID,
		SessionID:       d.SessionID,
		Action:          d.Action,
		Resource:        d.Resource,
		Decision:        d.Decision,
		PolicyPackage:   d.PolicyPackage,
		PolicyRule:      d.PolicyRule,
		Roles:           d.Roles,
		Entitlements:    d.Entitlements,
		RiskLevel:       d.RiskLevel,
		MFAVerified:     d.MFAVerified,
		IP:              d.IP,
		UserAgent:       d.UserAgent,
		PolicyInputHash: d.PolicyInputHash,
		EvaluatedAt:     d.EvaluatedAt,
		RevokedCount:    d.RevokedCount,
	}

	hash := contentHash(view, prevHash)

	return &Record{
		ID:              hash,
		PrevHash:        prevHash,
		SubjectID:       d.SubjectID,
		SessionID:       d.SessionID,
		Action:          d.Action,
		Resource:        d.Resource,
		Decision:        d.Decision,
		PolicyPackage:   d.PolicyPackage,
		PolicyRule:      d.PolicyRule,
		Roles:           d.Roles,
		Entitlements:    d.Entitlements,
		RiskLevel:       d.RiskLevel,
		MFAVerified:     d.MFAVerified,
		IP:              d.IP,
		UserAgent:       d.UserAgent,
		PolicyInputHash: d.PolicyInputHash,
		EvaluatedAt:     d.EvaluatedAt,
		RevokedCount:    d.RevokedCount,
		ContentHash:     hash,
	}
}

func contentHash(view signingView, prevHash string) string {
	// json.Marshal on a struct emits fields in declaration order, which is
	// deterministic across calls and hosts - enough to satisfy "canonical"
	// for a chain integrity hash, independent of policy.Canonicalize's
	// sorted-map canonicalization used for the decision-cache fingerprint.
	payload, err := json.Marshal(view)
	if err != nil {
		panic("audit: signing view must always marshal: " + err.Error())
	}

	h := sha256.New()
	h.Write(payload)
	h.Write([]byte(prevHash))
	return hex.EncodeToString(h.Sum(nil))
}

// Verify recomputes the hash of every record in order and confirms each
// PrevHash matches the prior record's ID/ContentHash, and the first
// record's PrevHash is GenesisHash.
func Verify(records []*Record) (bool, int) {
	prev := GenesisHash
	for i, r := range records {
		if r.PrevHash != prev {
			return false, i
		}
		recomputed := NextRecord(r.PrevHash, Draft{
			SubjectID:       r.SubjectID,
			SessionID:       r.SessionID,
			Action:          r.Action,
			Resource:        r.Resource,
			Decision:        r.Decision,
			PolicyPackage:   r.PolicyPackage,
			PolicyRule:      r.PolicyRule,
			Roles:           r.Roles,
			Entitlements:    r.Entitlements,
			RiskLevel:       r.RiskLevel,
			MFAVerified:     r.MFAVerified,
			IP:              r.IP,
			UserAgent:       r.UserAgent,
			PolicyInputHash: r.PolicyInputHash,
			EvaluatedAt:     r.EvaluatedAt,
			RevokedCount:    r.RevokedCount,
		})
		if recomputed.ContentHash != r.ContentHash || recomputed.ID != r.ID {
			return false, i
		}
		prev = r.ContentHash
	}
	return true, -1
}

// Store is the append-only persistence contract. Implementations own the
// serialization that guarantees each Append sees the true last hash.
type Store interface {
	Append(ctx context.Context, d Draft) (*Record, error)
	ListBySubject(ctx context.Context, subjectID id.SubjectID) ([]*Record, error)
	ListAll(ctx context.Context) ([]*Record, error)
}
