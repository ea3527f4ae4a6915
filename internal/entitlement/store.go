package entitlement

import (
	"context"

	id "credo/pkg/domain"
)

// Store is the entitlement persistence contract.
type Store interface {
	Grant(ctx context.Context, e *Entitlement) error
	Revoke(ctx context.Context, entitlementID id.EntitlementID) error
	// Suspend and Reactivate transition between ACTIVE and SUSPENDED.
	// Reactivate must reject an entitlement that is REVOKED or EXPIRED: once
	// either of those is reached, the entitlement can never become ACTIVE
	// again.
	Suspend(ctx context.Context, entitlementID id.EntitlementID) error
	Reactivate(ctx context.Context, entitlementID id.EntitlementID) error
	GetActiveForSubject(ctx context.Context, subjectID id.SubjectID) ([]*Entitlement, error)
}
