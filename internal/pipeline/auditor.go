package pipeline

import (
	"context"

	audit "credo/pkg/platform/audit"
)

// Auditor is the subset of the audit publisher every step needs. A failed
// Emit never turns into a pipeline failure - it is logged by the step and
// otherwise swallowed, per §7 "audit failures are never propagated".
type Auditor interface {
	Emit(ctx context.Context, d audit.Draft) error
}
