package main

import (
	"context"
	"errors"
	"time"

	"credo/internal/pipeline"
	audit "credo/pkg/platform/audit"
)

var errAuditBufferFull = errors.New("audit inbox buffer full")

var _ pipeline.Auditor = (*channelAuditor)(nil)

// channelAuditor is the production front end for pipeline.Auditor: a
// non-blocking send into the channel audit.Worker drains off the request
// path, per the §5 audit-enqueue budget (default 5ms) - in practice the send
// either succeeds immediately or fails immediately, since a full channel and
// an already-cancelled context are both detected without waiting.
type channelAuditor struct {
	inbox  chan audit.Draft
	budget time.Duration
}

func (a *channelAuditor) Emit(ctx context.Context, d audit.Draft) error {
	if d.EvaluatedAt.IsZero() {
		d.EvaluatedAt = time.Now()
	}

	enqueueCtx, cancel := context.WithTimeout(ctx, a.budget)
	defer cancel()

	select {
	case a.inbox <- d:
		return nil
	case <-enqueueCtx.Done():
		return enqueueCtx.Err()
	default:
		return errAuditBufferFull
	}
}
