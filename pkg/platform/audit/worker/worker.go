package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	audit "credo/pkg/platform/audit"
)

var deadLettered = promauto.NewCounter(prometheus.CounterOpts{
	Name: "audit_worker_dead_lettered_total",
	Help: "Audit drafts dropped after exhausting retry backoff.",
})

// Worker drains a channel of audit drafts into a Store off the request path.
// A persistent store failure is retried with capped exponential backoff
// before the draft is dropped and counted as dead-lettered - the worker
// never blocks the inbox waiting on one bad write.
type Worker struct {
	store      audit.Store
	inbox      <-chan audit.Draft
	logger     *slog.Logger
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
}

// Option configures a Worker.
type Option func(*Worker)

func WithLogger(logger *slog.Logger) Option {
	return func(w *Worker) { w.logger = logger }
}

func WithBackoff(base, max time.Duration, maxRetries int) Option {
	return func(w *Worker) {
		w.baseDelay = base
		w.maxDelay = max
		w.maxRetries = maxRetries
	}
}

func NewWorker(store audit.Store, inbox <-chan audit.Draft, opts ...Option) *Worker {
	w := &Worker{
		store:      store,
		inbox:      inbox,
		logger:     slog.Default(),
		maxRetries: 5,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   5 * time.Second,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case draft := <-w.inbox:
			w.persist(ctx, draft)
		}
	}
}

func (w *Worker) persist(ctx context.Context, draft audit.Draft) {
	delay := w.baseDelay
	for attempt := 0; attempt <= w.maxRetries; attempt++ {
		if _, err := w.store.Append(ctx, draft); err == nil {
			return
		} else if attempt == w.maxRetries {
			deadLettered.Inc()
			w.logger.ErrorContext(ctx, "audit record dead-lettered after retry exhaustion",
				"action", draft.Action, "subject_id", draft.SubjectID, "error", err)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > w.maxDelay {
			delay = w.maxDelay
		}
	}
}
