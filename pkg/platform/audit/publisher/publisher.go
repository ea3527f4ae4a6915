// Package publisher buffers audit writes off the request path when the
// caller opts into async mode, and always drains fully on Close.
package publisher

import (
	"context"
	"errors"
	"sync"
	"time"

	id "credo/pkg/domain"
	audit "credo/pkg/platform/audit"
)

var errBufferFull = errors.New("audit buffer full")

// Publisher wraps an audit.Store with optional async buffering.
type Publisher struct {
	store audit.Store

	async bool
	buf   chan audit.Draft
	wg    sync.WaitGroup
	once  sync.Once
}

// Option configures a Publisher.
type Option func(*Publisher)

// WithAsyncBuffer switches the publisher into async mode with a channel of
// size n. Without this option Emit is synchronous: it blocks on store.Append.
func WithAsyncBuffer(n int) Option {
	return func(p *Publisher) {
		p.async = true
		p.buf = make(chan audit.Draft, n)
	}
}

func NewPublisher(store audit.Store, opts ...Option) *Publisher {
	p := &Publisher{store: store}
	for _, opt := range opts {
		opt(p)
	}
	if p.async {
		p.wg.Add(1)
		go p.drain()
	}
	return p
}

// Emit persists the draft. In sync mode it appends directly; in async mode
// it attempts a non-blocking send and returns errBufferFull if the buffer is
// saturated, or ctx's error if ctx is already done.
func (p *Publisher) Emit(ctx context.Context, d audit.Draft) error {
	if d.EvaluatedAt.IsZero() {
		d.EvaluatedAt = time.Now()
	}

	if !p.async {
		_, err := p.store.Append(ctx, d)
		return err
	}

	select {
	case p.buf <- d:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return errBufferFull
	}
}

func (p *Publisher) drain() {
	defer p.wg.Done()
	for d := range p.buf {
		// Background append: failures here are the worker's concern, not
		// the publisher's. A publisher with retry/dead-letter semantics
		// should sit in front of a worker.Worker rather than appending
		// directly; this drain path is the simple in-process case.
		_, _ = p.store.Append(context.Background(), d)
	}
}

// Close drains every buffered draft into the store before returning. In
// sync mode it is a no-op.
func (p *Publisher) Close() error {
	p.once.Do(func() {
		if p.async {
			close(p.buf)
			p.wg.Wait()
		}
	})
	return nil
}

// List returns every record for subjectID, delegating to the store.
func (p *Publisher) List(ctx context.Context, subjectID id.SubjectID) ([]*audit.Record, error) {
	return p.store.ListBySubject(ctx, subjectID)
}
