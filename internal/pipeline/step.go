package pipeline

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("credo/internal/pipeline")

// Step is the single capability every pipeline hook implements. Steps never
// share mutable package-level state; everything they need is passed in at
// construction or read from req/ctx.
type Step interface {
	Apply(ctx context.Context, req *Request) Outcome
}

// named is satisfied by steps that expose a stable identifier for tracing;
// steps that don't get an index-based fallback span name.
type named interface {
	Name() string
}

// Chain is the explicit, ordered step sequence built once at startup.
type Chain struct {
	steps []Step
}

// NewChain builds a Chain over steps in the given order. The order is fixed
// for the lifetime of the Chain - there is no later registration.
func NewChain(steps ...Step) *Chain {
	return &Chain{steps: steps}
}

// Run executes every step in order against req, stopping at the first
// Respond outcome. It returns the context the last executed step produced
// (so a Continue result carries whatever values were attached) and that
// step's Outcome. Each step runs inside its own span so a trace backend can
// show exactly where in the chain a request was denied or slowed down.
func (c *Chain) Run(ctx context.Context, req *Request) (context.Context, Outcome) {
	ctx, rootSpan := tracer.Start(ctx, "pipeline.run")
	defer rootSpan.End()

	for i, step := range c.steps {
		select {
		case <-ctx.Done():
			rootSpan.SetStatus(codes.Error, "request cancelled")
			return ctx, Respond(503, map[string]string{"error": "request cancelled"})
		default:
		}

		outcome := c.runStep(ctx, i, step, req)
		if !outcome.IsContinue() {
			return ctx, outcome
		}
		ctx = outcome.Context()
	}
	return ctx, Continue(ctx)
}

func (c *Chain) runStep(ctx context.Context, index int, step Step, req *Request) Outcome {
	name := fmt.Sprintf("pipeline.step[%d]", index)
	if n, ok := step.(named); ok {
		name = n.Name()
	}

	ctx, span := tracer.Start(ctx, name, trace.WithAttributes(
		attribute.String("pipeline.resource", req.Resource),
		attribute.String("pipeline.action", req.Action),
	))
	defer span.End()

	outcome := step.Apply(ctx, req)
	if !outcome.IsContinue() {
		span.SetStatus(codes.Error, fmt.Sprintf("responded %d", outcome.Status()))
		return Respond(outcome.Status(), outcome.Body())
	}
	return Continue(outcome.Context())
}
