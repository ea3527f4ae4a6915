package policy

//go:generate mockgen -source=engine.go -destination=mocks/mocks.go -package=mocks Engine

import "context"

// Engine evaluates a policy Input and returns a Decision. RemoteEngine,
// EmbeddedEngine, and Cache all implement it, so the pipeline step depends
// only on this interface.
type Engine interface {
	Evaluate(ctx context.Context, in Input) (Decision, error)
}
