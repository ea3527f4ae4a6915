package pipeline

import "context"

type requestKey struct{}

// WithPipelineRequest stashes req on ctx so the handler mounted behind
// Middleware can read the populated session, risk profile, and policy
// input without re-deriving any of it.
func WithPipelineRequest(ctx context.Context, req *Request) context.Context {
	return context.WithValue(ctx, requestKey{}, req)
}

// FromContext retrieves the Request Middleware attached to ctx.
func FromContext(ctx context.Context) (*Request, bool) {
	req, ok := ctx.Value(requestKey{}).(*Request)
	return req, ok
}
