package testutil

import (
	"context"
	"net/http"

	id "credo/pkg/domain"
	"credo/pkg/requestcontext"
)

// WithSubjectID adds a subject ID to the request context. This simulates
// what the session pipeline step would do for a verified session. If
// subjectID is not a valid UUID, it is not added to the context.
func WithSubjectID(req *http.Request, subjectID string) *http.Request {
	if parsed, err := id.ParseSubjectID(subjectID); err == nil {
		return req.WithContext(requestcontext.WithSubjectID(req.Context(), parsed))
	}
	return req
}

// WithSessionID adds a session ID to the request context. If sessionID is
// not a valid UUID, it is not added to the context.
func WithSessionID(req *http.Request, sessionID string) *http.Request {
	if parsed, err := id.ParseSessionID(sessionID); err == nil {
		return req.WithContext(requestcontext.WithSessionID(req.Context(), parsed))
	}
	return req
}

// WithAuth adds both subject ID and session ID to the request context. This
// is the typical state for a request that has already passed session
// verification. Invalid IDs are silently ignored.
func WithAuth(req *http.Request, subjectID, sessionID string) *http.Request {
	if subjectID != "" {
		req = WithSubjectID(req, subjectID)
	}
	if sessionID != "" {
		req = WithSessionID(req, sessionID)
	}
	return req
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	return req.WithContext(context.WithValue(req.Context(), key, value))
}
