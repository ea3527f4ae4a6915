package pipeline

import (
	"net/http"
	"strings"

	"credo/internal/policy"
	"credo/internal/ratelimit"
	"credo/internal/risk"
	"credo/internal/session"
)

// Request is the mutable admission-time record threaded through every Step.
// Fields above the blank line are read-only inputs parsed from the inbound
// HTTP request; fields below are populated by the steps that derive them,
// so later steps (and the final handler) can read them without re-deriving.
type Request struct {
	Raw *http.Request

	Resource string
	Action   string

	AccessTokenCookie string
	DeviceHeader      string
	ClientIP          string
	UserAgent         string
	GeoCountry        string
	Automation        bool
	RequestNonce      string

	Session        *session.Session
	Risk           risk.Profile
	PolicyInput    policy.Input
	PolicyDecision policy.Decision
	RateLimit      ratelimit.Result
}

// ResourceResolver maps an inbound request to the resource/action pair the
// policy input and embedded rule table key off. Callers mount the pipeline
// with whatever resolver fits their route table; the default treats the URL
// path as the resource and the HTTP method as the action.
type ResourceResolver func(r *http.Request) (resource, action string)

// DefaultResourceResolver is used when no resolver is configured.
func DefaultResourceResolver(r *http.Request) (string, string) {
	return r.URL.Path, strings.ToUpper(r.Method)
}

// NewRequest parses the §6 inbound contract (credential cookie, device
// header, optional context headers) off of r.
func NewRequest(r *http.Request, resolver ResourceResolver) *Request {
	if resolver == nil {
		resolver = DefaultResourceResolver
	}
	resource, action := resolver(r)

	req := &Request{
		Raw:          r,
		Resource:     resource,
		Action:       action,
		DeviceHeader: r.Header.Get("X-Device-Id"),
		ClientIP:     clientIP(r),
		UserAgent:    r.Header.Get("User-Agent"),
		GeoCountry:   r.Header.Get("X-Geo"),
		Automation:   r.Header.Get("X-Automation") != "",
		RequestNonce: r.Header.Get("X-Request-Nonce"),
	}

	if cookie, err := r.Cookie("accessToken"); err == nil {
		req.AccessTokenCookie = cookie.Value
	}

	return req
}

// clientIP prefers the left-most X-Forwarded-For hop, falling back to the
// raw remote address - good enough for the risk engine's IP-anomaly signal,
// which only cares about stability across requests, not attribution.
func clientIP(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.Index(fwd, ","); idx != -1 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	if idx := strings.LastIndex(r.RemoteAddr, ":"); idx != -1 {
		return r.RemoteAddr[:idx]
	}
	return r.RemoteAddr
}
