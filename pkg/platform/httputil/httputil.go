// Package httputil maps the closed domain-errors.Code taxonomy to HTTP
// status and wire shape exactly once, so handlers never call http.Error
// directly.
package httputil

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	dErrors "credo/pkg/domain-errors"
)

func bytesReader(b []byte) *bytes.Reader { return bytes.NewReader(b) }

var statusByCode = map[dErrors.Code]int{
	dErrors.CodeBadRequest:         http.StatusBadRequest,
	dErrors.CodeConflict:           http.StatusConflict,
	dErrors.CodeForbidden:          http.StatusForbidden,
	dErrors.CodeInternal:           http.StatusInternalServerError,
	dErrors.CodeInvalidInput:       http.StatusBadRequest,
	dErrors.CodeInvalidRequest:     http.StatusBadRequest,
	dErrors.CodeInvariantViolation: http.StatusConflict,
	dErrors.CodeMissingConsent:     http.StatusForbidden,
	dErrors.CodeNotFound:           http.StatusNotFound,
	dErrors.CodeRateLimited:        http.StatusTooManyRequests,
	dErrors.CodeTimeout:            http.StatusGatewayTimeout,
	dErrors.CodeUnauthorized:       http.StatusUnauthorized,
	dErrors.CodeUnavailable:        http.StatusServiceUnavailable,
	dErrors.CodeValidation:         http.StatusBadRequest,
}

// WriteError writes the standard { "error": "...", "error_description": "..." }
// body for err. Internal errors never leak their message in the description
// field - only the stable error code is returned.
func WriteError(w http.ResponseWriter, err error) {
	var derr *dErrors.Error
	code := dErrors.CodeInternal
	message := ""
	if errors.As(err, &derr) {
		code = derr.Code
		message = derr.Message
	}

	status, ok := statusByCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	body := map[string]string{"error": string(code)}
	if code != dErrors.CodeInternal && message != "" {
		body["error_description"] = message
	}

	WriteJSON(w, status, body)
}

// WriteJSON writes v as a JSON body with the given status code.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// maxBodyBytes enforces the §7 input-error budget: payloads over 100KB are
// rejected at the secure-route gate before they reach a handler.
const maxBodyBytes = 100 * 1024

// DecodeAndPrepare reads and decodes a JSON body of type T, enforcing the
// size cap, then runs prepare (normalize + validate) if provided. T must
// implement a pointer-receiver Validate() error; Normalize is optional via
// the normalizer interface.
func DecodeAndPrepare[T any](r *http.Request) (T, error) {
	var v T

	limited := io.LimitReader(r.Body, maxBodyBytes+1)
	raw, err := io.ReadAll(limited)
	if err != nil {
		return v, dErrors.Wrap(dErrors.CodeBadRequest, "failed to read request body", err)
	}
	if len(raw) > maxBodyBytes {
		return v, dErrors.New(dErrors.CodeBadRequest, "request body exceeds size limit")
	}
	if len(raw) == 0 {
		return v, dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}

	dec := json.NewDecoder(bytesReader(raw))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&v); err != nil {
		return v, dErrors.Wrap(dErrors.CodeBadRequest, "malformed request body", err)
	}

	if n, ok := any(&v).(interface{ Normalize() }); ok {
		n.Normalize()
	}
	if val, ok := any(&v).(interface{ Validate() error }); ok {
		if err := val.Validate(); err != nil {
			return v, err
		}
	}

	return v, nil
}
