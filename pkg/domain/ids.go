package domain

import (
	"strings"

	"github.com/google/uuid"

	dErrors "credo/pkg/domain-errors"
)

// SessionID identifies an authenticated session record.
type SessionID uuid.UUID

// SubjectID identifies the subject (human user, service, or third party) a
// session or entitlement belongs to.
type SubjectID uuid.UUID

// TenantID identifies the tenant a session or policy decision is scoped to.
type TenantID uuid.UUID

// DeviceID identifies the device a session is bound to.
type DeviceID uuid.UUID

// EntitlementID identifies an explicit grant held by a subject.
type EntitlementID uuid.UUID

func (s SessionID) String() string       { return uuid.UUID(s).String() }
func (s SubjectID) String() string       { return uuid.UUID(s).String() }
func (t TenantID) String() string        { return uuid.UUID(t).String() }
func (d DeviceID) String() string        { return uuid.UUID(d).String() }
func (e EntitlementID) String() string   { return uuid.UUID(e).String() }

func (s SessionID) IsNil() bool     { return uuid.UUID(s) == uuid.Nil }
func (s SubjectID) IsNil() bool     { return uuid.UUID(s) == uuid.Nil }
func (t TenantID) IsNil() bool      { return uuid.UUID(t) == uuid.Nil }
func (d DeviceID) IsNil() bool      { return uuid.UUID(d) == uuid.Nil }
func (e EntitlementID) IsNil() bool { return uuid.UUID(e) == uuid.Nil }

// NewSessionID generates a fresh, random session identifier.
func NewSessionID() SessionID { return SessionID(uuid.New()) }

// NewSubjectID generates a fresh, random subject identifier.
func NewSubjectID() SubjectID { return SubjectID(uuid.New()) }

// NewTenantID generates a fresh, random tenant identifier.
func NewTenantID() TenantID { return TenantID(uuid.New()) }

// NewDeviceID generates a fresh, random device identifier.
func NewDeviceID() DeviceID { return DeviceID(uuid.New()) }

// NewEntitlementID generates a fresh, random entitlement identifier.
func NewEntitlementID() EntitlementID { return EntitlementID(uuid.New()) }

// parseUUID enforces the shared invariant for every typed ID: non-empty,
// well-formed, non-nil. Trimmed input is not tolerated - callers at the
// trust boundary (cookies, headers, JSON bodies) must present exact values.
func parseUUID(s string) (uuid.UUID, error) {
	if s == "" {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be empty")
	}
	if len(s) > 255 || strings.ContainsRune(s, 0) {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id is malformed")
	}
	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, dErrors.Wrap(dErrors.CodeInvalidInput, "id is not a valid uuid", err)
	}
	if u == uuid.Nil {
		return uuid.Nil, dErrors.New(dErrors.CodeInvalidInput, "id cannot be the nil uuid")
	}
	return u, nil
}

// ParseSessionID constructs a SessionID from external input.
func ParseSessionID(s string) (SessionID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SessionID{}, err
	}
	return SessionID(u), nil
}

// ParseSubjectID constructs a SubjectID from external input.
func ParseSubjectID(s string) (SubjectID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return SubjectID{}, err
	}
	return SubjectID(u), nil
}

// ParseTenantID constructs a TenantID from external input.
func ParseTenantID(s string) (TenantID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return TenantID{}, err
	}
	return TenantID(u), nil
}

// ParseDeviceID constructs a DeviceID from external input.
func ParseDeviceID(s string) (DeviceID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return DeviceID{}, err
	}
	return DeviceID(u), nil
}

// ParseEntitlementID constructs an EntitlementID from external input.
func ParseEntitlementID(s string) (EntitlementID, error) {
	u, err := parseUUID(s)
	if err != nil {
		return EntitlementID{}, err
	}
	return EntitlementID(u), nil
}
