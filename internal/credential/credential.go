// Package credential verifies the signed access credential carried in the
// accessToken cookie (§6) and extracts the session id it's bound to. Issuing
// and refreshing the credential is an authentication-collaborator concern
// out of scope here; this package only ever verifies.
package credential

import (
	"errors"
	"time"

	id "credo/pkg/domain"

	"github.com/golang-jwt/jwt/v5"
)

// Claims is the subset of the access token's registered and custom claims
// this core reads. SubjectID and TenantID are carried for defense in depth
// only - the pipeline still resolves the session from the authoritative
// store rather than trusting them directly.
type Claims struct {
	SessionID string `json:"sid"`
	SubjectID string `json:"sub"`
	TenantID  string `json:"tid"`
	jwt.RegisteredClaims
}

// Verifier validates an HS256-signed access token and extracts its session
// id claim.
type Verifier struct {
	signingKey []byte
	issuer     string
}

// NewVerifier constructs a Verifier over signingKey. issuer is checked
// against the token's iss claim when non-empty.
func NewVerifier(signingKey []byte, issuer string) *Verifier {
	return &Verifier{signingKey: signingKey, issuer: issuer}
}

// ErrInvalidCredential is returned for any verification failure - expired,
// malformed, wrong signing method, bad signature, or issuer mismatch. The
// caller never needs to distinguish these: every case maps to a 401.
var ErrInvalidCredential = errors.New("invalid access credential")

// VerifySessionID verifies token and returns the session id it's bound to.
func (v *Verifier) VerifySessionID(token string) (id.SessionID, error) {
	claims, err := v.verify(token)
	if err != nil {
		return id.SessionID{}, err
	}
	sessionID, err := id.ParseSessionID(claims.SessionID)
	if err != nil {
		return id.SessionID{}, ErrInvalidCredential
	}
	return sessionID, nil
}

func (v *Verifier) verify(token string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return v.signingKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}))
	if err != nil {
		return nil, ErrInvalidCredential
	}
	if !parsed.Valid {
		return nil, ErrInvalidCredential
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok {
		return nil, ErrInvalidCredential
	}
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, ErrInvalidCredential
	}
	return claims, nil
}

// Issue signs a short-lived access token bound to sessionID, for tests that
// need a valid credential without standing up the authentication
// collaborator that issues them in production.
func (v *Verifier) Issue(sessionID id.SessionID, subjectID, tenantID string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		SessionID: sessionID.String(),
		SubjectID: subjectID,
		TenantID:  tenantID,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			Issuer:    v.issuer,
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.signingKey)
}
