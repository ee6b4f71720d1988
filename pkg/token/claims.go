package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrMalformed reports a bearer string whose claims segment could not be
// decoded. Callers should treat the credential as absent rather than failing.
var ErrMalformed = errors.New("token: malformed credential")

// Claims are the access-token claims issued by the AirBnG backend. The client
// never verifies signatures (it holds no key material); claims are decoded
// only to derive the subject, display profile and expiry.
type Claims struct {
	jwt.RegisteredClaims

	// Nickname is the member's display name.
	Nickname string `json:"nickname,omitempty"`

	// Roles granted to the member, e.g. ["MEMBER"] or ["MEMBER","ADMIN"].
	Roles []string `json:"roles,omitempty"`
}

// DecodeClaims decodes the claims segment of a bearer token without verifying
// the signature. A malformed token returns ErrMalformed and zero claims.
func DecodeClaims(raw string) (Claims, error) {
	var claims Claims
	parser := jwt.NewParser()
	if _, _, err := parser.ParseUnverified(raw, &claims); err != nil {
		return Claims{}, ErrMalformed
	}
	return claims, nil
}

// SubjectID returns the member id carried in the subject claim.
func (c Claims) SubjectID() string {
	return c.Subject
}

// Expiry returns the expiry time, or the zero time when the claim is absent.
func (c Claims) Expiry() time.Time {
	if c.ExpiresAt == nil {
		return time.Time{}
	}
	return c.ExpiresAt.Time
}

// LiveAt reports whether the claims are still usable at now, treating
// anything within skew of expiry as already expired.
func (c Claims) LiveAt(now time.Time, skew time.Duration) bool {
	exp := c.Expiry()
	if exp.IsZero() {
		return false
	}
	return now.Add(skew).Before(exp)
}
