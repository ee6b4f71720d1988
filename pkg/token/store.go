// Package token holds the session credential for an AirBnG client: the raw
// bearer string plus the claims derived from it. The Store is the single
// writer of the credential; every other component only reads it.
package token

import (
	"strings"
	"sync"
	"time"
)

// DefaultSkew is the clock-skew tolerance applied when deciding whether a
// credential is still live. A credential within DefaultSkew of its expiry is
// reported as absent so callers renew before the backend rejects it.
const DefaultSkew = 30 * time.Second

// Credential is the current bearer token plus its decoded claims. Claims are
// zero when the token payload could not be decoded.
type Credential struct {
	Raw    string
	Claims Claims
}

// Profile is the member profile derived from the credential claims.
type Profile struct {
	MemberID string
	Nickname string
	Roles    []string
}

// Store holds the process-wide credential. It is a pure data holder: Set and
// Clear have no side effects beyond storage, consumers pull via Get.
type Store struct {
	mu     sync.RWMutex
	skew   time.Duration
	raw    string
	claims Claims

	now func() time.Time
}

// NewStore returns an empty credential store. A non-positive skew falls back
// to DefaultSkew.
func NewStore(skew time.Duration) *Store {
	if skew <= 0 {
		skew = DefaultSkew
	}
	return &Store{skew: skew, now: time.Now}
}

// Set normalizes and stores a new credential, replacing any previous one.
// A leading "Bearer " transport prefix is stripped. A token whose claims
// cannot be decoded is kept raw with zero claims, so Get reports it absent
// and callers degrade to logged-out instead of crashing.
func (s *Store) Set(raw string) {
	raw = strings.TrimSpace(raw)
	if len(raw) > 7 && strings.EqualFold(raw[:7], "bearer ") {
		raw = strings.TrimSpace(raw[7:])
	}

	claims, err := DecodeClaims(raw)
	if err != nil {
		claims = Claims{}
	}

	s.mu.Lock()
	s.raw = raw
	s.claims = claims
	s.mu.Unlock()
}

// Clear removes the credential and the profile derived from it.
func (s *Store) Clear() {
	s.mu.Lock()
	s.raw = ""
	s.claims = Claims{}
	s.mu.Unlock()
}

// Get returns the current credential. A credential within the configured
// skew of its expiry, or one with undecodable claims, is reported absent.
func (s *Store) Get() (Credential, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.raw == "" || !s.claims.LiveAt(s.now(), s.skew) {
		return Credential{}, false
	}
	return Credential{Raw: s.raw, Claims: s.claims}, true
}

// SubjectID returns the member id of the current live credential, or the
// empty string when no live credential is present.
func (s *Store) SubjectID() string {
	cred, ok := s.Get()
	if !ok {
		return ""
	}
	return cred.Claims.SubjectID()
}

// Profile returns the member profile derived from the current credential.
func (s *Store) Profile() (Profile, bool) {
	cred, ok := s.Get()
	if !ok {
		return Profile{}, false
	}
	return Profile{
		MemberID: cred.Claims.SubjectID(),
		Nickname: cred.Claims.Nickname,
		Roles:    cred.Claims.Roles,
	}, true
}
