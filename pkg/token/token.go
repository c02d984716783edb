// Package token defines the access-token record shared by every stage of
// the auth pipeline: one bearer token, its expiry, and the optional hash
// side-value carried by the platform stages.
package token

import (
	"fmt"
	"time"
)

// DefaultRenewalIntervals is how many maintenance periods ahead renewal
// looks. Looking more than one period ahead gives the maintenance loop a
// buffer in case the daemon is down during the final period before expiry.
const DefaultRenewalIntervals = 2

// AccessToken is a bearer token with its expiry. Value-semantic and
// immutable once constructed; renewal replaces the whole record.
type AccessToken struct {
	token     string
	expiresAt time.Time
	hash      string
}

// New creates an AccessToken. The token string must be non-empty and the
// expiry must be a real instant.
func New(tok string, expiresAt time.Time) (AccessToken, error) {
	return NewWithHash(tok, expiresAt, "")
}

// NewWithHash creates an AccessToken carrying the secondary claim the
// platform stages return alongside the token.
func NewWithHash(tok string, expiresAt time.Time, hash string) (AccessToken, error) {
	if tok == "" {
		return AccessToken{}, fmt.Errorf("access token cannot be empty")
	}
	if expiresAt.IsZero() {
		return AccessToken{}, fmt.Errorf("access token expiry cannot be zero")
	}
	return AccessToken{token: tok, expiresAt: expiresAt, hash: hash}, nil
}

// Token returns the bearer token string.
func (t AccessToken) Token() string {
	return t.token
}

// ExpiresAt returns the instant at which the token lapses.
func (t AccessToken) ExpiresAt() time.Time {
	return t.expiresAt
}

// Hash returns the secondary claim, or "" for stages that carry none.
func (t AccessToken) Hash() string {
	return t.hash
}

// IsZero reports whether the record has never been populated.
func (t AccessToken) IsZero() bool {
	return t.token == ""
}

// Expired reports whether the token has already lapsed.
func (t AccessToken) Expired() bool {
	return !time.Now().Before(t.expiresAt)
}

// NeedsRenewal reports whether the token is expired or will expire within
// the next intervals*period. intervals must be at least 1.
func (t AccessToken) NeedsRenewal(period time.Duration, intervals int) (bool, error) {
	if period <= 0 {
		return false, fmt.Errorf("renewal period must be positive, got %v", period)
	}
	if intervals < 1 {
		return false, fmt.Errorf("renewal intervals must be at least 1, got %d", intervals)
	}
	if t.Expired() {
		return true, nil
	}
	horizon := time.Now().Add(time.Duration(intervals) * period)
	return !horizon.Before(t.expiresAt), nil
}
