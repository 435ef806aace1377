package store

import (
	"encoding/json"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Credentials is a convenience view over a Store for the fixed keys the
// session layer cares about.
type Credentials struct {
	Store Store
}

// AccessToken returns the stored access token, or "".
func (c Credentials) AccessToken() string {
	return c.Store.Get(KeyAccessToken)
}

// RefreshToken returns the stored refresh token, or "".
func (c Credentials) RefreshToken() string {
	return c.Store.Get(KeyRefreshToken)
}

// SetTokens persists a new credential pair. An empty refresh token leaves
// the previously stored one in place, matching backends that rotate the
// access token without reissuing the refresh token.
func (c Credentials) SetTokens(accessToken, refreshToken string) {
	if accessToken != "" {
		c.Store.Set(KeyAccessToken, accessToken)
	}
	if refreshToken != "" {
		c.Store.Set(KeyRefreshToken, refreshToken)
	}
}

// User returns the cached profile, or nil when absent or undecodable.
func (c Credentials) User() map[string]any {
	raw := c.Store.Get(KeyUser)
	if raw == "" {
		return nil
	}
	var profile map[string]any
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return nil
	}
	return profile
}

// SaveUser caches the profile as JSON. A nil profile removes the entry.
func (c Credentials) SaveUser(profile map[string]any) {
	if profile == nil {
		c.Store.Remove(KeyUser)
		return
	}
	raw, err := json.Marshal(profile)
	if err != nil {
		return
	}
	c.Store.Set(KeyUser, string(raw))
}

// Clear purges every credential, including the cached profile.
func (c Credentials) Clear() {
	c.Store.Clear()
}

// IsExpired reports whether the bearer token's exp claim is in the past.
// Decisions are fail-closed: a malformed token, an unparseable payload, or
// a missing exp claim all read as expired.
func IsExpired(token string) bool {
	return ExpiresWithin(token, 0)
}

// ExpiresWithin reports whether the token's exp claim falls inside the
// given window from now. A zero window is a plain expiry check. Fail-closed
// like IsExpired.
func ExpiresWithin(token string, window time.Duration) bool {
	if token == "" {
		return true
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return true
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return true
	}
	return !exp.Time.After(time.Now().Add(window))
}
