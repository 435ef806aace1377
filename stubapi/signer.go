// Package stubapi is a self-contained MedBuddy backend stub. It serves
// the slice of the API contract the admin client consumes (login,
// refresh-token rotation, profile, user and package management, payment
// reads) so the client can be developed and integration-tested without
// the production backend.
package stubapi

import (
	"crypto/rand"
	"crypto/rsa"
	"fmt"
	"sync"
	"time"

	"github.com/go-jose/go-jose/v3"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Signer mints and verifies the stub's RS256 access tokens and exposes
// the public key as a JWKS.
type Signer struct {
	mu     sync.RWMutex
	key    *rsa.PrivateKey
	jwk    jose.JSONWebKey
	kid    string
	issuer string
}

// NewSigner generates a fresh signing key. Stub tokens do not survive a
// restart, which is fine for a dev backend.
func NewSigner(issuer string) (*Signer, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	kid := uuid.NewString()
	return &Signer{
		key: key,
		jwk: jose.JSONWebKey{
			Key:       key.Public(),
			KeyID:     kid,
			Algorithm: string(jose.RS256),
			Use:       "sig",
		},
		kid:    kid,
		issuer: issuer,
	}, nil
}

// Mint signs an access token for the subject with the given role and TTL.
func (s *Signer) Mint(subject, email, role string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"iss":   s.issuer,
		"sub":   subject,
		"email": email,
		"role":  role,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
		"jti":   uuid.NewString(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	s.mu.RLock()
	defer s.mu.RUnlock()
	token.Header["kid"] = s.kid
	signed, err := token.SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign access token: %w", err)
	}
	return signed, nil
}

// Verify parses and validates an access token, returning its claims.
func (s *Signer) Verify(raw string) (jwt.MapClaims, error) {
	claims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodRSA); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		s.mu.RLock()
		defer s.mu.RUnlock()
		return &s.key.PublicKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("verify access token: %w", err)
	}
	return claims, nil
}

// PublicJWKS exposes the verification key for debugging clients.
func (s *Signer) PublicJWKS() jose.JSONWebKeySet {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return jose.JSONWebKeySet{Keys: []jose.JSONWebKey{s.jwk.Public()}}
}
