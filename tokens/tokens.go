// Package tokens verifies bearer tokens issued by an external identity
// provider and turns them into Claims. It never issues or signs tokens.
package tokens

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidToken is returned when the token is malformed or its signature does not verify
	ErrInvalidToken = errors.New("invalid token")

	// ErrTokenExpired is returned when the token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrInvalidIssuer is returned when the token issuer is invalid
	ErrInvalidIssuer = errors.New("invalid issuer")

	// ErrInvalidAudience is returned when the token audience is invalid
	ErrInvalidAudience = errors.New("invalid audience")

	// ErrMissingClaim is returned when a required claim is missing
	ErrMissingClaim = errors.New("missing required claim")

	// ErrKeysUnavailable is returned when signing keys could not be fetched.
	// Unlike the other errors it says nothing about the token itself.
	ErrKeysUnavailable = errors.New("signing keys unavailable")
)

// Claims are the verified identity claims of a bearer token
type Claims struct {
	Subject   string
	Email     string
	Name      string
	Issuer    string
	IssuedAt  time.Time
	ExpiresAt time.Time
}

// Verifier verifies a raw bearer token
type Verifier interface {
	Verify(ctx context.Context, raw string) (*Claims, error)
}

// IsRejected reports whether err means the token itself was rejected, as
// opposed to the verifier being unable to decide.
func IsRejected(err error) bool {
	return err != nil && !errors.Is(err, ErrKeysUnavailable)
}
