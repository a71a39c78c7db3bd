package middleware

import (
	"net/http"
	"strings"

	"connectrpc.com/authn"
)

// AuthorizationValue holds a credential string extracted from request headers
type AuthorizationValue struct {
	Token string
}

// NewAuthorizationValue creates an AuthorizationValue
func NewAuthorizationValue(token string) AuthorizationValue {
	return AuthorizationValue{Token: token}
}

// AuthorizationFunc extracts an AuthorizationValue from request headers.
// It reports false when the header is absent or malformed.
type AuthorizationFunc func(h http.Header) (AuthorizationValue, bool)

// BearerAuthorization extracts the token from an "Authorization: Bearer TOKEN" header
func BearerAuthorization(h http.Header) (AuthorizationValue, bool) {
	if h == nil {
		return AuthorizationValue{}, false
	}
	token, found := authn.BearerToken(&http.Request{Header: h})
	if !found {
		return AuthorizationValue{}, false
	}

	token = strings.TrimSpace(token)
	if token == "" {
		return AuthorizationValue{}, false
	}
	return NewAuthorizationValue(token), true
}

// HeaderValueAuthorization returns an AuthorizationFunc reading the raw value
// of a custom header such as X-API-Key.
func HeaderValueAuthorization(name string) AuthorizationFunc {
	return func(h http.Header) (AuthorizationValue, bool) {
		if h == nil {
			return AuthorizationValue{}, false
		}
		token := strings.TrimSpace(h.Get(name))
		if token == "" {
			return AuthorizationValue{}, false
		}
		return NewAuthorizationValue(token), true
	}
}
