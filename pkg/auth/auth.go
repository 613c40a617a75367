// Package auth provides request authenticators for watsonx.ai.
//
// The client never inspects credentials itself. It calls an Authenticator
// on every outgoing request, so callers can plug in IAM API keys, static
// bearer tokens, or their own scheme.
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// Authenticator decorates an outgoing request with credentials.
type Authenticator interface {
	Authenticate(ctx context.Context, req *http.Request) error
}

// AuthenticatorFunc adapts a function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, req *http.Request) error

// Authenticate calls f.
func (f AuthenticatorFunc) Authenticate(ctx context.Context, req *http.Request) error {
	return f(ctx, req)
}

// NoAuth leaves requests untouched. Useful against local gateways and test
// servers.
var NoAuth Authenticator = AuthenticatorFunc(func(context.Context, *http.Request) error { return nil })

// ErrEmptyToken is returned when a bearer token is blank.
var ErrEmptyToken = errors.New("auth: token is empty")

// BearerToken sets a fixed Authorization header.
type BearerToken struct {
	token string
}

// NewBearerToken returns an authenticator for a pre-issued token, such as an
// IAM token obtained out of band or a CP4D bearer token.
func NewBearerToken(token string) (*BearerToken, error) {
	token = strings.TrimSpace(token)
	token = strings.TrimPrefix(token, "Bearer ")
	if token == "" {
		return nil, ErrEmptyToken
	}
	return &BearerToken{token: token}, nil
}

// Authenticate sets the Authorization header.
func (b *BearerToken) Authenticate(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "Bearer "+b.token)
	return nil
}
