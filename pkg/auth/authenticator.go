// Package auth provides authentication for the dashboard.
//
// Browser sessions carry an authToken cookie issued at login; API and CLI
// clients send a pre-shared bearer token. Both are Authenticators and are
// combined with a ChainAuthenticator.
package auth

import (
	"context"
	"net/http"
)

// Identity represents an authenticated caller.
type Identity struct {
	// Subject is the primary identifier, e.g. "user:alice" or "service:cli".
	Subject string

	// Session is the dashboard session the caller acts on.
	Session string

	// Method names the authenticator that produced the identity.
	Method string
}

// Authenticator authenticates HTTP requests.
// Implementations should be safe for concurrent use.
type Authenticator interface {
	// AuthenticateRequest attempts to authenticate the given request.
	//
	// Returns:
	//   - (*Identity, true, nil): Authentication succeeded
	//   - (nil, false, nil): Authentication not attempted (no credentials present)
	//   - (nil, false, error): Authentication failed (invalid credentials)
	AuthenticateRequest(r *http.Request) (*Identity, bool, error)
}

// AuthenticatorDescriptor is implemented by authenticators that can name
// their method.
type AuthenticatorDescriptor interface {
	Method() string
}

// AuthenticatorFunc is an adapter to allow plain functions to be used as Authenticators.
type AuthenticatorFunc func(r *http.Request) (*Identity, bool, error)

// AuthenticateRequest implements Authenticator.
func (f AuthenticatorFunc) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	return f(r)
}

type contextKey int

const (
	identityKey contextKey = iota
)

// IdentityFromContext retrieves the authenticated Identity from the context.
// Returns nil if no identity is present.
func IdentityFromContext(ctx context.Context) *Identity {
	id, _ := ctx.Value(identityKey).(*Identity)
	return id
}

// ContextWithIdentity returns a new context with the given Identity attached.
func ContextWithIdentity(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}
