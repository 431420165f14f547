package auth

import (
	"net/http"
)

// ChainAuthenticator tries multiple authenticators in sequence.
// The first authenticator to successfully authenticate the request wins.
// If an authenticator returns an error (invalid credentials), the chain stops
// and returns that error.
type ChainAuthenticator struct {
	authenticators []Authenticator
}

// NewChainAuthenticator creates a new chain authenticator.
// Authenticators are tried in the order provided. Nil entries are skipped.
func NewChainAuthenticator(authenticators ...Authenticator) *ChainAuthenticator {
	authsCopy := make([]Authenticator, 0, len(authenticators))
	for _, a := range authenticators {
		if a != nil {
			authsCopy = append(authsCopy, a)
		}
	}
	return &ChainAuthenticator{authenticators: authsCopy}
}

// AuthenticateRequest implements Authenticator.
func (c *ChainAuthenticator) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	for _, auth := range c.authenticators {
		identity, ok, err := auth.AuthenticateRequest(r)
		if err != nil {
			return nil, false, err
		}
		if ok {
			return identity, true, nil
		}
	}
	return nil, false, nil
}

// Methods returns the method names of all authenticators in the chain.
func (c *ChainAuthenticator) Methods() []string {
	var methods []string
	for _, a := range c.authenticators {
		if desc, ok := a.(AuthenticatorDescriptor); ok {
			methods = append(methods, desc.Method())
		}
	}
	return methods
}
