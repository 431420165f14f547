package auth

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strings"
)

var (
	// ErrInvalidToken is returned when a token is present but invalid.
	ErrInvalidToken = errors.New("invalid bearer token")

	// ErrMalformedAuthHeader is returned when the Authorization header format is wrong.
	ErrMalformedAuthHeader = errors.New("malformed authorization header")
)

// BearerTokenAuthenticator authenticates requests using a static bearer token.
// Every authenticated caller is bound to the same dashboard session.
type BearerTokenAuthenticator struct {
	token   []byte
	subject string
	session string
}

// NewBearerTokenAuthenticator creates a new bearer token authenticator.
// If token is empty, all requests pass through as unauthenticated.
func NewBearerTokenAuthenticator(token, subject, session string) *BearerTokenAuthenticator {
	var tokenBytes []byte
	if token != "" {
		tokenBytes = []byte(token)
	}
	return &BearerTokenAuthenticator{
		token:   tokenBytes,
		subject: subject,
		session: session,
	}
}

// AuthenticateRequest implements Authenticator.
func (a *BearerTokenAuthenticator) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	if len(a.token) == 0 {
		return nil, false, nil
	}

	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return nil, false, nil
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return nil, false, ErrMalformedAuthHeader
	}

	providedToken := strings.TrimPrefix(authHeader, "Bearer ")
	if providedToken == "" {
		return nil, false, ErrMalformedAuthHeader
	}

	if subtle.ConstantTimeCompare([]byte(providedToken), a.token) != 1 {
		return nil, false, ErrInvalidToken
	}

	return &Identity{
		Subject: a.subject,
		Session: a.session,
		Method:  a.Method(),
	}, true, nil
}

// Method implements AuthenticatorDescriptor.
func (a *BearerTokenAuthenticator) Method() string {
	return "bearer-token"
}
