package auth

import (
	"errors"
	"net/http"
	"time"
)

// SessionCookieName is the cookie holding the dashboard session token.
const SessionCookieName = "authToken"

// ErrInvalidSession is returned for a session cookie that names no live
// session.
var ErrInvalidSession = errors.New("invalid or expired session")

// SessionLookup resolves a session token to the username it was issued to.
type SessionLookup func(token string) (username string, ok bool)

// SessionCookieAuthenticator authenticates browser requests by their
// session cookie.
type SessionCookieAuthenticator struct {
	lookup SessionLookup
}

// NewSessionCookieAuthenticator creates an authenticator backed by lookup.
func NewSessionCookieAuthenticator(lookup SessionLookup) *SessionCookieAuthenticator {
	return &SessionCookieAuthenticator{lookup: lookup}
}

// AuthenticateRequest implements Authenticator.
func (a *SessionCookieAuthenticator) AuthenticateRequest(r *http.Request) (*Identity, bool, error) {
	cookie, err := r.Cookie(SessionCookieName)
	if err != nil || cookie.Value == "" {
		return nil, false, nil
	}

	username, ok := a.lookup(cookie.Value)
	if !ok {
		return nil, false, ErrInvalidSession
	}

	return &Identity{
		Subject: "user:" + username,
		Session: cookie.Value,
		Method:  a.Method(),
	}, true, nil
}

// Method implements AuthenticatorDescriptor.
func (a *SessionCookieAuthenticator) Method() string {
	return "session-cookie"
}

// SetSessionCookie issues the session cookie. It lives for the browser
// session only.
func SetSessionCookie(w http.ResponseWriter, token string, secure bool) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    token,
		Path:     "/",
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		Expires:  time.Unix(0, 0),
		HttpOnly: true,
	})
}
