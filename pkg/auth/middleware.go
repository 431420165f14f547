package auth

import (
	"log/slog"
	"net/http"
	"strings"
)

// Middleware authenticates requests before passing them on. The identity
// is attached to the request context.
type Middleware struct {
	authenticator Authenticator
	requireAuth   bool
	excluded      map[string]bool
	unauthorized  http.Handler
	logger        *slog.Logger
}

// MiddlewareOption configures a Middleware.
type MiddlewareOption func(*Middleware)

// WithRequireAuth rejects unauthenticated requests. Default: true.
func WithRequireAuth(require bool) MiddlewareOption {
	return func(m *Middleware) { m.requireAuth = require }
}

// WithExcludedPaths lets requests to the given paths through unauthenticated.
func WithExcludedPaths(paths ...string) MiddlewareOption {
	return func(m *Middleware) {
		for _, p := range paths {
			m.excluded[p] = true
		}
	}
}

// WithUnauthorizedHandler replaces the default 401 response, e.g. with a
// redirect to the login page.
func WithUnauthorizedHandler(h http.Handler) MiddlewareOption {
	return func(m *Middleware) { m.unauthorized = h }
}

// WithLogger sets the logger for rejected requests.
func WithLogger(logger *slog.Logger) MiddlewareOption {
	return func(m *Middleware) { m.logger = logger }
}

// NewMiddleware creates authentication middleware around authenticator.
func NewMiddleware(authenticator Authenticator, opts ...MiddlewareOption) *Middleware {
	m := &Middleware{
		authenticator: authenticator,
		requireAuth:   true,
		excluded:      make(map[string]bool),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.unauthorized == nil {
		m.unauthorized = http.HandlerFunc(unauthorized)
	}
	return m
}

// Wrap wraps an http.Handler with authentication.
func (m *Middleware) Wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.excluded[r.URL.Path] {
			next.ServeHTTP(w, r)
			return
		}

		id, ok, err := m.authenticator.AuthenticateRequest(r)
		if err != nil {
			m.logger.Debug("request rejected",
				slog.String("path", r.URL.Path),
				slog.String("error", err.Error()),
			)
			m.unauthorized.ServeHTTP(w, r)
			return
		}
		if !ok {
			if m.requireAuth {
				m.unauthorized.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r)
			return
		}

		next.ServeHTTP(w, r.WithContext(ContextWithIdentity(r.Context(), id)))
	})
}

func unauthorized(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("WWW-Authenticate", `Bearer realm="pmicdash"`)
	http.Error(w, "unauthorized", http.StatusUnauthorized)
}

// TokenTransport adds a bearer token to every outgoing request.
type TokenTransport struct {
	Token string
	Base  http.RoundTripper
}

// RoundTrip implements http.RoundTripper.
func (t *TokenTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	base := t.Base
	if base == nil {
		base = http.DefaultTransport
	}
	if t.Token == "" || strings.TrimSpace(req.Header.Get("Authorization")) != "" {
		return base.RoundTrip(req)
	}
	req = req.Clone(req.Context())
	req.Header.Set("Authorization", "Bearer "+t.Token)
	return base.RoundTrip(req)
}
