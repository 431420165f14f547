package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMiddleware_AuthenticatedRequest(t *testing.T) {
	middleware := NewMiddleware(NewBearerTokenAuthenticator("secret", "service:cli", "cli"))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := IdentityFromContext(r.Context())
		if id == nil {
			t.Error("Expected identity in context")
			return
		}
		if id.Session != "cli" {
			t.Errorf("Expected session 'cli', got %q", id.Session)
		}
		w.WriteHeader(http.StatusOK)
	})

	req := httptest.NewRequest("GET", "/api/state", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()

	middleware.Wrap(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", rec.Code)
	}
}

func TestMiddleware_UnauthenticatedRequest_Required(t *testing.T) {
	middleware := NewMiddleware(NewBearerTokenAuthenticator("secret", "service:cli", "cli"))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called for unauthenticated request")
	})

	req := httptest.NewRequest("GET", "/api/state", nil)
	rec := httptest.NewRecorder()

	middleware.Wrap(handler).ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("Expected WWW-Authenticate header")
	}
}

func TestMiddleware_UnauthenticatedRequest_NotRequired(t *testing.T) {
	middleware := NewMiddleware(NewBearerTokenAuthenticator("secret", "service:cli", "cli"), WithRequireAuth(false))

	handlerCalled := false
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		if id := IdentityFromContext(r.Context()); id != nil {
			t.Errorf("Expected nil identity, got %+v", id)
		}
	})

	req := httptest.NewRequest("GET", "/login", nil)
	middleware.Wrap(handler).ServeHTTP(httptest.NewRecorder(), req)

	if !handlerCalled {
		t.Error("Expected handler to be called")
	}
}

func TestMiddleware_InvalidCredentials(t *testing.T) {
	failing := AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) {
		return nil, false, errors.New("bad token")
	})
	middleware := NewMiddleware(failing, WithRequireAuth(false))

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("Handler should not be called for invalid credentials")
	})

	rec := httptest.NewRecorder()
	middleware.Wrap(handler).ServeHTTP(rec, httptest.NewRequest("GET", "/api/state", nil))

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401, got %d", rec.Code)
	}
}

func TestMiddleware_ExcludedPaths(t *testing.T) {
	middleware := NewMiddleware(NewBearerTokenAuthenticator("secret", "service:cli", "cli"),
		WithExcludedPaths("/healthz", "/readyz", "/metrics"))

	for _, path := range []string{"/healthz", "/readyz", "/metrics"} {
		t.Run(path, func(t *testing.T) {
			called := false
			handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { called = true })

			middleware.Wrap(handler).ServeHTTP(httptest.NewRecorder(), httptest.NewRequest("GET", path, nil))
			if !called {
				t.Errorf("Expected %s to bypass authentication", path)
			}
		})
	}
}

func TestMiddleware_UnauthorizedHandler(t *testing.T) {
	redirect := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
	})
	middleware := NewMiddleware(NewChainAuthenticator(), WithUnauthorizedHandler(redirect))

	rec := httptest.NewRecorder()
	middleware.Wrap(http.NotFoundHandler()).ServeHTTP(rec, httptest.NewRequest("GET", "/", nil))

	if rec.Code != http.StatusSeeOther || rec.Header().Get("Location") != "/login" {
		t.Errorf("Expected redirect to /login, got %d %q", rec.Code, rec.Header().Get("Location"))
	}
}

func TestTokenTransport(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get("Authorization")
	}))
	defer server.Close()

	client := &http.Client{Transport: &TokenTransport{Token: "secret"}}
	resp, err := client.Get(server.URL)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()

	if got != "Bearer secret" {
		t.Errorf("Authorization = %q", got)
	}
}
