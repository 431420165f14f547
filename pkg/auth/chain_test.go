package auth

import (
	"errors"
	"net/http"
	"testing"
)

func TestChainAuthenticator_FirstWins(t *testing.T) {
	auth1 := AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) {
		return &Identity{Subject: "auth1"}, true, nil
	})
	auth2 := AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) {
		t.Error("auth2 should not be called when auth1 succeeds")
		return &Identity{Subject: "auth2"}, true, nil
	})

	chain := NewChainAuthenticator(auth1, auth2)
	req, _ := http.NewRequest("GET", "/", nil)

	id, ok, err := chain.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !ok || id.Subject != "auth1" {
		t.Errorf("Expected auth1 to win, got %+v, %v", id, ok)
	}
}

func TestChainAuthenticator_FallsThrough(t *testing.T) {
	none := AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) {
		return nil, false, nil
	})
	auth2 := AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) {
		return &Identity{Subject: "auth2"}, true, nil
	})

	chain := NewChainAuthenticator(none, nil, auth2)
	req, _ := http.NewRequest("GET", "/", nil)

	id, ok, err := chain.AuthenticateRequest(req)
	if err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if !ok || id.Subject != "auth2" {
		t.Errorf("Expected auth2, got %+v, %v", id, ok)
	}
}

func TestChainAuthenticator_ErrorStopsChain(t *testing.T) {
	expectedErr := errors.New("invalid token")
	auth1 := AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) {
		return nil, false, expectedErr
	})
	auth2 := AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) {
		t.Error("auth2 should not be called after an error")
		return nil, false, nil
	})

	chain := NewChainAuthenticator(auth1, auth2)
	req, _ := http.NewRequest("GET", "/", nil)

	_, ok, err := chain.AuthenticateRequest(req)
	if err != expectedErr {
		t.Errorf("Expected %v, got %v", expectedErr, err)
	}
	if ok {
		t.Error("Expected authentication to fail")
	}
}

func TestChainAuthenticator_NoneMatch(t *testing.T) {
	chain := NewChainAuthenticator()
	req, _ := http.NewRequest("GET", "/", nil)

	id, ok, err := chain.AuthenticateRequest(req)
	if id != nil || ok || err != nil {
		t.Errorf("Expected (nil, false, nil), got (%v, %v, %v)", id, ok, err)
	}
}

func TestChainAuthenticator_Methods(t *testing.T) {
	chain := NewChainAuthenticator(
		NewSessionCookieAuthenticator(func(string) (string, bool) { return "", false }),
		NewBearerTokenAuthenticator("t", "service:cli", "cli"),
		AuthenticatorFunc(func(r *http.Request) (*Identity, bool, error) { return nil, false, nil }),
	)

	methods := chain.Methods()
	if len(methods) != 2 || methods[0] != "session-cookie" || methods[1] != "bearer-token" {
		t.Errorf("Methods() = %v", methods)
	}
}
