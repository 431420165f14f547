package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	// ErrInvalidCredentials is returned when the username or password is
	// rejected.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrNoToken is returned when the login API accepted the credentials
	// but returned no token.
	ErrNoToken = errors.New("login succeeded but no token was returned")
)

// Credentials is a login attempt.
type Credentials struct {
	Username string
	Password string

	// APIBaseURL is the login API to verify against. Ignored by verifiers
	// that do not call out.
	APIBaseURL string
}

// Verifier checks login credentials and returns the token the credential
// authority issued.
type Verifier interface {
	Verify(ctx context.Context, creds Credentials) (string, error)
}

// UpstreamVerifier posts credentials to {APIBaseURL}/login and expects a
// JSON {"token": "..."} body.
type UpstreamVerifier struct {
	client *http.Client
}

// NewUpstreamVerifier creates a verifier. A nil client uses a client with
// a 15 second timeout.
func NewUpstreamVerifier(client *http.Client) *UpstreamVerifier {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &UpstreamVerifier{client: client}
}

// Verify implements Verifier. Any non-2xx response is ErrInvalidCredentials.
func (v *UpstreamVerifier) Verify(ctx context.Context, creds Credentials) (string, error) {
	if creds.APIBaseURL == "" {
		return "", fmt.Errorf("API base URL is required")
	}

	body, err := json.Marshal(loginRequest{Username: creds.Username, Password: creds.Password})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	url := strings.TrimRight(creds.APIBaseURL, "/") + "/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := v.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to reach login API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", ErrInvalidCredentials
	}

	var out loginResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if out.Token == "" {
		return "", ErrNoToken
	}
	return out.Token, nil
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Token string `json:"token"`
}

// StaticVerifier checks credentials against a fixed set of bcrypt password
// hashes.
type StaticVerifier struct {
	hashes map[string][]byte
}

// NewStaticVerifier creates a verifier from username to bcrypt hash.
func NewStaticVerifier(users map[string]string) (*StaticVerifier, error) {
	hashes := make(map[string][]byte, len(users))
	for name, hash := range users {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return nil, fmt.Errorf("user %q: invalid password hash: %w", name, err)
		}
		hashes[name] = []byte(hash)
	}
	return &StaticVerifier{hashes: hashes}, nil
}

// Verify implements Verifier. The returned token is freshly generated.
func (v *StaticVerifier) Verify(_ context.Context, creds Credentials) (string, error) {
	hash, ok := v.hashes[creds.Username]
	if !ok {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(hash, []byte(creds.Password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return uuid.New().String(), nil
}

// HashPassword returns a bcrypt hash suitable for the static user list.
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", fmt.Errorf("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(hash), nil
}

// LoginMessage maps a verification error to the text shown on the login
// form.
func LoginMessage(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidCredentials):
		return "Invalid credentials. Please try again."
	case errors.Is(err, ErrNoToken):
		return "Login successful, but no token received."
	default:
		return "An error occurred. Check the API URL and your connection."
	}
}
