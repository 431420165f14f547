package assistant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2/google"

	"github.com/pmicdash/pmicdash/pkg/rail"
)

const (
	defaultTimeout  = 60 * time.Second
	generativeScope = "https://www.googleapis.com/auth/generative-language"
)

// Config holds configuration for the Gemini client.
type Config struct {
	// APIKey is sent as x-goog-api-key. If empty, Application Default
	// Credentials are used instead.
	APIKey            string
	Model             string
	BaseURL           string // Optional, defaults to the public Gemini endpoint
	Timeout           time.Duration
	SystemInstruction string
	Logger            *slog.Logger
}

// Client is a Gemini REST client. It implements Suggester and ChatFactory.
type Client struct {
	apiKey            string
	model             string
	baseURL           string
	systemInstruction string
	client            *http.Client
	logger            *slog.Logger
}

// New creates a Gemini client.
func New(cfg Config) (*Client, error) {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	if cfg.APIKey != "" {
		return NewWithClient(cfg, &http.Client{Timeout: timeout}), nil
	}

	client, err := google.DefaultClient(context.Background(), generativeScope)
	if err != nil {
		return nil, fmt.Errorf("API key is required when no default credentials are available: %w", err)
	}
	client.Timeout = timeout
	return NewWithClient(cfg, client), nil
}

// NewWithClient creates a client using a custom HTTP client (for testing).
func NewWithClient(cfg Config, client *http.Client) *Client {
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	baseURL := strings.TrimRight(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	instruction := cfg.SystemInstruction
	if instruction == "" {
		instruction = DefaultSystemInstruction
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		apiKey:            cfg.APIKey,
		model:             model,
		baseURL:           baseURL,
		systemInstruction: instruction,
		client:            client,
		logger:            logger.With(slog.String("component", "assistant")),
	}
}

// Model returns the model name requests are sent to.
func (c *Client) Model() string {
	return c.model
}

// Suggest asks the model for a voltage profile matching goal. The response
// is constrained to a JSON object with integer vdd-cpu, vdd-gpu and vdd-mem
// fields. The caller is responsible for clamping.
func (c *Client) Suggest(ctx context.Context, goal string) (rail.Profile, error) {
	req := generateRequest{
		Contents: []content{{Role: roleUser, Parts: []part{{Text: suggestionPrompt(goal)}}}},
		GenerationConfig: &generationConfig{
			ResponseMimeType: "application/json",
			ResponseSchema:   profileSchema,
		},
	}

	var resp generateResponse
	if err := c.post(ctx, ":generateContent", req, &resp); err != nil {
		return rail.Profile{}, fmt.Errorf("failed to generate suggestion: %w", err)
	}

	text := strings.TrimSpace(resp.text())
	if text == "" {
		return rail.Profile{}, ErrEmptyResponse
	}

	var profile suggestedProfile
	if err := json.Unmarshal([]byte(text), &profile); err != nil {
		return rail.Profile{}, fmt.Errorf("failed to decode suggested profile: %w", err)
	}
	if profile.CPU == nil || profile.GPU == nil || profile.MEM == nil {
		return rail.Profile{}, fmt.Errorf("suggested profile is missing a rail: %s", text)
	}

	c.logger.Debug("suggestion received",
		slog.Int("cpu_mv", *profile.CPU),
		slog.Int("gpu_mv", *profile.GPU),
		slog.Int("mem_mv", *profile.MEM),
	)
	return rail.Profile{CPU: *profile.CPU, GPU: *profile.GPU, MEM: *profile.MEM}, nil
}

// NewChat opens a conversation seeded with the system instruction.
func (c *Client) NewChat() Chat {
	return &ChatSession{client: c}
}

func suggestionPrompt(goal string) string {
	return fmt.Sprintf("Based on the user goal \"%s\", suggest an optimal and safe voltage profile for a PMIC. "+
		"The values must be in millivolts (mV). Adhere to these constraints: "+
		"VDD_CPU between 800-1500, VDD_GPU between 800-1500, VDD_MEM between 1100-1800. "+
		"Provide only the JSON object.", goal)
}

func (c *Client) endpoint(method string) string {
	return c.baseURL + "/models/" + c.model + method
}

func (c *Client) newRequest(ctx context.Context, method string, body any) (*http.Request, error) {
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(method), bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("x-goog-api-key", c.apiKey)
	}
	return req, nil
}

func (c *Client) post(ctx context.Context, method string, body, out any) error {
	req, err := c.newRequest(ctx, method, body)
	if err != nil {
		return err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to call %s: %w", c.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return parseError(resp)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// APIError is a non-2xx response from the Gemini API.
type APIError struct {
	StatusCode int
	Status     string
	Message    string
}

func (e *APIError) Error() string {
	if e.Status != "" {
		return fmt.Sprintf("gemini API error: %s (status: %s)", e.Message, e.Status)
	}
	return fmt.Sprintf("gemini API error: status %d, body: %s", e.StatusCode, e.Message)
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	var errResp errorResponse
	if json.Unmarshal(body, &errResp) == nil && errResp.Error.Message != "" {
		return &APIError{StatusCode: resp.StatusCode, Status: errResp.Error.Status, Message: errResp.Error.Message}
	}
	return &APIError{StatusCode: resp.StatusCode, Message: string(body)}
}

const (
	roleUser  = "user"
	roleModel = "model"
)

type part struct {
	Text string `json:"text"`
}

type content struct {
	Role  string `json:"role,omitempty"`
	Parts []part `json:"parts"`
}

type schema struct {
	Type        string             `json:"type"`
	Description string             `json:"description,omitempty"`
	Properties  map[string]*schema `json:"properties,omitempty"`
	Required    []string           `json:"required,omitempty"`
}

var profileSchema = &schema{
	Type: "OBJECT",
	Properties: map[string]*schema{
		"vdd-cpu": {Type: "INTEGER", Description: "CPU voltage in mV"},
		"vdd-gpu": {Type: "INTEGER", Description: "GPU voltage in mV"},
		"vdd-mem": {Type: "INTEGER", Description: "Memory voltage in mV"},
	},
	Required: []string{"vdd-cpu", "vdd-gpu", "vdd-mem"},
}

type generationConfig struct {
	ResponseMimeType string  `json:"responseMimeType,omitempty"`
	ResponseSchema   *schema `json:"responseSchema,omitempty"`
}

type generateRequest struct {
	Contents          []content         `json:"contents"`
	SystemInstruction *content          `json:"systemInstruction,omitempty"`
	GenerationConfig  *generationConfig `json:"generationConfig,omitempty"`
}

type generateResponse struct {
	Candidates []struct {
		Content      content `json:"content"`
		FinishReason string  `json:"finishReason,omitempty"`
	} `json:"candidates"`
}

func (r generateResponse) text() string {
	if len(r.Candidates) == 0 {
		return ""
	}
	var sb strings.Builder
	for _, p := range r.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String()
}

type suggestedProfile struct {
	CPU *int `json:"vdd-cpu"`
	GPU *int `json:"vdd-gpu"`
	MEM *int `json:"vdd-mem"`
}

type errorResponse struct {
	Error struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Status  string `json:"status"`
	} `json:"error"`
}
