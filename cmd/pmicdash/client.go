package main

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pmicdash/pmicdash/pkg/auth"
)

// apiClient talks to a running dashboard's JSON API.
type apiClient struct {
	baseURL string
	http    *http.Client
}

func newClient() *apiClient {
	return newClientWith(serverAddr, authToken, nil)
}

func newClientWith(baseURL, token string, base http.RoundTripper) *apiClient {
	return &apiClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		http: &http.Client{
			Transport: &auth.TokenTransport{Token: token, Base: base},
		},
	}
}

type apiErrorBody struct {
	Error string `json:"error"`
}

func (c *apiClient) newRequest(ctx context.Context, method, path string, body any) (*http.Request, error) {
	var r io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		r = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, r)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	return req, nil
}

// do sends a JSON request and decodes the JSON response into out.
func (c *apiClient) do(ctx context.Context, method, path string, body, out any) error {
	req, err := c.newRequest(ctx, method, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return parseError(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

// chat posts message and calls fn with each streamed fragment. It returns
// the full reply from the final "done" event.
func (c *apiClient) chat(ctx context.Context, message string, fn func(string)) (string, error) {
	req, err := c.newRequest(ctx, http.MethodPost, "/api/chat", map[string]string{"message": message})
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp)
	}

	var event string
	scanner := bufio.NewScanner(resp.Body)
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data := []byte(strings.TrimPrefix(line, "data: "))
			switch event {
			case "done":
				var done struct {
					Reply string `json:"reply"`
				}
				if err := json.Unmarshal(data, &done); err != nil {
					return "", fmt.Errorf("failed to decode reply: %w", err)
				}
				return done.Reply, nil
			case "error":
				var e apiErrorBody
				_ = json.Unmarshal(data, &e)
				return "", fmt.Errorf("chat failed: %s", e.Error)
			default:
				var frag struct {
					Text string `json:"text"`
				}
				if err := json.Unmarshal(data, &frag); err == nil && fn != nil {
					fn(frag.Text)
				}
			}
		case line == "":
			event = ""
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stream: %w", err)
	}
	return "", fmt.Errorf("stream ended without a reply")
}

func parseError(resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<16))
	var e apiErrorBody
	if err := json.Unmarshal(body, &e); err == nil && e.Error != "" {
		return fmt.Errorf("%s (HTTP %d)", e.Error, resp.StatusCode)
	}
	return fmt.Errorf("HTTP %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
}

func requestContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 90*time.Second)
}
