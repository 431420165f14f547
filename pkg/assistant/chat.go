package assistant

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
)

// ChatSession is a Gemini conversation. Only completed turns are kept in
// history; a failed exchange leaves it untouched.
type ChatSession struct {
	client *Client

	mu      sync.Mutex
	history []content
}

// SendStream sends message and streams the reply over server-sent events.
func (s *ChatSession) SendStream(ctx context.Context, message string, fn func(fragment string)) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	turn := content{Role: roleUser, Parts: []part{{Text: message}}}
	req := generateRequest{
		Contents:          append(append([]content(nil), s.history...), turn),
		SystemInstruction: &content{Parts: []part{{Text: s.client.systemInstruction}}},
	}

	reply, err := s.client.stream(ctx, req, fn)
	if err != nil {
		return "", fmt.Errorf("failed to stream chat reply: %w", err)
	}

	s.history = append(s.history, turn, content{Role: roleModel, Parts: []part{{Text: reply}}})
	return reply, nil
}

// Turns returns the number of completed exchanges.
func (s *ChatSession) Turns() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.history) / 2
}

func (c *Client) stream(ctx context.Context, body generateRequest, fn func(string)) (string, error) {
	req, err := c.newRequest(ctx, ":streamGenerateContent?alt=sse", body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Accept", "text/event-stream")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call %s: %w", c.model, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", parseError(resp)
	}

	var full strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "" {
			continue
		}

		var chunk generateResponse
		if err := json.Unmarshal([]byte(data), &chunk); err != nil {
			return "", fmt.Errorf("failed to decode stream chunk: %w", err)
		}
		text := chunk.text()
		if text == "" {
			continue
		}
		full.WriteString(text)
		if fn != nil {
			fn(text)
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read stream: %w", err)
	}
	if full.Len() == 0 {
		return "", ErrEmptyResponse
	}

	c.logger.Debug("chat reply streamed", slog.Int("length", full.Len()))
	return full.String(), nil
}
