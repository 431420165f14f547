// Package assistant talks to the Gemini API on behalf of a dashboard
// session: one-shot voltage profile suggestions and a streaming chat.
package assistant

import (
	"context"
	"errors"
	"sync"

	"github.com/pmicdash/pmicdash/pkg/rail"
)

// Defaults for the Gemini backend.
const (
	DefaultModel   = "gemini-2.5-flash"
	DefaultBaseURL = "https://generativelanguage.googleapis.com/v1beta"

	DefaultSystemInstruction = "You are a friendly and knowledgeable PMIC (Power Management Integrated Circuit) expert assistant. " +
		"Your role is to help users understand and control this dashboard. " +
		"You can answer questions about voltage rails (VDD_CPU, VDD_GPU, VDD_MEM), telemetry (temperature, current), " +
		"and general power management concepts. Be concise and helpful."
)

// ErrBusy is returned when a request is already in flight for the same
// control group.
var ErrBusy = errors.New("assistant request already in progress")

// ErrEmptyResponse is returned when the model produced no candidate text.
var ErrEmptyResponse = errors.New("empty model response")

// Suggester produces a voltage profile for a free-text goal. The returned
// profile is unclamped.
type Suggester interface {
	Suggest(ctx context.Context, goal string) (rail.Profile, error)
}

// Chat is a stateful conversation. SendStream calls fn with each text
// fragment in arrival order and returns the concatenated reply.
type Chat interface {
	SendStream(ctx context.Context, message string, fn func(fragment string)) (string, error)
}

// ChatFactory opens a new conversation.
type ChatFactory interface {
	NewChat() Chat
}

// Gate admits at most one caller at a time. The zero value is ready to use.
type Gate struct {
	mu sync.Mutex
}

// Enter acquires the gate, or returns ErrBusy if it is held. The returned
// function releases it.
func (g *Gate) Enter() (func(), error) {
	if !g.mu.TryLock() {
		return nil, ErrBusy
	}
	return g.mu.Unlock, nil
}
