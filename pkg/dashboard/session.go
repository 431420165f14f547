// Package dashboard binds a rail model to the operator-facing controls of
// one logged-in session: the event log, the AI suggestion flow, and the
// assistant chat.
package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/pmicdash/pmicdash/pkg/assistant"
	"github.com/pmicdash/pmicdash/pkg/clock"
	"github.com/pmicdash/pmicdash/pkg/eventlog"
	"github.com/pmicdash/pmicdash/pkg/notify"
	"github.com/pmicdash/pmicdash/pkg/pmic"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

var (
	// ErrDisabled is returned by control operations while the PMIC output
	// is off.
	ErrDisabled = errors.New("PMIC is disabled")

	// ErrBusy is returned when a suggestion or chat request is already in
	// flight for the session.
	ErrBusy = assistant.ErrBusy

	ErrEmptyPrompt      = errors.New("prompt cannot be empty")
	ErrEmptyMessage     = errors.New("message cannot be empty")
	ErrNoSuggestion     = errors.New("no AI suggestion available to apply")
	ErrSuggestionFailed = errors.New("failed to get AI suggestion")
	ErrChatFailed       = errors.New("failed to get chat response from AI")
)

// Chat text shown in the conversation.
const (
	Greeting     = "Hello! I am your PMIC Assistant. How can I help you today?"
	ChatFallback = "Sorry, I encountered an error. Please try again."
)

// LabelAISuggested is the profile label used when applying a suggestion.
const LabelAISuggested = "AI Suggested"

// Message senders.
const (
	SenderUser = "user"
	SenderAI   = "ai"
)

// Assistant request kinds and outcomes reported to an Observer.
const (
	KindSuggestion = "suggestion"
	KindChat       = "chat"

	OutcomeSuccess = "success"
	OutcomeError   = "error"
	OutcomeBusy    = "busy"
)

// Message is one entry of the chat conversation.
type Message struct {
	Sender string    `json:"sender"`
	Text   string    `json:"text"`
	Time   time.Time `json:"time"`
}

// Observer is told the outcome of each assistant request.
type Observer interface {
	ObserveAssistant(kind, outcome string)
}

// View is what the dashboard renders: the system state plus the last
// telemetry reading, absent while disabled.
type View struct {
	ID         string        `json:"id"`
	Username   string        `json:"username"`
	State      pmic.State    `json:"state"`
	Sample     *pmic.Sample  `json:"sample,omitempty"`
	Suggestion *rail.Profile `json:"suggestion,omitempty"`
}

// Session is one operator's dashboard.
type Session struct {
	id       string
	username string
	created  time.Time

	model       *pmic.Model
	log         *eventlog.Log
	sink        eventlog.Sink
	broadcaster *notify.Broadcaster
	runner      *pmic.Runner

	suggester assistant.Suggester
	chat      assistant.Chat
	observer  Observer
	clock     clock.Clock
	logger    *slog.Logger

	suggestGate assistant.Gate
	chatGate    assistant.Gate

	mu           sync.Mutex
	pending      *rail.Profile
	conversation []Message
}

// ID returns the session token.
func (s *Session) ID() string { return s.id }

// Username returns the operator the session was opened for.
func (s *Session) Username() string { return s.username }

// Created returns when the session was opened.
func (s *Session) Created() time.Time { return s.created }

// Model returns the session's rail model.
func (s *Session) Model() *pmic.Model { return s.model }

// Log returns the session's event log.
func (s *Session) Log() *eventlog.Log { return s.log }

// Subscribe returns a feed of this session's change events.
func (s *Session) Subscribe(buffer int) (<-chan notify.Event, func()) {
	return s.broadcaster.Subscribe(buffer)
}

// initialize writes the start-up lines and seeds the conversation.
func (s *Session) initialize() {
	s.sink.Append("Dashboard Initialized. PMIC ready.")
	s.mu.Lock()
	s.conversation = append(s.conversation, s.message(SenderAI, Greeting))
	s.mu.Unlock()
	s.sink.Append("AI Assistant Initialized.")
}

// View returns the current dashboard view.
func (s *Session) View() View {
	v := View{ID: s.id, Username: s.username, State: s.model.State()}
	if sample, ok := s.model.LastSample(); ok {
		v.Sample = &sample
	}
	if p, ok := s.PendingSuggestion(); ok {
		v.Suggestion = &p
	}
	return v
}

// SetEnabled toggles the PMIC output. It is always allowed.
func (s *Session) SetEnabled(enabled bool) {
	s.model.SetEnabled(enabled)
}

// SetRail sets one rail from untrusted input.
func (s *Session) SetRail(id rail.ID, mv int) error {
	if err := s.requireEnabled(); err != nil {
		return err
	}
	return s.model.SetRailValueChecked(id, mv)
}

// ApplyPreset applies a named preset profile.
func (s *Session) ApplyPreset(name string) error {
	if err := s.requireEnabled(); err != nil {
		return err
	}
	p, err := rail.Preset(name)
	if err != nil {
		return err
	}
	s.model.ApplyProfile(p, name)
	return nil
}

// Reset restores the default profile and clears alarms.
func (s *Session) Reset() error {
	if err := s.requireEnabled(); err != nil {
		return err
	}
	s.model.Reset()
	return nil
}

// RequestSuggestion asks the assistant for a profile matching goal. The
// result is clamped to the safe ranges and held as the pending suggestion.
// The request outlives ctx cancellation; it is bounded by the assistant's
// own timeout.
func (s *Session) RequestSuggestion(ctx context.Context, goal string) (rail.Profile, error) {
	if err := s.requireEnabled(); err != nil {
		return rail.Profile{}, err
	}

	release, err := s.suggestGate.Enter()
	if err != nil {
		s.observe(KindSuggestion, OutcomeBusy)
		return rail.Profile{}, err
	}
	defer release()

	goal = strings.TrimSpace(goal)
	if goal == "" {
		s.sink.Append("AI Suggestion: Prompt cannot be empty.")
		return rail.Profile{}, ErrEmptyPrompt
	}

	s.sink.Append(fmt.Sprintf("Requesting AI suggestion for: \"%s\"", goal))

	profile, err := s.suggest(context.WithoutCancel(ctx), goal)
	if err != nil {
		s.sink.Append("ERROR: Failed to get AI suggestion.")
		s.logger.Error("suggestion request failed", slog.String("error", err.Error()))
		s.observe(KindSuggestion, OutcomeError)
		return rail.Profile{}, fmt.Errorf("%w: %w", ErrSuggestionFailed, err)
	}

	profile = profile.Clamp()
	s.mu.Lock()
	s.pending = &profile
	s.mu.Unlock()

	s.sink.Append("AI suggestion received successfully.")
	s.observe(KindSuggestion, OutcomeSuccess)
	return profile, nil
}

func (s *Session) suggest(ctx context.Context, goal string) (rail.Profile, error) {
	if s.suggester == nil {
		return rail.Profile{}, fmt.Errorf("assistant is not configured")
	}
	return s.suggester.Suggest(ctx, goal)
}

// PendingSuggestion returns the last successful suggestion.
func (s *Session) PendingSuggestion() (rail.Profile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return rail.Profile{}, false
	}
	return *s.pending, true
}

// ApplySuggestion applies the pending suggestion. The suggestion stays
// pending afterwards and can be applied again.
func (s *Session) ApplySuggestion() (rail.Profile, error) {
	if err := s.requireEnabled(); err != nil {
		return rail.Profile{}, err
	}

	p, ok := s.PendingSuggestion()
	if !ok {
		s.sink.Append("No AI suggestion available to apply.")
		return rail.Profile{}, ErrNoSuggestion
	}
	s.model.ApplyProfile(p, LabelAISuggested)
	return p, nil
}

// SendChat sends message to the assistant and streams the reply through
// onFragment. On failure the fallback text is added to the conversation
// and ErrChatFailed is returned.
func (s *Session) SendChat(ctx context.Context, message string, onFragment func(string)) (string, error) {
	if err := s.requireEnabled(); err != nil {
		return "", err
	}

	release, err := s.chatGate.Enter()
	if err != nil {
		s.observe(KindChat, OutcomeBusy)
		return "", err
	}
	defer release()

	message = strings.TrimSpace(message)
	if message == "" {
		return "", ErrEmptyMessage
	}

	s.appendMessage(SenderUser, message)
	s.sink.Append(fmt.Sprintf("User to AI: \"%s\"", message))

	reply, err := s.stream(context.WithoutCancel(ctx), message, onFragment)
	if err != nil {
		s.sink.Append("ERROR: Failed to get chat response from AI.")
		s.logger.Error("chat request failed", slog.String("error", err.Error()))
		s.appendMessage(SenderAI, ChatFallback)
		s.observe(KindChat, OutcomeError)
		return "", fmt.Errorf("%w: %w", ErrChatFailed, err)
	}

	s.appendMessage(SenderAI, reply)
	s.sink.Append(fmt.Sprintf("AI to User: \"%s\"", reply))
	s.observe(KindChat, OutcomeSuccess)
	return reply, nil
}

func (s *Session) stream(ctx context.Context, message string, fn func(string)) (string, error) {
	if s.chat == nil {
		return "", fmt.Errorf("assistant is not configured")
	}
	return s.chat.SendStream(ctx, message, fn)
}

// Conversation returns a copy of the chat history.
func (s *Session) Conversation() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Message, len(s.conversation))
	copy(out, s.conversation)
	return out
}

func (s *Session) appendMessage(sender, text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conversation = append(s.conversation, s.message(sender, text))
}

func (s *Session) message(sender, text string) Message {
	return Message{Sender: sender, Text: text, Time: s.clock.Now()}
}

func (s *Session) requireEnabled() error {
	if !s.model.State().Enabled {
		return ErrDisabled
	}
	return nil
}

func (s *Session) observe(kind, outcome string) {
	if s.observer != nil {
		s.observer.ObserveAssistant(kind, outcome)
	}
}

// logSink appends to the event log and mirrors each line as a log event.
type logSink struct {
	log         *eventlog.Log
	broadcaster *notify.Broadcaster
	clock       clock.Clock
}

func (l *logSink) Append(message string) {
	l.log.Append(message)
	l.broadcaster.Notify(context.Background(), notify.Event{
		Type:      notify.TypeLog,
		Message:   message,
		Timestamp: l.clock.Now(),
	})
}
