package dashboard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pmicdash/pmicdash/pkg/alarm"
	"github.com/pmicdash/pmicdash/pkg/assistant"
	"github.com/pmicdash/pmicdash/pkg/clock"
	"github.com/pmicdash/pmicdash/pkg/eventlog"
	"github.com/pmicdash/pmicdash/pkg/kv"
	"github.com/pmicdash/pmicdash/pkg/notify"
	"github.com/pmicdash/pmicdash/pkg/pmic"
)

// ErrSessionNotFound is returned for an unknown session token.
var ErrSessionNotFound = errors.New("session not found")

// ManagerConfig configures a Manager.
type ManagerConfig struct {
	// InitiallyEnabled is the PMIC enable switch value for new sessions.
	InitiallyEnabled bool

	// LogCapacity bounds each session's event log. Default: 100.
	LogCapacity int

	// TelemetryInterval is the tick period. Default: 2 seconds.
	TelemetryInterval time.Duration

	// Suggester and Chats back the assistant panel. Either may be nil, in
	// which case the corresponding requests fail.
	Suggester assistant.Suggester
	Chats     assistant.ChatFactory

	// Evaluator decides alarm conditions. If nil, the default thresholds
	// are used.
	Evaluator *alarm.Evaluator

	// Sink, if set, returns the telemetry sink for a session.
	Sink func(sessionID string) pmic.TelemetrySink

	// Notifier receives every change event of every session, in addition
	// to the session's own subscribers.
	Notifier notify.Notifier

	// Store holds the remembered username cleared on logout.
	Store kv.Store

	Observer Observer

	// Clock is the clock to use. If nil, uses real time.
	Clock clock.Clock

	// Seed seeds the telemetry simulation. Zero uses the current time.
	Seed int64
}

// Manager owns the live dashboard sessions, keyed by session token.
type Manager struct {
	config ManagerConfig
	clock  clock.Clock
	logger *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session
	seq      int64
}

// NewManager creates a session manager.
func NewManager(config ManagerConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if config.LogCapacity <= 0 {
		config.LogCapacity = eventlog.DefaultCapacity
	}
	if config.TelemetryInterval <= 0 {
		config.TelemetryInterval = pmic.DefaultTickInterval
	}
	clk := config.Clock
	if clk == nil {
		clk = clock.Real()
	}
	return &Manager{
		config:   config,
		clock:    clk,
		logger:   logger.With(slog.String("component", "dashboard")),
		sessions: make(map[string]*Session),
	}
}

// Create opens a new session for username with a fresh token and starts
// its telemetry loop.
func (m *Manager) Create(ctx context.Context, username string) (*Session, error) {
	return m.open(ctx, uuid.New().String(), username)
}

// Ensure returns the session with the given id, creating it if needed.
// It backs the shared session used by token-authenticated API clients.
func (m *Manager) Ensure(ctx context.Context, id, username string) (*Session, error) {
	if s, ok := m.Get(id); ok {
		return s, nil
	}
	return m.open(ctx, id, username)
}

func (m *Manager) open(ctx context.Context, id, username string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s, ok := m.sessions[id]; ok {
		return s, nil
	}

	s, err := m.newSession(id, username)
	if err != nil {
		return nil, err
	}
	s.initialize()
	// Detached so the loop outlives the request that opened the session.
	s.runner.Start(context.WithoutCancel(ctx))
	m.sessions[id] = s

	m.logger.Info("dashboard session opened",
		slog.String("session", shortID(id)),
		slog.String("username", username),
	)
	return s, nil
}

func (m *Manager) newSession(id, username string) (*Session, error) {
	log := eventlog.New(m.config.LogCapacity, m.clock)
	broadcaster := notify.NewBroadcaster()
	sink := &logSink{log: log, broadcaster: broadcaster, clock: m.clock}
	logger := m.logger.With(slog.String("session", shortID(id)))

	var notifier notify.Notifier = broadcaster
	if m.config.Notifier != nil {
		notifier = notify.Multi{broadcaster, m.config.Notifier}
	}

	m.seq++
	seed := m.config.Seed
	if seed == 0 {
		seed = m.clock.Now().UnixNano()
	}

	model, err := pmic.New(pmic.Config{
		Enabled:   m.config.InitiallyEnabled,
		Log:       sink,
		Notifier:  notifier,
		Evaluator: m.config.Evaluator,
		Rand:      rand.New(rand.NewSource(seed + m.seq)),
		Clock:     m.clock,
		Logger:    logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create rail model: %w", err)
	}

	var telemetrySink pmic.TelemetrySink
	if m.config.Sink != nil {
		telemetrySink = m.config.Sink(id)
	}

	s := &Session{
		id:          id,
		username:    username,
		created:     m.clock.Now(),
		model:       model,
		log:         log,
		sink:        sink,
		broadcaster: broadcaster,
		runner: pmic.NewRunner(model, pmic.RunnerConfig{
			Interval: m.config.TelemetryInterval,
			Sink:     telemetrySink,
			Clock:    m.clock,
		}, logger),
		suggester: m.config.Suggester,
		observer:  m.config.Observer,
		clock:     m.clock,
		logger:    logger,
	}
	if m.config.Chats != nil {
		s.chat = m.config.Chats.NewChat()
	}
	return s, nil
}

// Get returns the session for token.
func (m *Manager) Get(token string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[token]
	return s, ok
}

// LookupUsername returns the operator of the session for token. It has
// the shape of auth.SessionLookup.
func (m *Manager) LookupUsername(token string) (string, bool) {
	s, ok := m.Get(token)
	if !ok {
		return "", false
	}
	return s.Username(), true
}

// Sessions returns the live sessions ordered by creation time.
func (m *Manager) Sessions() []*Session {
	m.mu.RLock()
	out := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		out = append(out, s)
	}
	m.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].created.Equal(out[j].created) {
			return out[i].id < out[j].id
		}
		return out[i].created.Before(out[j].created)
	})
	return out
}

// Len returns the number of live sessions.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Logout writes the logout line, forgets the remembered username, stops
// the session's telemetry, and destroys the session.
func (m *Manager) Logout(ctx context.Context, token string) error {
	m.mu.Lock()
	s, ok := m.sessions[token]
	if ok {
		delete(m.sessions, token)
	}
	m.mu.Unlock()

	if !ok {
		return ErrSessionNotFound
	}

	s.sink.Append("User logging out.")
	m.close(s)

	if m.config.Store != nil {
		if err := m.config.Store.Remove(ctx, kv.KeyUsername); err != nil {
			return fmt.Errorf("failed to forget username: %w", err)
		}
	}

	m.logger.Info("dashboard session closed", slog.String("session", shortID(token)))
	return nil
}

// Close stops every session. It is used on shutdown.
func (m *Manager) Close() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()

	for _, s := range sessions {
		m.close(s)
	}
}

func (m *Manager) close(s *Session) {
	s.runner.Stop()
	s.broadcaster.Close()
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
