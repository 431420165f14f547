package ui

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/pmicdash/pmicdash/pkg/auth"
	"github.com/pmicdash/pmicdash/pkg/dashboard"
	"github.com/pmicdash/pmicdash/pkg/kv"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

//go:embed templates/*.html static/*.css
var content embed.FS

// CLISession is the id of the dashboard session shared by bearer-token
// API clients.
const CLISession = "cli"

// Config configures the dashboard handler.
type Config struct {
	// Manager owns the dashboard sessions. Required.
	Manager *dashboard.Manager

	// Store persists the remembered username and the API URL. Required.
	Store kv.Store

	// Verifier checks login credentials. Required.
	Verifier auth.Verifier

	// DefaultAPIBaseURL is the login API used until one is saved.
	DefaultAPIBaseURL string

	// BearerToken, when set, lets API clients authenticate with
	// "Authorization: Bearer <token>".
	BearerToken string

	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// Handler serves the login page, the dashboard page and the JSON API.
type Handler struct {
	config    Config
	templates *template.Template
	router    *mux.Router
	cookies   *auth.SessionCookieAuthenticator
	upgrader  websocket.Upgrader
	logger    *slog.Logger
}

// NewHandler creates a new dashboard handler.
func NewHandler(config Config, logger *slog.Logger) (*Handler, error) {
	if config.Manager == nil {
		return nil, fmt.Errorf("manager is required")
	}
	if config.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if config.Verifier == nil {
		return nil, fmt.Errorf("verifier is required")
	}
	if logger == nil {
		logger = slog.Default()
	}

	funcMap := template.FuncMap{
		"volts":       rail.FormatVolts,
		"railName":    func(id rail.ID) string { return id.DisplayName() },
		"formatTemp":  func(c float64) string { return fmt.Sprintf("%.1f °C", c) },
		"formatAmps":  func(a float64) string { return fmt.Sprintf("%.2f A", a) },
		"formatClock": formatClock,
		"statusClass": statusClass,
	}

	tmpl, err := template.New("").Funcs(funcMap).ParseFS(content, "templates/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	h := &Handler{
		config:    config,
		templates: tmpl,
		cookies:   auth.NewSessionCookieAuthenticator(config.Manager.LookupUsername),
		upgrader:  websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		logger:    logger.With(slog.String("component", "ui")),
	}
	h.router = mux.NewRouter()
	h.RegisterRoutes(h.router)
	return h, nil
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// RegisterRoutes registers the pages and the API on r.
func (h *Handler) RegisterRoutes(r *mux.Router) {
	static, _ := fs.Sub(content, "static")
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", http.FileServer(http.FS(static))))

	r.HandleFunc("/login", h.handleLoginPage).Methods(http.MethodGet)
	r.HandleFunc("/login", h.handleLogin).Methods(http.MethodPost)
	r.HandleFunc("/logout", h.handleLogout).Methods(http.MethodPost)
	r.HandleFunc("/", h.handleDashboard).Methods(http.MethodGet)

	api := r.PathPrefix("/api").Subrouter()
	api.Use(auth.NewMiddleware(h.authenticator(), auth.WithLogger(h.logger)).Wrap)
	api.HandleFunc("/state", h.handleState).Methods(http.MethodGet)
	api.HandleFunc("/enable", h.handleEnable).Methods(http.MethodPost)
	api.HandleFunc("/rails/{rail}", h.handleSetRail).Methods(http.MethodPut)
	api.HandleFunc("/profiles/{name}", h.handleApplyProfile).Methods(http.MethodPost)
	api.HandleFunc("/reset", h.handleReset).Methods(http.MethodPost)
	api.HandleFunc("/log", h.handleLog).Methods(http.MethodGet)
	api.HandleFunc("/suggestion", h.handleSuggestion).Methods(http.MethodPost)
	api.HandleFunc("/suggestion/apply", h.handleApplySuggestion).Methods(http.MethodPost)
	api.HandleFunc("/chat", h.handleChat).Methods(http.MethodPost)
	api.HandleFunc("/chat", h.handleConversation).Methods(http.MethodGet)
	api.HandleFunc("/settings/api-url", h.handleSetAPIURL).Methods(http.MethodPut)
	api.HandleFunc("/events", h.handleEvents).Methods(http.MethodGet)
}

func (h *Handler) authenticator() auth.Authenticator {
	authenticators := []auth.Authenticator{h.cookies}
	if h.config.BearerToken != "" {
		authenticators = append(authenticators,
			auth.NewBearerTokenAuthenticator(h.config.BearerToken, "service:"+CLISession, CLISession))
	}
	return auth.NewChainAuthenticator(authenticators...)
}

type loginData struct {
	Username   string
	APIBaseURL string
	Remember   bool
	Error      string
}

type dashboardData struct {
	View         dashboard.View
	Rails        []railData
	Presets      []string
	Log          []string
	Conversation []dashboard.Message
}

type railData struct {
	ID         rail.ID
	Millivolts int
	Range      rail.Range
}

func (h *Handler) handleLoginPage(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.cookieSession(r); ok {
		http.Redirect(w, r, "/", http.StatusSeeOther)
		return
	}

	username, _, err := h.config.Store.Get(r.Context(), kv.KeyUsername)
	if err != nil {
		h.logger.Warn("failed to read remembered username", slog.String("error", err.Error()))
	}
	h.render(w, http.StatusOK, "login.html", loginData{
		Username:   username,
		APIBaseURL: h.apiBaseURL(r.Context()),
		Remember:   username != "",
	})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	ctx := r.Context()
	username := strings.TrimSpace(r.PostFormValue("username"))
	password := r.PostFormValue("password")
	remember := r.PostFormValue("remember") != ""

	if apiURL := strings.TrimSpace(r.PostFormValue("api_url")); apiURL != "" {
		if err := h.config.Store.Set(ctx, kv.KeyAPIBaseURL, apiURL); err != nil {
			h.logger.Warn("failed to save api url", slog.String("error", err.Error()))
		}
	}
	base := h.apiBaseURL(ctx)

	_, err := h.config.Verifier.Verify(ctx, auth.Credentials{
		Username:   username,
		Password:   password,
		APIBaseURL: base,
	})
	if err != nil {
		h.logger.Info("login failed",
			slog.String("username", username),
			slog.String("error", err.Error()),
		)
		status := http.StatusUnauthorized
		if !errors.Is(err, auth.ErrInvalidCredentials) {
			status = http.StatusBadGateway
		}
		h.render(w, status, "login.html", loginData{
			Username:   username,
			APIBaseURL: base,
			Remember:   remember,
			Error:      auth.LoginMessage(err),
		})
		return
	}

	if remember {
		err = h.config.Store.Set(ctx, kv.KeyUsername, username)
	} else {
		err = h.config.Store.Remove(ctx, kv.KeyUsername)
	}
	if err != nil {
		h.logger.Warn("failed to update remembered username", slog.String("error", err.Error()))
	}

	s, err := h.config.Manager.Create(ctx, username)
	if err != nil {
		h.renderError(w, "Failed to open dashboard session", err)
		return
	}
	auth.SetSessionCookie(w, s.ID(), h.config.SecureCookies)
	h.logger.Info("user logged in", slog.String("username", username))
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if s, ok := h.cookieSession(r); ok {
		if err := h.config.Manager.Logout(r.Context(), s.ID()); err != nil {
			h.logger.Warn("logout failed", slog.String("error", err.Error()))
		}
	}
	auth.ClearSessionCookie(w)
	http.Redirect(w, r, "/login", http.StatusSeeOther)
}

func (h *Handler) handleDashboard(w http.ResponseWriter, r *http.Request) {
	s, ok := h.cookieSession(r)
	if !ok {
		http.Redirect(w, r, "/login", http.StatusSeeOther)
		return
	}

	view := s.View()
	data := dashboardData{
		View:         view,
		Presets:      rail.PresetNames(),
		Log:          s.Log().Lines(),
		Conversation: s.Conversation(),
	}
	for _, id := range rail.All {
		data.Rails = append(data.Rails, railData{
			ID:         id,
			Millivolts: view.State.Rails.Get(id),
			Range:      rail.SafeRange(id),
		})
	}
	h.render(w, http.StatusOK, "dashboard.html", data)
}

// cookieSession returns the session named by the request's session cookie.
func (h *Handler) cookieSession(r *http.Request) (*dashboard.Session, bool) {
	id, ok, err := h.cookies.AuthenticateRequest(r)
	if err != nil || !ok {
		return nil, false
	}
	return h.config.Manager.Get(id.Session)
}

// apiBaseURL returns the saved login API URL, or the default.
func (h *Handler) apiBaseURL(ctx context.Context) string {
	v, ok, err := h.config.Store.Get(ctx, kv.KeyAPIBaseURL)
	if err != nil {
		h.logger.Warn("failed to read api url", slog.String("error", err.Error()))
	}
	if ok && v != "" {
		return v
	}
	return h.config.DefaultAPIBaseURL
}

func (h *Handler) render(w http.ResponseWriter, status int, name string, data interface{}) {
	var buf strings.Builder
	if err := h.templates.ExecuteTemplate(&buf, name, data); err != nil {
		h.logger.Error("template render failed", slog.String("template", name), slog.String("error", err.Error()))
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(buf.String()))
}

func (h *Handler) renderError(w http.ResponseWriter, message string, err error) {
	h.logger.Error(message, slog.String("error", err.Error()))
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusInternalServerError)
	fmt.Fprintf(w, `<!DOCTYPE html><html><head><title>Error</title></head><body><h1>Error</h1><p>%s: %s</p><a href="/">Back to Dashboard</a></body></html>`,
		template.HTMLEscapeString(message), template.HTMLEscapeString(err.Error()))
}

func statusClass(on bool) string {
	if on {
		return "status-alarm"
	}
	return "status-ok"
}

func formatClock(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Format("15:04:05")
}
