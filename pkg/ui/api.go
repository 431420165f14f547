package ui

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/pmicdash/pmicdash/pkg/auth"
	"github.com/pmicdash/pmicdash/pkg/dashboard"
	"github.com/pmicdash/pmicdash/pkg/kv"
	"github.com/pmicdash/pmicdash/pkg/pmic"
	"github.com/pmicdash/pmicdash/pkg/rail"
)

type errorResponse struct {
	Error string `json:"error"`
}

type enableRequest struct {
	Enabled *bool `json:"enabled"`
}

type railRequest struct {
	Millivolts *int `json:"millivolts"`
}

type suggestionRequest struct {
	Goal string `json:"goal"`
}

type suggestionResponse struct {
	Suggestion rail.Profile `json:"suggestion"`
}

type chatRequest struct {
	Message string `json:"message"`
}

type logResponse struct {
	Entries []string `json:"entries"`
}

type conversationResponse struct {
	Messages []dashboard.Message `json:"messages"`
}

type apiURLRequest struct {
	URL string `json:"url"`
}

type apiURLResponse struct {
	APIBaseURL string `json:"apiBaseURL"`
}

// session resolves the dashboard session of an authenticated API request.
// Bearer clients share the CLI session, which is opened on first use.
func (h *Handler) session(w http.ResponseWriter, r *http.Request) (*dashboard.Session, bool) {
	id := auth.IdentityFromContext(r.Context())
	if id == nil {
		writeError(w, dashboard.ErrSessionNotFound)
		return nil, false
	}
	if s, ok := h.config.Manager.Get(id.Session); ok {
		return s, true
	}
	if id.Session != CLISession {
		writeError(w, dashboard.ErrSessionNotFound)
		return nil, false
	}
	s, err := h.config.Manager.Ensure(r.Context(), CLISession, CLISession)
	if err != nil {
		h.logger.Error("failed to open cli session", slog.String("error", err.Error()))
		writeError(w, err)
		return nil, false
	}
	return s, true
}

func (h *Handler) handleState(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handleEnable(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req enableRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Enabled == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "enabled is required"})
		return
	}
	s.SetEnabled(*req.Enabled)
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handleSetRail(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	id, err := rail.Parse(mux.Vars(r)["rail"])
	if err != nil {
		writeError(w, err)
		return
	}
	var req railRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Millivolts == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "millivolts is required"})
		return
	}
	if err := s.SetRail(id, *req.Millivolts); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.ApplyPreset(mux.Vars(r)["name"]); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handleReset(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.Reset(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handleLog(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, logResponse{Entries: s.Log().Lines()})
}

func (h *Handler) handleSuggestion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req suggestionRequest
	if !decode(w, r, &req) {
		return
	}
	profile, err := s.RequestSuggestion(r.Context(), req.Goal)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, suggestionResponse{Suggestion: profile})
}

func (h *Handler) handleApplySuggestion(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if _, err := s.ApplySuggestion(); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handleConversation(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conversationResponse{Messages: s.Conversation()})
}

func (h *Handler) handleSetAPIURL(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.session(w, r); !ok {
		return
	}
	var req apiURLRequest
	if !decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	var err error
	if u := strings.TrimSpace(req.URL); u != "" {
		err = h.config.Store.Set(ctx, kv.KeyAPIBaseURL, u)
	} else {
		err = h.config.Store.Remove(ctx, kv.KeyAPIBaseURL)
	}
	if err != nil {
		h.logger.Error("failed to save api url", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "failed to save api url"})
		return
	}
	writeJSON(w, http.StatusOK, apiURLResponse{APIBaseURL: h.apiBaseURL(ctx)})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), errorResponse{Error: err.Error()})
}

// statusFor maps dashboard errors to HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, dashboard.ErrDisabled), errors.Is(err, dashboard.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, dashboard.ErrEmptyPrompt),
		errors.Is(err, dashboard.ErrEmptyMessage),
		errors.Is(err, dashboard.ErrNoSuggestion),
		errors.Is(err, pmic.ErrRailOutOfRange),
		errors.Is(err, rail.ErrUnknownRail),
		errors.Is(err, rail.ErrUnknownProfile):
		return http.StatusBadRequest
	case errors.Is(err, dashboard.ErrSuggestionFailed), errors.Is(err, dashboard.ErrChatFailed):
		return http.StatusBadGateway
	case errors.Is(err, dashboard.ErrSessionNotFound):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
