package ui

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pmicdash/pmicdash/pkg/notify"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

type chatFragment struct {
	Text string `json:"text"`
}

type chatDone struct {
	Reply string `json:"reply"`
}

// eventStream writes server-sent events. Headers are sent on the first
// write so errors raised before any output can still be answered as JSON.
type eventStream struct {
	w       http.ResponseWriter
	flusher http.Flusher
	started bool
}

func (e *eventStream) start() {
	if e.started {
		return
	}
	e.started = true
	h := e.w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	e.w.WriteHeader(http.StatusOK)
}

func (e *eventStream) send(event string, v any) {
	e.start()
	data, _ := json.Marshal(v)
	if event != "" {
		fmt.Fprintf(e.w, "event: %s\n", event)
	}
	fmt.Fprintf(e.w, "data: %s\n\n", data)
	e.flusher.Flush()
}

// handleChat streams the assistant's reply as "data" fragments followed by
// a "done" event carrying the full reply.
func (h *Handler) handleChat(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "streaming unsupported"})
		return
	}
	var req chatRequest
	if !decode(w, r, &req) {
		return
	}

	stream := &eventStream{w: w, flusher: flusher}
	reply, err := s.SendChat(r.Context(), req.Message, func(fragment string) {
		stream.send("", chatFragment{Text: fragment})
	})
	if err != nil {
		if !stream.started {
			writeError(w, err)
			return
		}
		stream.send("error", errorResponse{Error: err.Error()})
		return
	}
	stream.send("done", chatDone{Reply: reply})
}

// handleEvents upgrades to a WebSocket and forwards the session's change
// events as JSON text frames until the client goes away or the session
// is closed.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	events, cancel := s.Subscribe(notify.DefaultSubscriberBuffer)
	defer cancel()

	gone := make(chan struct{})
	go func() {
		defer close(gone)
		conn.SetReadLimit(512)
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()

	h.logger.Debug("event feed opened", slog.String("username", s.Username()))
	for {
		select {
		case <-gone:
			return
		case event, ok := <-events:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := conn.WriteJSON(event); err != nil {
				return
			}
		case <-ping.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
