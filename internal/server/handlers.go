// ABOUTME: HTTP handlers for the widget session API
// ABOUTME: Session snapshot, input submission, reset, and the event stream

package server

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"

	"github.com/2389/docs-copilot/internal/conversation"
)

const (
	clientCookie = "dc_client"
	maxInputBody = 64 << 10
)

// clientSession returns the caller's session, issuing a client id cookie on
// first contact or when the cookie is not a valid id.
func (s *Server) clientSession(w http.ResponseWriter, r *http.Request) *clientSession {
	var clientID string
	if c, err := r.Cookie(clientCookie); err == nil {
		if _, err := uuid.Parse(c.Value); err == nil {
			clientID = c.Value
		}
	}
	if clientID == "" {
		clientID = uuid.NewString()
		http.SetCookie(w, &http.Cookie{
			Name:     clientCookie,
			Value:    clientID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return s.hub.getOrCreate(clientID)
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	cs := s.clientSession(w, r)

	msgs := cs.session.Messages()
	view := sessionView{
		ThreadID:    cs.session.ThreadID().String(),
		DefaultOpen: s.config.Widget.DefaultOpen,
		Labels:      s.config.Widget.Labels,
		InProgress:  cs.gate.InProgress(),
		Messages:    make([]messageView, 0, len(msgs)),
	}
	if status, ok := cs.session.LastReset(); ok {
		view.LastReset = &status
	}
	for _, msg := range msgs {
		view.Messages = append(view.Messages, s.viewMessage(msg))
	}

	s.sendJSON(w, http.StatusOK, view)
}

type inputRequest struct {
	Text string `json:"text"`
}

func (s *Server) handleInput(w http.ResponseWriter, r *http.Request) {
	var req inputRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxInputBody)).Decode(&req); err != nil {
		s.sendJSONError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	cs := s.clientSession(w, r)
	s.sendJSON(w, http.StatusOK, map[string]bool{"dispatched": cs.gate.Submit(req.Text)})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	cs := s.clientSession(w, r)
	s.sendJSON(w, http.StatusOK, cs.resets.Reset(r.Context()))
}

// handleEvents streams message, reset and idle events for the caller's session.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.logger.Error("streaming not supported")
		s.sendJSONError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	cs := s.clientSession(w, r)
	events, _ := s.broadcaster.Subscribe(r.Context(), cs.session.Key())

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	// The ready event carries the current remount key.
	s.writeSSEEvent(w, "ready", map[string]any{
		"thread_id":   cs.session.ThreadID().String(),
		"in_progress": cs.gate.InProgress(),
	})
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if !forwardable(cs, event) {
				continue
			}
			cs.touch(s.hub.now())
			s.writeSSEEvent(w, string(event.Type), s.viewEvent(event))
			flusher.Flush()
		}
	}
}

// forwardable reports whether event belongs on the widget's current thread.
// Message events for a thread that has since been reset are dropped.
func forwardable(cs *clientSession, event *conversation.Event) bool {
	if event.Type != conversation.EventMessage {
		return true
	}
	return event.ThreadID == cs.session.ThreadID().String()
}

// handleHealth returns 200 OK if the server is alive.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ok"))
}
