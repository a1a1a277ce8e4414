// ABOUTME: JSON and server-sent event helpers for the widget host API
// ABOUTME: Converts session events into widget-facing payloads

package server

import (
	"encoding/json"
	"fmt"
	"html/template"
	"net/http"

	"github.com/2389/docs-copilot/internal/classify"
	"github.com/2389/docs-copilot/internal/config"
	"github.com/2389/docs-copilot/internal/conversation"
	"github.com/2389/docs-copilot/internal/session"
)

// messageView is a message plus its renderer key and rendered HTML.
type messageView struct {
	conversation.Message
	Renderer classify.Key  `json:"renderer"`
	HTML     template.HTML `json:"html"`
}

// sessionView is the body of GET /api/session.
type sessionView struct {
	ThreadID    string               `json:"thread_id"`
	DefaultOpen bool                 `json:"default_open"`
	Labels      config.WidgetLabels  `json:"labels"`
	InProgress  bool                 `json:"in_progress"`
	LastReset   *session.ResetStatus `json:"last_reset,omitempty"`
	Messages    []messageView        `json:"messages"`
}

// eventView is the data of one SSE event.
type eventView struct {
	ThreadID string       `json:"thread_id"`
	Message  *messageView `json:"message,omitempty"`
}

func (s *Server) viewMessage(msg conversation.Message) messageView {
	key, html := s.renderer.Render(msg)
	return messageView{Message: msg, Renderer: key, HTML: html}
}

func (s *Server) viewEvent(event *conversation.Event) eventView {
	view := eventView{ThreadID: event.ThreadID}
	if event.Message != nil {
		m := s.viewMessage(*event.Message)
		view.Message = &m
	}
	return view
}

// writeSSEEvent writes a single SSE event to the response writer.
func (s *Server) writeSSEEvent(w http.ResponseWriter, event string, data any) {
	dataJSON, err := json.Marshal(data)
	if err != nil {
		s.logger.Error("failed to marshal SSE data", "error", err)
		return
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", dataJSON)
}

// sendJSON writes v as a JSON response with the given status.
func (s *Server) sendJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// sendJSONError writes a JSON error response.
func (s *Server) sendJSONError(w http.ResponseWriter, status int, message string) {
	s.sendJSON(w, status, map[string]string{"error": message})
}
