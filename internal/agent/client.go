// ABOUTME: HTTP client for the remote agent runtime
// ABOUTME: Posts a user message and decodes the SSE response stream into Response values

package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// responseBufferSize matches the buffer the conversation layer expects.
	responseBufferSize = 16
	maxEventSize       = 1 << 20
)

// ErrMalformedEvent is reported when an SSE event cannot be decoded.
var ErrMalformedEvent = errors.New("malformed agent event")

// StatusError is returned when the runtime answers with a non-2xx status.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("agent returned status %d: %s", e.StatusCode, e.Body)
}

// Client talks to the agent runtime over HTTP.
type Client struct {
	endpoint string
	apiKey   string
	http     *http.Client
	logger   *slog.Logger
}

// NewClient creates a Client. headerTimeout bounds the wait for response
// headers; the stream itself is bounded only by the request context.
func NewClient(endpoint, apiKey string, headerTimeout time.Duration, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = headerTimeout
	return &Client{
		endpoint: endpoint,
		apiKey:   apiKey,
		http:     &http.Client{Transport: transport},
		logger:   logger.With("component", "agent"),
	}
}

// Send posts req to the runtime and streams the decoded events. The returned
// channel is closed when the stream ends or ctx is cancelled.
func (c *Client) Send(ctx context.Context, req *SendRequest) (<-chan *Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("posting to agent: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(msg))}
	}

	out := make(chan *Response, responseBufferSize)
	go c.readStream(ctx, resp.Body, req.ThreadID, out)
	return out, nil
}

// readStream decodes SSE frames from body until EOF, a done event, or ctx ends.
func (c *Client) readStream(ctx context.Context, body io.ReadCloser, threadID string, out chan<- *Response) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 64*1024), maxEventSize)

	var eventName, eventID string
	var data strings.Builder

	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case line == "":
			if eventName == "" && data.Len() == 0 {
				continue
			}
			resp, err := decodeEvent(eventName, eventID, data.String())
			eventName, eventID = "", ""
			data.Reset()
			if err != nil {
				c.logger.Warn("skipping agent event", "error", err, "thread_id", threadID)
				continue
			}
			select {
			case out <- resp:
			case <-ctx.Done():
				return
			}
			if resp.Done {
				return
			}
		case strings.HasPrefix(line, ":"):
			// comment / keepalive
		case strings.HasPrefix(line, "event:"):
			eventName = strings.TrimSpace(strings.TrimPrefix(line, "event:"))
		case strings.HasPrefix(line, "id:"):
			eventID = strings.TrimSpace(strings.TrimPrefix(line, "id:"))
		case strings.HasPrefix(line, "data:"):
			if data.Len() > 0 {
				data.WriteByte('\n')
			}
			data.WriteString(strings.TrimPrefix(strings.TrimPrefix(line, "data:"), " "))
		}
	}

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		c.logger.Warn("agent stream ended with error", "error", err, "thread_id", threadID)
		select {
		case out <- &Response{Event: EventError, Error: err.Error(), Done: true}:
		case <-ctx.Done():
		}
	}
}

// decodeEvent maps one SSE frame to a Response.
func decodeEvent(name, id, data string) (*Response, error) {
	resp := &Response{EventID: id}
	switch name {
	case "text":
		var payload struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("%w: text: %v", ErrMalformedEvent, err)
		}
		resp.Event = EventText
		resp.Text = payload.Text
	case "tool_use":
		var payload ToolUseEvent
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("%w: tool_use: %v", ErrMalformedEvent, err)
		}
		resp.Event = EventToolUse
		resp.ToolUse = &payload
	case "tool_result":
		var payload ToolResultEvent
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			return nil, fmt.Errorf("%w: tool_result: %v", ErrMalformedEvent, err)
		}
		resp.Event = EventToolResult
		resp.ToolResult = &payload
	case "done":
		var payload struct {
			FullResponse string `json:"full_response"`
		}
		if data != "" {
			if err := json.Unmarshal([]byte(data), &payload); err != nil {
				return nil, fmt.Errorf("%w: done: %v", ErrMalformedEvent, err)
			}
		}
		resp.Event = EventDone
		resp.Text = payload.FullResponse
		resp.Done = true
	case "error":
		var payload struct {
			Error string `json:"error"`
		}
		if err := json.Unmarshal([]byte(data), &payload); err != nil {
			payload.Error = data
		}
		resp.Event = EventError
		resp.Error = payload.Error
		resp.Done = true
	default:
		return nil, fmt.Errorf("%w: unknown event %q", ErrMalformedEvent, name)
	}
	return resp, nil
}
