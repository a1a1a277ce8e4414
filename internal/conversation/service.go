// ABOUTME: Send pipeline between the input gate and the remote agent runtime
// ABOUTME: Records the user message first, then appends streamed replies only to the thread they belong to

package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/2389/docs-copilot/internal/agent"
	"github.com/2389/docs-copilot/internal/dedupe"
	"github.com/2389/docs-copilot/internal/thread"
)

// streamBufferSize matches the agent client's response buffer.
const streamBufferSize = 16

// ErrThreadChanged is returned when a reset rotated the thread before the
// user message could be recorded.
var ErrThreadChanged = errors.New("thread changed before send")

// Session is the part of a session the send pipeline needs.
type Session interface {
	Key() string
	ThreadID() thread.ID
	Append(threadID thread.ID, msg Message) error
}

// Runtime is the remote agent runtime.
type Runtime interface {
	Send(ctx context.Context, req *agent.SendRequest) (<-chan *agent.Response, error)
}

// Archive persists messages. It is optional.
type Archive interface {
	SaveMessage(ctx context.Context, sessionKey, threadID string, msg Message) error
}

// Service forwards user text to the agent and feeds the replies back into
// the session that sent it.
type Service struct {
	runtime Runtime
	archive Archive
	seen    *dedupe.Cache
	logger  *slog.Logger
}

// New creates a Service. archive and seen may be nil.
func New(runtime Runtime, archive Archive, seen *dedupe.Cache, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		runtime: runtime,
		archive: archive,
		seen:    seen,
		logger:  logger.With("component", "conversation"),
	}
}

// SendResponse is the result of a successful send.
type SendResponse struct {
	ThreadID  thread.ID
	MessageID string
	// Stream yields every message appended for this send and is closed
	// when the agent finishes, fails, or ctx ends.
	Stream <-chan Message
}

// Send records content as a user message on the session's current thread,
// sends it to the agent and streams the replies.
func (s *Service) Send(ctx context.Context, sess Session, content string) (*SendResponse, error) {
	threadID := sess.ThreadID()

	userMsg := NewText(RoleUser, content)
	if err := sess.Append(threadID, userMsg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrThreadChanged, err)
	}
	s.save(sess.Key(), threadID, userMsg)

	s.logger.Debug("user message recorded",
		"session_key", sess.Key(),
		"thread_id", threadID,
		"message_id", userMsg.ID)

	respChan, err := s.runtime.Send(ctx, &agent.SendRequest{ThreadID: threadID.String(), Content: content})
	if err != nil {
		return nil, fmt.Errorf("agent send failed: %w", err)
	}

	return &SendResponse{
		ThreadID:  threadID,
		MessageID: userMsg.ID,
		Stream:    s.pipe(ctx, sess, threadID, respChan),
	}, nil
}

// pipe converts agent responses into messages appended to threadID.
func (s *Service) pipe(ctx context.Context, sess Session, threadID thread.ID, in <-chan *agent.Response) <-chan Message {
	out := make(chan Message, streamBufferSize)

	go func() {
		defer close(out)
		// Keep the runtime unblocked if we stop reading early.
		defer func() { go drain(in) }()

		var text strings.Builder
		var receivedText bool
		tools := make(map[string]ToolCall)

		emit := func(msg Message) bool {
			if err := sess.Append(threadID, msg); err != nil {
				s.logger.Debug("dropping message for superseded thread",
					"thread_id", threadID,
					"message_id", msg.ID)
				return true
			}
			s.save(sess.Key(), threadID, msg)

			select {
			case out <- msg:
				return true
			case <-ctx.Done():
				s.logger.Debug("context cancelled during response streaming", "thread_id", threadID)
				return false
			}
		}

		flush := func() bool {
			if text.Len() == 0 {
				return true
			}
			msg := NewText(RoleAssistant, text.String())
			text.Reset()
			return emit(msg)
		}

		for resp := range in {
			if s.replayed(threadID, resp.EventID) {
				continue
			}

			switch resp.Event {
			case agent.EventText:
				text.WriteString(resp.Text)
				receivedText = true

			case agent.EventToolUse:
				if resp.ToolUse == nil {
					continue
				}
				if !flush() {
					return
				}
				call := ToolCall{
					CallID:  resp.ToolUse.ID,
					Name:    resp.ToolUse.Name,
					Payload: toolInput(resp.ToolUse.InputJSON),
					Status:  ToolExecuting,
				}
				tools[call.CallID] = call
				if !emit(NewToolCall(call)) {
					return
				}

			case agent.EventToolResult:
				if resp.ToolResult == nil {
					continue
				}
				call, ok := tools[resp.ToolResult.ID]
				if !ok {
					call = ToolCall{CallID: resp.ToolResult.ID, Name: resp.ToolResult.Name}
				}
				delete(tools, resp.ToolResult.ID)
				call.Status = ToolComplete
				call.Result = resp.ToolResult.Output
				if !emit(NewToolCall(call)) {
					return
				}

			case agent.EventDone:
				if !receivedText && resp.Text != "" {
					text.WriteString(resp.Text)
				}
				flush()
				return

			case agent.EventError:
				s.logger.Warn("agent reported error", "thread_id", threadID, "error", resp.Error)
				flush()
				return
			}
		}
		flush()
	}()

	return out
}

func drain(in <-chan *agent.Response) {
	for range in {
	}
}

// replayed reports whether an event with this id was already applied.
func (s *Service) replayed(threadID thread.ID, eventID string) bool {
	if s.seen == nil || eventID == "" {
		return false
	}
	return s.seen.Seen(threadID.String() + "|" + eventID)
}

// save archives a message with its own timeout so persistence outlives the request.
func (s *Service) save(sessionKey string, threadID thread.ID, msg Message) {
	if s.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.archive.SaveMessage(ctx, sessionKey, threadID.String(), msg); err != nil {
		s.logger.Error("failed to archive message",
			"error", err,
			"thread_id", threadID,
			"message_id", msg.ID)
	}
}

// toolInput keeps valid JSON input as-is and wraps anything else as a JSON string.
func toolInput(input string) json.RawMessage {
	if input == "" {
		return nil
	}
	if json.Valid([]byte(input)) {
		return json.RawMessage(input)
	}
	quoted, _ := json.Marshal(input)
	return quoted
}
