// ABOUTME: Message types for the docs assistant conversation
// ABOUTME: A message is either plain text or a named tool call, never inferred from field presence

package conversation

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Role identifies who produced a message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// Kind tags the message variant.
type Kind int

const (
	KindText Kind = iota
	KindToolCall
)

// String returns the wire name of the kind.
func (k Kind) String() string {
	switch k {
	case KindText:
		return "text"
	case KindToolCall:
		return "tool_call"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k Kind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// ToolStatus is the lifecycle state of a tool call.
type ToolStatus string

const (
	ToolExecuting ToolStatus = "executing"
	ToolComplete  ToolStatus = "complete"
)

// ToolCall describes an invocation of a named backend capability.
type ToolCall struct {
	CallID  string          `json:"call_id,omitempty"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Status  ToolStatus      `json:"status,omitempty"`
	Result  string          `json:"result,omitempty"`
}

// Message is a single entry in a conversation. Values are copied on append
// and on read, so a stored message never changes.
type Message struct {
	ID        string    `json:"id"`
	Kind      Kind      `json:"kind"`
	Role      Role      `json:"role"`
	Content   string    `json:"content,omitempty"`
	Tool      ToolCall  `json:"tool,omitzero"`
	CreatedAt time.Time `json:"created_at"`
}

// NewText builds a plain text message.
func NewText(role Role, content string) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      KindText,
		Role:      role,
		Content:   content,
		CreatedAt: time.Now(),
	}
}

// NewToolCall builds a tool call message from the assistant.
func NewToolCall(call ToolCall) Message {
	return Message{
		ID:        uuid.New().String(),
		Kind:      KindToolCall,
		Role:      RoleAssistant,
		Tool:      call,
		CreatedAt: time.Now(),
	}
}

// Name returns the tool name for tool calls and "" otherwise.
func (m Message) Name() string {
	if m.Kind != KindToolCall {
		return ""
	}
	return m.Tool.Name
}

// clone returns a copy that shares no mutable memory with m.
func (m Message) clone() Message {
	if m.Tool.Payload != nil {
		m.Tool.Payload = bytes.Clone(m.Tool.Payload)
	}
	return m
}
