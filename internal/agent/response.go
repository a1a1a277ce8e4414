// ABOUTME: Response event types produced by the remote agent runtime
// ABOUTME: Mirrors the SSE event names the runtime emits

package agent

// SendRequest is a user submission for a thread.
type SendRequest struct {
	ThreadID string `json:"thread_id"`
	Content  string `json:"content"`
}

// ResponseEvent indicates the type of response event.
type ResponseEvent int

const (
	EventText ResponseEvent = iota
	EventToolUse
	EventToolResult
	EventDone
	EventError
)

// String returns the SSE event name.
func (e ResponseEvent) String() string {
	switch e {
	case EventText:
		return "text"
	case EventToolUse:
		return "tool_use"
	case EventToolResult:
		return "tool_result"
	case EventDone:
		return "done"
	case EventError:
		return "error"
	default:
		return "unknown"
	}
}

// Response represents a response event from the agent.
type Response struct {
	EventID    string
	Event      ResponseEvent
	Text       string
	ToolUse    *ToolUseEvent
	ToolResult *ToolResultEvent
	Error      string
	Done       bool
}

// ToolUseEvent represents a tool invocation by the agent.
type ToolUseEvent struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	InputJSON string `json:"input_json"`
}

// ToolResultEvent represents the result of a tool invocation.
type ToolResultEvent struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Output  string `json:"output"`
	IsError bool   `json:"is_error"`
}
