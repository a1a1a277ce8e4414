// ABOUTME: Routes assistant messages to renderer keys by exact tool name
// ABOUTME: Unknown tool names fall back to the default key; plain text renders nothing here

package classify

import (
	"github.com/2389/docs-copilot/internal/conversation"
)

// Key names a renderer capability.
type Key string

const (
	// NoRender tells the caller to render nothing for the message.
	NoRender Key = ""
	// Search renders documentation search tool calls.
	Search Key = "search"
	// General renders any other tool call.
	General Key = "general"
)

// DefaultEntry is the binding entry used when no tool name matches.
const DefaultEntry = "*"

// SearchDocsTool is the documentation search tool exposed by the agent.
const SearchDocsTool = "search_starrocks_doc"

// Binding maps exact, case-sensitive tool names to renderer keys.
type Binding map[string]Key

// DefaultBinding returns the static startup table.
func DefaultBinding() Binding {
	return Binding{
		SearchDocsTool: Search,
		DefaultEntry:   General,
	}
}

// Classifier picks a renderer key for a message. It is safe for concurrent
// use because the binding is copied at construction and never written.
type Classifier struct {
	binding  Binding
	fallback Key
}

// New builds a Classifier from binding. A missing "*" entry falls back to General.
func New(binding Binding) *Classifier {
	copied := make(Binding, len(binding))
	for name, key := range binding {
		copied[name] = key
	}
	fallback, ok := copied[DefaultEntry]
	if !ok {
		fallback = General
	}
	return &Classifier{binding: copied, fallback: fallback}
}

// Classify returns NoRender for nil messages, text messages and tool calls
// without a name. Otherwise the exact tool name is looked up in the binding.
func (c *Classifier) Classify(msg *conversation.Message) Key {
	if msg == nil {
		return NoRender
	}
	name := msg.Name()
	if name == "" {
		return NoRender
	}
	if key, ok := c.binding[name]; ok {
		return key
	}
	return c.fallback
}
