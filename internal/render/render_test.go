// ABOUTME: Tests for the renderer registry
// ABOUTME: Checks routing to search/general views, markdown text, and fallback on bad payloads

package render

import (
	"encoding/json"
	"html/template"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/2389/docs-copilot/internal/classify"
	"github.com/2389/docs-copilot/internal/conversation"
)

func newRegistry() *Registry {
	return NewRegistry(classify.New(classify.DefaultBinding()), nil)
}

func TestRegistry_RenderSearchResults(t *testing.T) {
	msg := conversation.NewToolCall(conversation.ToolCall{
		Name:    classify.SearchDocsTool,
		Payload: json.RawMessage(`{"query":"async materialized view"}`),
		Status:  conversation.ToolComplete,
		Result:  `[{"title":"CREATE MATERIALIZED VIEW","url":"https://docs.example.com/mv","snippet":"Creates an async MV."}]`,
	})

	key, out := newRegistry().Render(msg)

	assert.Equal(t, classify.Search, key)
	assert.Contains(t, string(out), `dc-tool-search`)
	assert.Contains(t, string(out), `href="https://docs.example.com/mv"`)
	assert.Contains(t, string(out), `CREATE MATERIALIZED VIEW`)
	assert.Contains(t, string(out), `async materialized view`)
}

func TestRegistry_RenderSearchPending(t *testing.T) {
	msg := conversation.NewToolCall(conversation.ToolCall{
		Name:    classify.SearchDocsTool,
		Payload: json.RawMessage(`{"query":"broker load"}`),
		Status:  conversation.ToolExecuting,
	})

	_, out := newRegistry().Render(msg)
	assert.Contains(t, string(out), "Searching the docs for")
}

func TestRegistry_MalformedSearchFallsBackToGeneral(t *testing.T) {
	msg := conversation.NewToolCall(conversation.ToolCall{
		Name:   classify.SearchDocsTool,
		Status: conversation.ToolComplete,
		Result: "not json",
	})

	key, out := newRegistry().Render(msg)
	assert.Equal(t, classify.Search, key)
	assert.Contains(t, string(out), "dc-tool-general")
	assert.Contains(t, string(out), "not json")
}

func TestRegistry_UnknownToolUsesGeneral(t *testing.T) {
	msg := conversation.NewToolCall(conversation.ToolCall{
		Name:    "explain_query_plan",
		Payload: json.RawMessage(`{"sql":"select 1"}`),
	})

	key, out := newRegistry().Render(msg)
	assert.Equal(t, classify.General, key)
	assert.Contains(t, string(out), "<code>explain_query_plan</code>")
	assert.Contains(t, string(out), "Running")
}

func TestRegistry_GeneralEscapesPayload(t *testing.T) {
	msg := conversation.NewToolCall(conversation.ToolCall{
		Name:   "other",
		Status: conversation.ToolComplete,
		Result: "<script>alert(1)</script>",
	})

	_, out := newRegistry().Render(msg)
	assert.NotContains(t, string(out), "<script>")
	assert.Contains(t, string(out), "&lt;script&gt;")
}

func TestRegistry_TextRendersMarkdown(t *testing.T) {
	msg := conversation.NewText(conversation.RoleAssistant, "Use **partitioning**.\n\n<b>raw</b>")

	key, out := newRegistry().Render(msg)
	assert.Equal(t, classify.NoRender, key)
	assert.Contains(t, string(out), "<strong>partitioning</strong>")
	assert.NotContains(t, string(out), "<b>raw</b>")
}

func TestRegistry_CustomRenderer(t *testing.T) {
	binding := classify.DefaultBinding()
	binding["run_sql"] = "sql"
	reg := NewRegistry(classify.New(binding), nil)
	reg.Register("sql", RendererFunc(func(msg conversation.Message) (template.HTML, error) {
		return "<div>sql view</div>", nil
	}))

	key, out := reg.Render(conversation.NewToolCall(conversation.ToolCall{Name: "run_sql"}))
	assert.Equal(t, classify.Key("sql"), key)
	assert.Equal(t, template.HTML("<div>sql view</div>"), out)
}

func TestRegistry_UnregisteredKeyUsesGeneral(t *testing.T) {
	binding := classify.DefaultBinding()
	binding["chart"] = "chart"
	reg := NewRegistry(classify.New(binding), nil)

	key, out := reg.Render(conversation.NewToolCall(conversation.ToolCall{Name: "chart"}))
	assert.Equal(t, classify.Key("chart"), key)
	assert.Contains(t, string(out), "dc-tool-general")
}
