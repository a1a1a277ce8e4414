// ABOUTME: Renderer registry that turns classified messages into HTML fragments
// ABOUTME: Search and general tool views use embedded templates; text goes through goldmark

package render

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"log/slog"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/2389/docs-copilot/internal/classify"
	"github.com/2389/docs-copilot/internal/conversation"
)

//go:embed templates/*.html
var templateFS embed.FS

var templates = template.Must(template.ParseFS(templateFS, "templates/*.html"))

// ErrBadPayload is returned by a renderer that cannot decode a tool payload.
var ErrBadPayload = errors.New("unrenderable tool payload")

// Renderer renders one message as an HTML fragment.
type Renderer interface {
	Render(msg conversation.Message) (template.HTML, error)
}

// RendererFunc adapts a function to Renderer.
type RendererFunc func(msg conversation.Message) (template.HTML, error)

// Render calls f.
func (f RendererFunc) Render(msg conversation.Message) (template.HTML, error) { return f(msg) }

// Registry maps renderer keys to renderers.
type Registry struct {
	classifier *classify.Classifier
	renderers  map[classify.Key]Renderer
	markdown   goldmark.Markdown
	logger     *slog.Logger
}

// NewRegistry creates a registry with the search and general renderers bound.
func NewRegistry(classifier *classify.Classifier, logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{
		classifier: classifier,
		renderers:  make(map[classify.Key]Renderer),
		markdown:   goldmark.New(goldmark.WithExtensions(extension.GFM)),
		logger:     logger.With("component", "render"),
	}
	r.Register(classify.Search, RendererFunc(renderSearch))
	r.Register(classify.General, RendererFunc(renderGeneral))
	return r
}

// Register binds key to r, replacing any previous renderer.
// Call before the registry is shared.
func (r *Registry) Register(key classify.Key, renderer Renderer) {
	r.renderers[key] = renderer
}

// Render classifies msg and renders it. Text messages come back with the
// NoRender key and markdown HTML for the widget's default bubble.
func (r *Registry) Render(msg conversation.Message) (classify.Key, template.HTML) {
	key := r.classifier.Classify(&msg)
	if key == classify.NoRender {
		if msg.Kind == conversation.KindText {
			return key, r.renderMarkdown(msg.Content)
		}
		return key, ""
	}

	renderer, ok := r.renderers[key]
	if !ok {
		renderer = r.renderers[classify.General]
	}
	out, err := renderer.Render(msg)
	if err == nil {
		return key, out
	}

	r.logger.Warn("renderer failed, using general view", "error", err, "renderer", key, "tool", msg.Name())
	out, err = renderGeneral(msg)
	if err != nil {
		r.logger.Error("general renderer failed", "error", err, "tool", msg.Name())
		return key, ""
	}
	return key, out
}

func (r *Registry) renderMarkdown(content string) template.HTML {
	var buf bytes.Buffer
	if err := r.markdown.Convert([]byte(content), &buf); err != nil {
		r.logger.Error("failed to convert markdown", "error", err)
		return template.HTML("<p>" + template.HTMLEscapeString(content) + "</p>")
	}
	return template.HTML(buf.String())
}

// SearchResult is one documentation hit returned by the search tool.
type SearchResult struct {
	Title   string `json:"title"`
	URL     string `json:"url"`
	Snippet string `json:"snippet"`
}

func renderSearch(msg conversation.Message) (template.HTML, error) {
	var input struct {
		Query string `json:"query"`
	}
	if len(msg.Tool.Payload) > 0 {
		if err := json.Unmarshal(msg.Tool.Payload, &input); err != nil {
			return "", fmt.Errorf("%w: search input: %v", ErrBadPayload, err)
		}
	}

	var results []SearchResult
	pending := msg.Tool.Status != conversation.ToolComplete
	if !pending && msg.Tool.Result != "" {
		if err := json.Unmarshal([]byte(msg.Tool.Result), &results); err != nil {
			return "", fmt.Errorf("%w: search results: %v", ErrBadPayload, err)
		}
	}

	return execute("search.html", map[string]any{
		"Status":  msg.Tool.Status,
		"Pending": pending,
		"Query":   input.Query,
		"Results": results,
	})
}

func renderGeneral(msg conversation.Message) (template.HTML, error) {
	payload := ""
	if len(msg.Tool.Payload) > 0 {
		var buf bytes.Buffer
		if err := json.Indent(&buf, msg.Tool.Payload, "", "  "); err != nil {
			payload = string(msg.Tool.Payload)
		} else {
			payload = buf.String()
		}
	}
	return execute("general.html", map[string]any{
		"Status":  msg.Tool.Status,
		"Pending": msg.Tool.Status != conversation.ToolComplete,
		"Name":    msg.Tool.Name,
		"Payload": payload,
		"Result":  msg.Tool.Result,
	})
}

func execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := templates.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("executing %s: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}
