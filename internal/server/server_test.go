// ABOUTME: Tests for the widget host API
// ABOUTME: Drives the HTTP routes against fake agent and reset endpoints

package server

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/docs-copilot/internal/config"
	"github.com/2389/docs-copilot/internal/session"
	"github.com/2389/docs-copilot/internal/store"
)

// fakeAgent answers every send with a fixed SSE script.
func fakeAgent(t *testing.T, script string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = io.WriteString(w, script)
	}))
	t.Cleanup(srv.Close)
	return srv
}

// resetRecorder records remote reset calls and answers with status.
type resetRecorder struct {
	mu       sync.Mutex
	threads  []string
	methods  []string
	bodyLens []int
	status   int
}

func (rr *resetRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	rr.mu.Lock()
	rr.threads = append(rr.threads, r.Header.Get("X-Thread-ID"))
	rr.methods = append(rr.methods, r.Method)
	rr.bodyLens = append(rr.bodyLens, len(body))
	status := rr.status
	rr.mu.Unlock()
	w.WriteHeader(status)
}

func (rr *resetRecorder) calls() []string {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	return append([]string(nil), rr.threads...)
}

const helloScript = "event: text\ndata: {\"text\":\"Hello **there**\"}\n\nevent: done\ndata: {}\n\n"

func testConfig(agentURL string) *config.Config {
	return &config.Config{
		Server: config.ServerConfig{HTTPAddr: "127.0.0.1:0"},
		Agent: config.AgentConfig{
			Endpoint: agentURL,
			APIKey:   "sk-test",
			Timeout:  5 * time.Second,
		},
		Reset: config.ResetConfig{Timeout: 2 * time.Second},
		Widget: config.WidgetConfig{
			DefaultOpen: true,
			Labels:      config.WidgetLabels{Title: "Ask the docs"},
		},
	}
}

type testClient struct {
	t    *testing.T
	base string
	http *http.Client
}

func newTestServer(t *testing.T, cfg *config.Config) (*Server, *testClient) {
	t.Helper()
	srv, err := New(cfg, nil)
	require.NoError(t, err)

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return srv, &testClient{t: t, base: ts.URL, http: &http.Client{Jar: jar}}
}

func (c *testClient) getSession() sessionResponse {
	c.t.Helper()
	resp, err := c.http.Get(c.base + "/api/session")
	require.NoError(c.t, err)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)

	var out sessionResponse
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (c *testClient) submit(text string) bool {
	c.t.Helper()
	body, _ := json.Marshal(map[string]string{"text": text})
	resp, err := c.http.Post(c.base+"/api/session/input", "application/json", strings.NewReader(string(body)))
	require.NoError(c.t, err)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)

	var out struct {
		Dispatched bool `json:"dispatched"`
	}
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return out.Dispatched
}

func (c *testClient) reset() session.ResetResult {
	c.t.Helper()
	resp, err := c.http.Post(c.base+"/api/session/reset", "application/json", nil)
	require.NoError(c.t, err)
	defer resp.Body.Close()
	require.Equal(c.t, http.StatusOK, resp.StatusCode)

	var out session.ResetResult
	require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&out))
	return out
}

func (c *testClient) waitIdle() sessionResponse {
	c.t.Helper()
	var snap sessionResponse
	require.Eventually(c.t, func() bool {
		snap = c.getSession()
		return !snap.InProgress
	}, 2*time.Second, 10*time.Millisecond)
	return snap
}

type sessionResponse struct {
	ThreadID    string              `json:"thread_id"`
	DefaultOpen bool                `json:"default_open"`
	Labels      config.WidgetLabels `json:"labels"`
	InProgress  bool                `json:"in_progress"`
	LastReset   *struct {
		ThreadID           string `json:"thread_id"`
		RemoteAcknowledged bool   `json:"remote_acknowledged"`
	} `json:"last_reset"`
	Messages []struct {
		ID       string `json:"id"`
		Kind     string `json:"kind"`
		Role     string `json:"role"`
		Content  string `json:"content"`
		Renderer string `json:"renderer"`
		HTML     string `json:"html"`
		Tool     struct {
			Name   string `json:"name"`
			Status string `json:"status"`
		} `json:"tool"`
	} `json:"messages"`
}

func TestGetSession_IssuesClientAndThread(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	first := client.getSession()
	assert.NotEmpty(t, first.ThreadID)
	assert.True(t, first.DefaultOpen)
	assert.Equal(t, "Ask the docs", first.Labels.Title)
	assert.False(t, first.InProgress)
	assert.Empty(t, first.Messages)
	assert.Nil(t, first.LastReset)

	// The cookie keeps the same session.
	second := client.getSession()
	assert.Equal(t, first.ThreadID, second.ThreadID)
}

func TestGetSession_SeparateClientsSeparateThreads(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	other := &testClient{t: t, base: client.base, http: &http.Client{Jar: jar}}

	assert.NotEqual(t, client.getSession().ThreadID, other.getSession().ThreadID)
}

func TestInput_DispatchesAndRecordsReply(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	assert.True(t, client.submit("  hello  "))

	var snap sessionResponse
	require.Eventually(t, func() bool {
		snap = client.getSession()
		return !snap.InProgress && len(snap.Messages) == 2
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, "user", snap.Messages[0].Role)
	assert.Equal(t, "hello", snap.Messages[0].Content)
	assert.Equal(t, "assistant", snap.Messages[1].Role)
	assert.Equal(t, "", snap.Messages[1].Renderer)
	assert.Contains(t, snap.Messages[1].HTML, "<strong>there</strong>")
}

func TestInput_BlankIsNotDispatched(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	assert.False(t, client.submit(""))
	assert.False(t, client.submit("   \n"))
	assert.Empty(t, client.getSession().Messages)
}

func TestInput_InvalidBody(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	resp, err := client.http.Post(client.base+"/api/session/input", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInput_AgentFailureReturnsToIdle(t *testing.T) {
	agentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "overloaded", http.StatusServiceUnavailable)
	}))
	t.Cleanup(agentSrv.Close)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	assert.True(t, client.submit("hello"), "a forwarded submission counts even if the agent fails")
	snap := client.waitIdle()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "user", snap.Messages[0].Role)

	assert.True(t, client.submit("again"))
}

func TestInput_ToolCallsRouteToRenderers(t *testing.T) {
	script := "event: tool_use\ndata: {\"id\":\"t1\",\"name\":\"search_starrocks_doc\",\"input_json\":\"{\\\"query\\\":\\\"bitmap\\\"}\"}\n\n" +
		"event: tool_result\ndata: {\"id\":\"t1\",\"output\":\"[{\\\"title\\\":\\\"Bitmap index\\\",\\\"url\\\":\\\"https://docs.starrocks.io/bitmap\\\"}]\"}\n\n" +
		"event: tool_use\ndata: {\"id\":\"t2\",\"name\":\"run_sql\",\"input_json\":\"{}\"}\n\n" +
		"event: done\ndata: {}\n\n"
	agentSrv := fakeAgent(t, script)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	require.True(t, client.submit("bitmap?"))

	var snap sessionResponse
	require.Eventually(t, func() bool {
		snap = client.getSession()
		return !snap.InProgress && len(snap.Messages) == 4
	}, 2*time.Second, 10*time.Millisecond)

	search := snap.Messages[2]
	assert.Equal(t, "tool_call", search.Kind)
	assert.Equal(t, "search", search.Renderer)
	assert.Equal(t, "complete", search.Tool.Status)
	assert.Contains(t, search.HTML, "https://docs.starrocks.io/bitmap")

	other := snap.Messages[3]
	assert.Equal(t, "run_sql", other.Tool.Name)
	assert.Equal(t, "general", other.Renderer)
}

func TestReset_RotatesAndInvalidatesRemote(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	recorder := &resetRecorder{status: http.StatusNoContent}
	resetSrv := httptest.NewServer(recorder)
	t.Cleanup(resetSrv.Close)

	cfg := testConfig(agentSrv.URL)
	cfg.Reset.URL = resetSrv.URL
	_, client := newTestServer(t, cfg)

	require.True(t, client.submit("hello"))
	before := client.waitIdle()
	require.NotEmpty(t, before.Messages)

	result := client.reset()
	assert.True(t, result.LocalCleared)
	assert.True(t, result.RemoteAcknowledged)
	assert.False(t, result.Superseded)
	assert.NotEqual(t, before.ThreadID, result.ThreadID.String())

	assert.Equal(t, []string{before.ThreadID}, recorder.calls())
	recorder.mu.Lock()
	assert.Equal(t, []string{http.MethodPost}, recorder.methods)
	assert.Equal(t, []int{0}, recorder.bodyLens)
	recorder.mu.Unlock()

	after := client.getSession()
	assert.Equal(t, result.ThreadID.String(), after.ThreadID)
	assert.Empty(t, after.Messages)
	require.NotNil(t, after.LastReset)
	assert.True(t, after.LastReset.RemoteAcknowledged)
}

func TestReset_RemoteFailureStillClearsLocally(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	recorder := &resetRecorder{status: http.StatusInternalServerError}
	resetSrv := httptest.NewServer(recorder)
	t.Cleanup(resetSrv.Close)

	cfg := testConfig(agentSrv.URL)
	cfg.Reset.URL = resetSrv.URL
	_, client := newTestServer(t, cfg)

	before := client.getSession()
	result := client.reset()

	assert.True(t, result.LocalCleared)
	assert.False(t, result.RemoteAcknowledged)
	assert.NotEqual(t, before.ThreadID, result.ThreadID.String())
	assert.Len(t, recorder.calls(), 1)
}

func TestReset_WithoutRemote(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	result := client.reset()
	assert.True(t, result.LocalCleared)
	assert.False(t, result.RemoteAcknowledged)
}

func TestReset_ArchivesClosedThread(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	cfg := testConfig(agentSrv.URL)
	dbPath := filepath.Join(t.TempDir(), "transcripts.db")
	cfg.Database.Path = dbPath
	srv, client := newTestServer(t, cfg)

	require.True(t, client.submit("hello"))
	before := client.waitIdle()
	client.reset()

	thread, err := srv.store.GetThread(context.Background(), before.ThreadID)
	require.NoError(t, err)
	assert.NotNil(t, thread.ClosedAt)
	assert.False(t, thread.RemoteAcknowledged)

	msgs, err := srv.store.GetThreadMessages(context.Background(), before.ThreadID, 100)
	require.NoError(t, err)
	assert.Len(t, msgs, 2)

	_, err = srv.store.GetThread(context.Background(), "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestEvents_StreamsResetAndMessages(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, client.base+"/api/session/events", nil)
	require.NoError(t, err)
	resp, err := client.http.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	events := readSSE(t, resp.Body)
	ready := <-events
	assert.Equal(t, "ready", ready.name)

	result := client.reset()
	reset := <-events
	assert.Equal(t, "reset", reset.name)
	assert.Contains(t, reset.data, result.ThreadID.String())

	require.True(t, client.submit("hello"))
	var names []string
	for ev := range events {
		names = append(names, ev.name)
		if ev.name == "idle" {
			break
		}
	}
	assert.Equal(t, []string{"message", "message", "idle"}, names)
}

type sseEvent struct {
	name string
	data string
}

// readSSE parses events from body until it closes.
func readSSE(t *testing.T, body io.Reader) <-chan sseEvent {
	t.Helper()
	out := make(chan sseEvent, 16)
	go func() {
		defer close(out)
		scanner := bufio.NewScanner(body)
		var ev sseEvent
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case line == "":
				out <- ev
				ev = sseEvent{}
			case strings.HasPrefix(line, "event: "):
				ev.name = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				ev.data = strings.TrimPrefix(line, "data: ")
			}
		}
	}()
	return out
}

func TestHealth(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	resp, err := client.http.Get(client.base + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))
}

func TestRun_ShutsDownOnCancel(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	srv, err := New(testConfig(agentSrv.URL), nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRun_ListenError(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	cfg := testConfig(agentSrv.URL)
	cfg.Server.HTTPAddr = "256.0.0.1:bad"
	srv, err := New(cfg, nil)
	require.NoError(t, err)

	err = srv.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), fmt.Sprintf("listening on %s", cfg.Server.HTTPAddr))
}

func TestReset_AbandonsInFlightRequest(t *testing.T) {
	// The agent sends headers and then never finishes the stream.
	agentSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		<-r.Context().Done()
	}))
	t.Cleanup(agentSrv.Close)
	_, client := newTestServer(t, testConfig(agentSrv.URL))

	require.True(t, client.submit("question one"))
	require.True(t, client.getSession().InProgress)

	result := client.reset()
	assert.True(t, result.LocalCleared)

	after := client.getSession()
	assert.Equal(t, result.ThreadID.String(), after.ThreadID)
	assert.False(t, after.InProgress, "reset must unlock the input")
	assert.Empty(t, after.Messages)

	assert.True(t, client.submit("question two"))
	snap := client.getSession()
	require.Len(t, snap.Messages, 1)
	assert.Equal(t, "question two", snap.Messages[0].Content)
}

// syncBuffer collects log output from concurrent writers.
type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestLogging_OneComponentPerLine(t *testing.T) {
	agentSrv := fakeAgent(t, helloScript)
	logs := &syncBuffer{}
	logger := slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))

	srv, err := New(testConfig(agentSrv.URL), logger)
	require.NoError(t, err)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Close()
	})
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	client := &testClient{t: t, base: ts.URL, http: &http.Client{Jar: jar}}

	assert.False(t, client.submit("   "))
	client.reset()

	out := logs.String()
	assert.Contains(t, out, "component=reset")
	assert.Contains(t, out, "component=input")
	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		assert.LessOrEqual(t, strings.Count(line, "component="), 1, "line: %s", line)
	}
}
