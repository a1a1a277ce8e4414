// ABOUTME: Tests for the client session hub
// ABOUTME: Covers reuse by client id and idle eviction

package server

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/docs-copilot/internal/conversation"
	"github.com/2389/docs-copilot/internal/input"
	"github.com/2389/docs-copilot/internal/session"
	"github.com/2389/docs-copilot/internal/thread"
)

func newTestHub(t *testing.T, dispatch input.DispatcherFunc) (*hub, *time.Time) {
	t.Helper()
	ids, err := thread.NewSource(nil)
	require.NoError(t, err)

	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	h := newHub(func(key string) *clientSession {
		ctx, cancel := context.WithCancel(context.Background())
		sess := session.New(key, ids, nil)
		return &clientSession{
			session: sess,
			resets:  session.NewCoordinator(sess, ids, nil, nil, nil),
			gate:    input.NewGate(ctx, dispatch, nil),
			cancel:  cancel,
		}
	}, slog.Default())
	h.now = func() time.Time { return now }
	t.Cleanup(h.Close)
	return h, &now
}

func closedStream(ctx context.Context, text string) (<-chan conversation.Message, error) {
	ch := make(chan conversation.Message)
	close(ch)
	return ch, nil
}

func TestHub_ReusesSessionByKey(t *testing.T) {
	h, _ := newTestHub(t, closedStream)

	a := h.getOrCreate("client-a")
	assert.Same(t, a, h.getOrCreate("client-a"))
	assert.NotSame(t, a, h.getOrCreate("client-b"))
	assert.Equal(t, 2, h.len())
}

func TestHub_EvictsIdleSessions(t *testing.T) {
	h, now := newTestHub(t, closedStream)

	h.getOrCreate("old")
	*now = now.Add(20 * time.Minute)
	h.getOrCreate("fresh")

	*now = now.Add(15 * time.Minute)
	h.cleanupStaleSessions()

	assert.Equal(t, 1, h.len())
	h.mu.Lock()
	_, ok := h.sessions["fresh"]
	h.mu.Unlock()
	assert.True(t, ok)
}

func TestHub_KeepsInFlightSessions(t *testing.T) {
	release := make(chan conversation.Message)
	h, now := newTestHub(t, func(ctx context.Context, text string) (<-chan conversation.Message, error) {
		return release, nil
	})

	cs := h.getOrCreate("busy")
	require.True(t, cs.gate.Submit("hello"))

	*now = now.Add(time.Hour)
	h.cleanupStaleSessions()
	assert.Equal(t, 1, h.len())

	close(release)
	cs.gate.Wait()
	h.cleanupStaleSessions()
	assert.Equal(t, 0, h.len())
}

func TestForwardable_DropsMessagesForOldThread(t *testing.T) {
	h, _ := newTestHub(t, closedStream)
	cs := h.getOrCreate("client-a")
	old := cs.session.ThreadID().String()

	msg := conversation.NewText(conversation.RoleAssistant, "answer")
	oldMessage := &conversation.Event{Type: conversation.EventMessage, ThreadID: old, Message: &msg}
	assert.True(t, forwardable(cs, oldMessage))

	result := cs.resets.Reset(context.Background())
	current := result.ThreadID.String()

	assert.False(t, forwardable(cs, oldMessage), "message from a reset thread must not reach the widget")
	assert.True(t, forwardable(cs, &conversation.Event{Type: conversation.EventReset, ThreadID: current}))
	assert.True(t, forwardable(cs, &conversation.Event{Type: conversation.EventMessage, ThreadID: current, Message: &msg}))
	assert.True(t, forwardable(cs, &conversation.Event{Type: conversation.EventIdle, ThreadID: old}))
}
