// ABOUTME: Per-client session hub for the widget host API
// ABOUTME: Creates sessions on first contact and evicts ones idle for more than 30 minutes

package server

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/2389/docs-copilot/internal/input"
	"github.com/2389/docs-copilot/internal/session"
)

const (
	sessionIdleTimeout = 30 * time.Minute
	cleanupInterval    = time.Minute
)

// clientSession bundles everything one widget instance talks to.
type clientSession struct {
	session *session.Session
	resets  *session.Coordinator
	gate    *input.Gate
	cancel  context.CancelFunc

	mu       sync.Mutex
	lastUsed time.Time
}

func (c *clientSession) touch(now time.Time) {
	c.mu.Lock()
	c.lastUsed = now
	c.mu.Unlock()
}

func (c *clientSession) idleFor(now time.Time) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return now.Sub(c.lastUsed)
}

// close stops any in-flight request and waits for the gate to go idle.
func (c *clientSession) close() {
	c.cancel()
	c.gate.Wait()
}

// hub holds the active client sessions keyed by client id.
type hub struct {
	mu       sync.Mutex
	sessions map[string]*clientSession
	create   func(key string) *clientSession
	now      func() time.Time
	logger   *slog.Logger
}

func newHub(create func(key string) *clientSession, logger *slog.Logger) *hub {
	return &hub{
		sessions: make(map[string]*clientSession),
		create:   create,
		now:      time.Now,
		logger:   logger,
	}
}

// getOrCreate returns the session for key, creating it on first use.
func (h *hub) getOrCreate(key string) *clientSession {
	h.mu.Lock()
	defer h.mu.Unlock()

	now := h.now()
	if cs, ok := h.sessions[key]; ok {
		cs.touch(now)
		return cs
	}

	cs := h.create(key)
	cs.lastUsed = now
	h.sessions[key] = cs
	h.logger.Debug("session created", "client_id", key, "thread_id", cs.session.ThreadID())
	return cs
}

// cleanupLoop periodically removes stale sessions until ctx ends.
func (h *hub) cleanupLoop(ctx context.Context) {
	ticker := time.NewTicker(cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			h.cleanupStaleSessions()
		}
	}
}

// cleanupStaleSessions removes idle sessions. A session with a request in
// flight is never evicted.
func (h *hub) cleanupStaleSessions() {
	now := h.now()

	h.mu.Lock()
	var stale []*clientSession
	for key, cs := range h.sessions {
		if cs.gate.InProgress() || cs.idleFor(now) <= sessionIdleTimeout {
			continue
		}
		stale = append(stale, cs)
		delete(h.sessions, key)
		h.logger.Debug("session evicted", "client_id", key)
	}
	h.mu.Unlock()

	for _, cs := range stale {
		cs.close()
	}
}

func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Close closes every session.
func (h *hub) Close() {
	h.mu.Lock()
	sessions := h.sessions
	h.sessions = make(map[string]*clientSession)
	h.mu.Unlock()

	for _, cs := range sessions {
		cs.close()
	}
}
