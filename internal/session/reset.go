// ABOUTME: Reset coordinator that rotates thread identity and clears local state
// ABOUTME: Remote invalidation is best-effort; a reset never fails from the caller's view

package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/2389/docs-copilot/internal/thread"
)

// RemoteResetter discards session-scoped state held by the remote agent.
type RemoteResetter interface {
	Reset(ctx context.Context, threadID string) error
}

// Archive records the end of a thread.
type Archive interface {
	CloseThread(ctx context.Context, threadID string, remoteAcknowledged bool) error
}

// ResetResult reports what a reset achieved. LocalCleared is always true.
type ResetResult struct {
	LocalCleared       bool      `json:"local_cleared"`
	RemoteAcknowledged bool      `json:"remote_acknowledged"`
	ThreadID           thread.ID `json:"thread_id"`
	Superseded         bool      `json:"superseded"`
}

// Coordinator is the only writer of a session's thread ID and buffer.
type Coordinator struct {
	session *Session
	ids     *thread.Source
	remote  RemoteResetter
	archive Archive
	logger  *slog.Logger

	onRotate func()
}

// NewCoordinator creates a coordinator for sess. remote and archive may be nil.
func NewCoordinator(sess *Session, ids *thread.Source, remote RemoteResetter, archive Archive, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		session: sess,
		ids:     ids,
		remote:  remote,
		archive: archive,
		logger:  logger.With("component", "reset", "session_key", sess.Key()),
	}
}

// OnRotate registers fn to run right after each rotation, before the remote
// outcome is known. The server uses it to abandon the in-flight request.
// Call before the coordinator is shared.
func (c *Coordinator) OnRotate(fn func()) {
	c.onRotate = fn
}

// Reset starts remote invalidation, rotates the thread, clears the buffer and
// then waits for the remote outcome. It is safe to call concurrently; the last
// rotation wins and earlier remote outcomes are ignored.
func (c *Coordinator) Reset(ctx context.Context) ResetResult {
	// The outgoing id, the remote call and the rotation belong together: a
	// concurrent reset must target the thread this one installs.
	c.session.resetMu.Lock()
	outgoing := c.session.ThreadID()

	var remoteDone chan error
	if c.remote != nil {
		remoteDone = make(chan error, 1)
		go func() {
			remoteDone <- c.remote.Reset(ctx, outgoing.String())
		}()
	}

	next := c.ids.NewID()
	previous, generation := c.session.rotate(next)
	c.session.resetMu.Unlock()
	c.logger.Info("thread rotated", "previous_thread_id", previous, "thread_id", next)

	if c.onRotate != nil {
		c.onRotate()
	}

	acknowledged := false
	if remoteDone != nil {
		var err error
		select {
		case err = <-remoteDone:
		case <-ctx.Done():
			err = ctx.Err()
		}
		if err != nil {
			c.logger.Warn("remote reset failed", "error", err, "thread_id", outgoing)
		} else {
			acknowledged = true
		}
	}

	result := ResetResult{
		LocalCleared:       true,
		RemoteAcknowledged: acknowledged,
		ThreadID:           next,
	}

	if !c.session.settle(generation, ResetStatus{ThreadID: next, RemoteAcknowledged: acknowledged, At: time.Now()}) {
		c.logger.Debug("reset superseded by a newer reset", "thread_id", next)
		result.RemoteAcknowledged = false
		result.Superseded = true
	}

	// The archive records what the remote said about the thread it was
	// asked to drop, superseded or not.
	c.closeThread(previous, acknowledged)
	return result
}

// closeThread archives the end of a thread with its own timeout so a
// cancelled request does not lose the record.
func (c *Coordinator) closeThread(id thread.ID, acknowledged bool) {
	if c.archive == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := c.archive.CloseThread(ctx, id.String(), acknowledged); err != nil {
		c.logger.Error("failed to archive thread close", "error", err, "thread_id", id)
	}
}
