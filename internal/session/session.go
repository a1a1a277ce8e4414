// ABOUTME: Session state object owning thread identity and the conversation buffer
// ABOUTME: Guards appends against superseded threads with a generation counter

package session

import (
	"errors"
	"sync"
	"time"

	"github.com/2389/docs-copilot/internal/conversation"
	"github.com/2389/docs-copilot/internal/thread"
)

// ErrStaleThread is returned when appending to a thread that is no longer current.
var ErrStaleThread = errors.New("thread superseded by reset")

// Publisher receives session events for delivery to the widget. Publish is
// called with the session lock held, so events arrive in state order; it must
// not block or call back into the session.
type Publisher interface {
	Publish(sessionKey string, event *conversation.Event)
}

// ResetStatus describes the last reset that was not superseded.
type ResetStatus struct {
	ThreadID           thread.ID `json:"thread_id"`
	RemoteAcknowledged bool      `json:"remote_acknowledged"`
	At                 time.Time `json:"at"`
}

// Session is the explicitly owned state of one widget conversation.
type Session struct {
	key       string
	publisher Publisher

	// resetMu orders resets so each one invalidates the thread it rotates away from.
	resetMu sync.Mutex

	mu         sync.Mutex
	threadID   thread.ID
	generation uint64
	buffer     conversation.Buffer
	lastReset  *ResetStatus
}

// New creates a session identified by key with a freshly issued thread ID.
// publisher may be nil.
func New(key string, ids *thread.Source, publisher Publisher) *Session {
	return &Session{
		key:       key,
		publisher: publisher,
		threadID:  ids.NewID(),
	}
}

// Key returns the session key (the widget's client ID).
func (s *Session) Key() string { return s.key }

// ThreadID returns the current thread ID; it is also the widget's remount key.
func (s *Session) ThreadID() thread.ID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.threadID
}

// Generation returns how many rotations the session has seen.
func (s *Session) Generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.generation
}

// Messages returns a copy of the current thread's messages.
func (s *Session) Messages() []conversation.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buffer.Snapshot()
}

// LastReset returns the status of the most recent settled reset.
func (s *Session) LastReset() (ResetStatus, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lastReset == nil {
		return ResetStatus{}, false
	}
	return *s.lastReset, true
}

// Append adds msg to the conversation if threadID is still current.
func (s *Session) Append(threadID thread.ID, msg conversation.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if threadID != s.threadID {
		return ErrStaleThread
	}
	s.buffer.Append(msg)
	s.publish(&conversation.Event{Type: conversation.EventMessage, ThreadID: threadID.String(), Message: &msg})
	return nil
}

// rotate installs next as the current thread and clears the buffer.
func (s *Session) rotate(next thread.ID) (previous thread.ID, generation uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	previous = s.threadID
	s.threadID = next
	s.buffer.Clear()
	s.generation++
	s.publish(&conversation.Event{Type: conversation.EventReset, ThreadID: next.String()})
	return previous, s.generation
}

// settle records status if no rotation happened after generation.
func (s *Session) settle(generation uint64, status ResetStatus) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if generation != s.generation {
		return false
	}
	s.lastReset = &status
	return true
}

func (s *Session) publish(event *conversation.Event) {
	if s.publisher != nil {
		s.publisher.Publish(s.key, event)
	}
}
