// ABOUTME: In-memory fan-out of session events to widget stream subscribers
// ABOUTME: Publishes appended messages and resets to every subscriber of a session key

package conversation

import (
	"context"
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

const (
	// subscriberBufferSize is the channel buffer for each subscriber.
	subscriberBufferSize = 64
)

// EventType names a session event.
type EventType string

const (
	EventMessage EventType = "message"
	EventReset   EventType = "reset"
	EventIdle    EventType = "idle"
)

// Event is delivered to subscribers of a session.
type Event struct {
	Type     EventType `json:"type"`
	ThreadID string    `json:"thread_id"`
	Message  *Message  `json:"message,omitempty"`
}

// EventBroadcaster provides in-memory pub/sub keyed by session key (the
// widget's client id). Slow subscribers lose events rather than block.
type EventBroadcaster struct {
	mu          sync.RWMutex
	subscribers map[string]map[string]chan *Event // sessionKey -> subID -> ch
	logger      *slog.Logger
}

// NewEventBroadcaster creates a broadcaster. Pass nil logger for default.
func NewEventBroadcaster(logger *slog.Logger) *EventBroadcaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventBroadcaster{
		subscribers: make(map[string]map[string]chan *Event),
		logger:      logger.With("component", "broadcaster"),
	}
}

// Subscribe registers for events on sessionKey. The subscription ends when
// ctx is cancelled.
func (b *EventBroadcaster) Subscribe(ctx context.Context, sessionKey string) (<-chan *Event, string) {
	subID := uuid.New().String()
	ch := make(chan *Event, subscriberBufferSize)

	b.mu.Lock()
	if _, ok := b.subscribers[sessionKey]; !ok {
		b.subscribers[sessionKey] = make(map[string]chan *Event)
	}
	b.subscribers[sessionKey][subID] = ch
	b.mu.Unlock()

	b.logger.Debug("subscriber added", "session_key", sessionKey, "sub_id", subID)

	go func() {
		<-ctx.Done()
		b.Unsubscribe(sessionKey, subID)
	}()

	return ch, subID
}

// Publish sends event to every subscriber of sessionKey without blocking.
func (b *EventBroadcaster) Publish(sessionKey string, event *Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for subID, ch := range b.subscribers[sessionKey] {
		select {
		case ch <- event:
		default:
			b.logger.Debug("dropped event for slow subscriber",
				"session_key", sessionKey,
				"sub_id", subID,
				"type", event.Type)
		}
	}
}

// Unsubscribe removes a subscription and closes its channel.
func (b *EventBroadcaster) Unsubscribe(sessionKey, subID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs, ok := b.subscribers[sessionKey]
	if !ok {
		return
	}
	ch, exists := subs[subID]
	if !exists {
		return
	}

	delete(subs, subID)
	close(ch)
	if len(subs) == 0 {
		delete(b.subscribers, sessionKey)
	}

	b.logger.Debug("subscriber removed", "session_key", sessionKey, "sub_id", subID)
}

// Close closes every subscriber channel.
func (b *EventBroadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for key, subs := range b.subscribers {
		for subID, ch := range subs {
			close(ch)
			delete(subs, subID)
		}
		delete(b.subscribers, key)
	}
}
