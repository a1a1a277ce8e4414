// ABOUTME: Tests for EventBroadcaster fan-out pub/sub system
// ABOUTME: Covers subscribe, publish, unsubscribe, context cancellation, concurrency

package conversation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func makeEvent(content string) *Event {
	msg := NewText(RoleAssistant, content)
	return &Event{Type: EventMessage, ThreadID: "thread-1", Message: &msg}
}

func TestBroadcaster_SingleSubscriberReceivesEvent(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch, _ := b.Subscribe(t.Context(), "client-1")
	b.Publish("client-1", makeEvent("hello"))

	select {
	case received := <-ch:
		require.NotNil(t, received.Message)
		assert.Equal(t, "hello", received.Message.Content)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for event")
	}
}

func TestBroadcaster_DifferentSessionKeysAreIsolated(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch1, _ := b.Subscribe(t.Context(), "client-1")
	ch2, _ := b.Subscribe(t.Context(), "client-2")

	b.Publish("client-1", &Event{Type: EventReset, ThreadID: "new-thread"})

	select {
	case ev := <-ch1:
		assert.Equal(t, EventReset, ev.Type)
		assert.Equal(t, "new-thread", ev.ThreadID)
	case <-time.After(time.Second):
		t.Fatal("client-1 did not receive event")
	}

	select {
	case ev := <-ch2:
		t.Fatalf("client-2 received unexpected event %v", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestBroadcaster_SlowConsumerDoesNotBlockPublisher(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	_, _ = b.Subscribe(t.Context(), "client-1")

	done := make(chan struct{})
	go func() {
		for i := 0; i < subscriberBufferSize*2; i++ {
			b.Publish("client-1", makeEvent("x"))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publisher blocked on a full subscriber")
	}
}

func TestBroadcaster_ContextCancellationCleansUp(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	ch, _ := b.Subscribe(ctx, "client-1")
	cancel()

	select {
	case _, ok := <-ch:
		assert.False(t, ok, "channel should be closed after cancel")
	case <-time.After(time.Second):
		t.Fatal("channel not closed after context cancellation")
	}

	b.mu.RLock()
	_, exists := b.subscribers["client-1"]
	b.mu.RUnlock()
	assert.False(t, exists)
}

func TestBroadcaster_ManualUnsubscribeIsIdempotent(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ch, subID := b.Subscribe(t.Context(), "client-1")
	b.Unsubscribe("client-1", subID)
	b.Unsubscribe("client-1", subID)

	_, ok := <-ch
	assert.False(t, ok)
}

func TestBroadcaster_ConcurrentPublishSubscribe(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			ch, _ := b.Subscribe(ctx, "client-1")
			go func() {
				for range ch {
				}
			}()
		}()
		go func() {
			defer wg.Done()
			b.Publish("client-1", makeEvent("concurrent"))
		}()
	}
	wg.Wait()
}

func TestBroadcaster_PublishWithoutSubscribers(t *testing.T) {
	b := NewEventBroadcaster(nil)
	defer b.Close()

	assert.NotPanics(t, func() {
		b.Publish("nobody", makeEvent("into the void"))
	})
}
