// ABOUTME: Ordered in-memory conversation buffer owned by a session
// ABOUTME: Not safe for concurrent use; the owning session serialises access

package conversation

// Buffer holds the ordered messages of the current thread.
type Buffer struct {
	messages []Message
}

// Append adds a copy of msg to the end of the buffer.
func (b *Buffer) Append(msg Message) {
	b.messages = append(b.messages, msg.clone())
}

// Clear drops every message.
func (b *Buffer) Clear() {
	b.messages = nil
}

// Len reports the number of buffered messages.
func (b *Buffer) Len() int {
	return len(b.messages)
}

// Snapshot returns copies of the buffered messages in order.
func (b *Buffer) Snapshot() []Message {
	out := make([]Message, len(b.messages))
	for i, m := range b.messages {
		out[i] = m.clone()
	}
	return out
}
