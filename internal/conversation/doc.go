// Package conversation holds the message model and the send pipeline of the
// docs assistant.
//
// # Messages
//
// A Message is a tagged variant: KindText carries markdown content from the
// user or the assistant, KindToolCall carries a named tool invocation with its
// JSON input and, once complete, its result. Classification never inspects
// field presence; it switches on Kind.
//
// # Buffer
//
// Buffer is the ordered ConversationState of one thread. It is owned by a
// session, which serialises access and clears it on reset.
//
// # Service
//
// Service is the send pipeline behind the input gate:
//
//	svc := conversation.New(agentClient, archive, dedupe.New(5*time.Minute, 10_000), logger)
//	resp, err := svc.Send(ctx, sess, "How do I create a table?")
//
// The user message is appended and archived before the agent is contacted.
// Replies are converted to messages (text chunks are coalesced, tool calls are
// emitted when they start and again when they complete) and appended with the
// thread ID captured at send time, so replies that arrive after a reset are
// dropped instead of leaking into the new thread.
//
// # Events
//
// EventBroadcaster fans out message and reset events to the widget's SSE
// subscribers, keyed by session key.
package conversation
