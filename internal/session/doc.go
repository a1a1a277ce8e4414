// Package session owns the state of one docs assistant conversation.
//
// A Session holds the current thread ID, the ordered conversation buffer and
// a generation counter. Only the Coordinator rotates the thread and clears
// the buffer; everything else reads through the Session or appends with the
// thread ID it captured, and appends for a superseded thread are rejected
// with ErrStaleThread.
//
// Reset runs three phases: best-effort remote invalidation is started, the
// thread ID is rotated and the buffer cleared in one critical section, then
// the remote outcome is folded into the ResetResult. Remote outcomes that
// arrive after a newer reset has rotated the thread are ignored.
package session
