// Package dedupe provides a small TTL cache used to drop agent stream events
// that have already been applied to a conversation.
//
//	cache := dedupe.New(5*time.Minute, 10_000)
//	if cache.Seen(threadID + "|" + eventID) {
//		return // replayed event
//	}
package dedupe
