// Package agent is the client side of the remote assistant runtime.
//
// The docs assistant does not run a model itself. Each user submission is
// posted to the configured agent endpoint, which answers with a stream of
// server-sent events:
//
//	event: text         {"text": "..."}
//	event: tool_use     {"id": "...", "name": "...", "input_json": "..."}
//	event: tool_result  {"id": "...", "name": "...", "output": "...", "is_error": false}
//	event: done         {"full_response": "..."}
//	event: error        {"error": "..."}
//
// Events may carry an "id:" line, which the conversation layer uses to drop
// replays. Client.Send turns the stream into a channel of *Response values
// that is closed when the stream ends.
package agent
