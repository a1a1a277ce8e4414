// Package server hosts the session API behind the docs site's AI popup.
//
// Each browser gets a client id cookie (dc_client) and one session in the
// hub: a session.Session, its reset Coordinator and an input.Gate. Sessions
// idle for 30 minutes are evicted unless a request is in flight.
//
// # Routes
//
//	GET  /api/session          thread id, widget settings and rendered messages
//	POST /api/session/input    {"text": "..."} -> {"dispatched": bool}
//	POST /api/session/reset    ResetResult, always 200
//	GET  /api/session/events   SSE: ready, message, reset, idle
//	GET  /health               ok
//
// The thread_id in every response is the widget's remount key: when it
// changes the widget discards its view and starts over.
//
// # Listeners
//
// The API is served on server.http_addr, or on a tailscale node when
// tailscale.enabled is set (:80 on the tailnet, :443 through Funnel).
package server
