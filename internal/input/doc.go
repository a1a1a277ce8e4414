// Package input gates submissions from the widget's text input.
//
// A Gate is Idle or InFlight. Submit trims the text, ignores blank input and
// drops anything submitted while a request is in flight; nothing is queued.
// An accepted submission moves the gate to InFlight and hands the text to a
// Dispatcher under its own context. The gate returns to Idle when the
// dispatched stream closes, the dispatch fails, or Abort is called.
//
// The input box lives in the widget: it clears its draft when Submit reports
// the text was dispatched.
//
// Reset does not go through the gate; it may run in either state and aborts
// whatever request is in flight.
package input
