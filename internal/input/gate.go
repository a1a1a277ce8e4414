// ABOUTME: Input submission gate for the widget's single text input
// ABOUTME: Admits one in-flight request at a time and drops blank or overlapping submissions

package input

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/2389/docs-copilot/internal/conversation"
)

// State is the gate's request state.
type State int

const (
	Idle State = iota
	InFlight
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case InFlight:
		return "in_flight"
	default:
		return "unknown"
	}
}

// Dispatcher forwards accepted text to the send pipeline. The returned stream
// is drained by the gate; the request is complete when it is closed.
type Dispatcher interface {
	Dispatch(ctx context.Context, text string) (<-chan conversation.Message, error)
}

// DispatcherFunc adapts a function to Dispatcher.
type DispatcherFunc func(ctx context.Context, text string) (<-chan conversation.Message, error)

// Dispatch calls f.
func (f DispatcherFunc) Dispatch(ctx context.Context, text string) (<-chan conversation.Message, error) {
	return f(ctx, text)
}

// Gate serialises submissions from one input surface.
type Gate struct {
	ctx        context.Context
	dispatcher Dispatcher
	logger     *slog.Logger

	mu     sync.Mutex
	state  State
	run    uint64 // identifies the current dispatch
	abort  context.CancelFunc
	onIdle func()

	wg sync.WaitGroup
}

// NewGate creates an idle gate. ctx bounds every dispatched request.
func NewGate(ctx context.Context, dispatcher Dispatcher, logger *slog.Logger) *Gate {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		ctx:        ctx,
		dispatcher: dispatcher,
		logger:     logger.With("component", "input"),
	}
}

// OnIdle registers fn to run each time the gate returns to Idle.
func (g *Gate) OnIdle(fn func()) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.onIdle = fn
}

// State returns the current state.
func (g *Gate) State() State {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state
}

// InProgress reports whether a request is in flight.
func (g *Gate) InProgress() bool {
	return g.State() == InFlight
}

// Submit forwards raw to the dispatcher if the gate is idle and the trimmed
// text is not empty. It reports whether the submission was dispatched; the
// caller owns the input box and clears its draft when this returns true.
func (g *Gate) Submit(raw string) bool {
	text := strings.TrimSpace(raw)

	g.mu.Lock()
	if g.state == InFlight {
		g.mu.Unlock()
		g.logger.Debug("submission dropped, request in progress")
		return false
	}
	if text == "" {
		g.mu.Unlock()
		g.logger.Debug("empty submission ignored")
		return false
	}
	ctx, cancel := context.WithCancel(g.ctx)
	g.state = InFlight
	g.run++
	run := g.run
	g.abort = cancel
	g.wg.Add(1)
	g.mu.Unlock()

	stream, err := g.dispatcher.Dispatch(ctx, text)
	if err != nil {
		g.logger.Error("dispatch failed", "error", err)
		g.finish(run, cancel)
		return true
	}

	go func() {
		for range stream {
		}
		g.finish(run, cancel)
	}()

	return true
}

// Abort cancels the in-flight request and returns the gate to Idle without
// waiting for its stream to close. It reports whether a request was aborted.
func (g *Gate) Abort() bool {
	g.mu.Lock()
	if g.state != InFlight {
		g.mu.Unlock()
		return false
	}
	g.abort()
	g.abort = nil
	g.state = Idle
	g.run++
	onIdle := g.onIdle
	g.mu.Unlock()

	g.logger.Debug("in-flight request aborted")
	if onIdle != nil {
		onIdle()
	}
	return true
}

// Wait blocks until every dispatched request, aborted or not, has finished.
func (g *Gate) Wait() {
	g.wg.Wait()
}

// finish ends dispatch run. A run that was aborted or replaced leaves the
// state alone.
func (g *Gate) finish(run uint64, cancel context.CancelFunc) {
	cancel()

	g.mu.Lock()
	current := g.run == run && g.state == InFlight
	var onIdle func()
	if current {
		g.state = Idle
		g.abort = nil
		onIdle = g.onIdle
	}
	g.mu.Unlock()

	if onIdle != nil {
		onIdle()
	}
	g.wg.Done()
}
