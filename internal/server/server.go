// ABOUTME: Widget host server that wires sessions, the send pipeline, and the HTTP API
// ABOUTME: Serves over plain TCP or a tailscale tsnet node and shuts down via errgroup

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"tailscale.com/tsnet"

	"github.com/2389/docs-copilot/internal/agent"
	"github.com/2389/docs-copilot/internal/classify"
	"github.com/2389/docs-copilot/internal/config"
	"github.com/2389/docs-copilot/internal/conversation"
	"github.com/2389/docs-copilot/internal/dedupe"
	"github.com/2389/docs-copilot/internal/input"
	"github.com/2389/docs-copilot/internal/remote"
	"github.com/2389/docs-copilot/internal/render"
	"github.com/2389/docs-copilot/internal/session"
	"github.com/2389/docs-copilot/internal/store"
	"github.com/2389/docs-copilot/internal/thread"
)

const (
	dedupeTTL     = 10 * time.Minute
	dedupeMaxSize = 10_000
)

// Server hosts the popup widget's session API.
type Server struct {
	config       *config.Config
	ids          *thread.Source
	store        store.Store
	remote       session.RemoteResetter
	conversation *conversation.Service
	broadcaster  *conversation.EventBroadcaster
	renderer     *render.Registry
	hub          *hub
	httpServer   *http.Server
	tsnetServer  *tsnet.Server
	// baseLogger is handed to components, which add their own component key.
	baseLogger *slog.Logger
	logger     *slog.Logger
}

// New builds a Server from cfg. It fails if no thread IDs can be issued or
// the archive cannot be opened.
func New(cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	ids, err := thread.NewSource(nil)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:      cfg,
		ids:         ids,
		broadcaster: conversation.NewEventBroadcaster(logger),
		renderer:    render.NewRegistry(classify.New(classify.DefaultBinding()), logger),
		baseLogger:  logger,
		logger:      logger.With("component", "server"),
	}

	var archive conversation.Archive
	if cfg.Database.Path != "" {
		sqlStore, err := store.NewSQLiteStore(cfg.Database.Path)
		if err != nil {
			return nil, fmt.Errorf("opening transcript archive: %w", err)
		}
		s.store = sqlStore
		archive = sqlStore
	}

	if cfg.Reset.URL != "" {
		s.remote = remote.NewResetter(cfg.Reset.URL, cfg.Agent.APIKey, cfg.Reset.Timeout, logger)
	}

	runtime := agent.NewClient(cfg.Agent.Endpoint, cfg.Agent.APIKey, cfg.Agent.Timeout, logger)
	s.conversation = conversation.New(runtime, archive, dedupe.New(dedupeTTL, dedupeMaxSize), logger)
	s.hub = newHub(s.newClientSession, s.logger)

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	return s, nil
}

// newClientSession creates the session, reset coordinator and input gate for
// one widget client.
func (s *Server) newClientSession(key string) *clientSession {
	ctx, cancel := context.WithCancel(context.Background())
	sess := session.New(key, s.ids, s.broadcaster)

	var archive session.Archive
	if s.store != nil {
		archive = s.store
	}

	gate := input.NewGate(ctx, input.DispatcherFunc(func(ctx context.Context, text string) (<-chan conversation.Message, error) {
		resp, err := s.conversation.Send(ctx, sess, text)
		if err != nil {
			return nil, err
		}
		return resp.Stream, nil
	}), s.baseLogger.With("client_id", key))

	gate.OnIdle(func() {
		s.broadcaster.Publish(key, &conversation.Event{
			Type:     conversation.EventIdle,
			ThreadID: sess.ThreadID().String(),
		})
	})

	resets := session.NewCoordinator(sess, s.ids, s.remote, archive, s.baseLogger)
	// A reset abandons the request in flight for the old thread.
	resets.OnRotate(func() { gate.Abort() })

	return &clientSession{
		session: sess,
		resets:  resets,
		gate:    gate,
		cancel:  cancel,
	}
}

// Handler returns the HTTP routes of the widget API.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/session", s.handleGetSession)
	mux.HandleFunc("POST /api/session/input", s.handleInput)
	mux.HandleFunc("POST /api/session/reset", s.handleReset)
	mux.HandleFunc("GET /api/session/events", s.handleEvents)
	mux.HandleFunc("GET /health", s.handleHealth)
	return mux
}

// Run serves until ctx is cancelled or the listener fails, then shuts down.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.listen(ctx)
	if err != nil {
		return errors.Join(err, s.Close())
	}
	s.logger.Info("serving widget API", "addr", ln.Addr().String())

	g, gctx := errgroup.WithContext(ctx)
	// Request contexts end with the group so event streams unblock on shutdown.
	s.httpServer.BaseContext = func(net.Listener) context.Context { return gctx }

	g.Go(func() error {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		s.hub.cleanupLoop(gctx)
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		return s.gracefulShutdown()
	})

	return g.Wait()
}

// listen creates the HTTP listener (Tailscale or TCP).
func (s *Server) listen(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled", "http_addr", s.config.Server.HTTPAddr)
		}
		return s.listenTailscale(ctx)
	}
	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on %s: %w", s.config.Server.HTTPAddr, err)
	}
	return ln, nil
}

// gracefulShutdown uses a fresh context since the run context is already done.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

// Shutdown stops the HTTP server and releases every resource.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP shutdown: %w", err))
	}
	if err := s.Close(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Close releases sessions, subscribers, the tailscale node and the archive
// without waiting for HTTP requests.
func (s *Server) Close() error {
	s.hub.Close()
	s.broadcaster.Close()

	var errs []error
	if s.tsnetServer != nil {
		if err := s.tsnetServer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("tailscale shutdown: %w", err))
		}
		s.tsnetServer = nil
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("store close: %w", err))
		}
		s.store = nil
	}
	return errors.Join(errs...)
}
