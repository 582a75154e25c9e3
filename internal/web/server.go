// Package web serves the HTTP API for designs and runs, and streams engine
// progress to websocket observers.
package web

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dusk-indust/patterngraph/internal/design"
	"github.com/dusk-indust/patterngraph/internal/orchestrator"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
)

// Server owns the design store, the current run's engine and the hub.
type Server struct {
	store      design.Store
	client     patternsvc.Client
	engineOpts []orchestrator.Option
	logger     *slog.Logger
	hub        *Hub

	runCtx    context.Context
	runCancel context.CancelFunc

	mu      sync.Mutex
	engine  *orchestrator.Engine
	active  string // design name of the current or last run
	running bool
	stopRun context.CancelFunc // cancels the current run's context
}

// NewServer creates a Server. engineOpts are applied to every run.
func NewServer(store design.Store, client patternsvc.Client, logger *slog.Logger, engineOpts ...orchestrator.Option) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		store:      store,
		client:     client,
		engineOpts: engineOpts,
		logger:     logger,
		hub:        NewHub(logger),
		runCtx:     ctx,
		runCancel:  cancel,
	}
}

// Handler starts the hub and returns the routes. The hub stops with ctx.
func (s *Server) Handler(ctx context.Context) http.Handler {
	go s.hub.Run(ctx)

	mux := http.NewServeMux()
	s.registerAPI(mux)
	mux.HandleFunc("GET /ws", s.handleWebSocket)
	return mux
}

// Start serves on addr until ctx is cancelled. Runs in flight are cancelled
// on shutdown.
func (s *Server) Start(ctx context.Context, addr string) error {
	server := &http.Server{Addr: addr, Handler: s.Handler(ctx)}

	go func() {
		<-ctx.Done()
		s.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("web server listening", "addr", addr)
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close cancels any run started through the API.
func (s *Server) Close() {
	s.runCancel()
}
