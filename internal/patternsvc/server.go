package patternsvc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// Handler executes patterns on behalf of a Server.
type Handler interface {
	// Execute runs a pattern to completion and returns its result document.
	Execute(ctx context.Context, kind graph.PatternKind, req Request) (json.RawMessage, error)

	// Stream runs a pattern, calling emit for every status and chunk frame,
	// and returns the result document. The server writes the result frame.
	Stream(ctx context.Context, kind graph.PatternKind, req Request, emit func(StreamEvent) error) (json.RawMessage, error)
}

// Server exposes a Handler over the pattern service endpoints:
//
//	POST /patterns/{kind}
//	POST /patterns/{kind}/stream
type Server struct {
	handler Handler
	logger  *slog.Logger
	http    *http.Server
	ln      net.Listener
}

// NewServer creates a Server around handler.
func NewServer(handler Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{handler: handler, logger: logger}
}

// Routes returns the server's HTTP handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /patterns/{kind}", s.handleExecute)
	mux.HandleFunc("POST /patterns/{kind}/stream", s.handleStream)
	return mux
}

// Start listens on addr and serves in a background goroutine.
func (s *Server) Start(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("patternsvc: listen %s: %w", addr, err)
	}
	s.ln = ln
	s.http = &http.Server{
		Handler:     s.Routes(),
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	go func() {
		if err := s.http.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("pattern service stopped", "error", err)
		}
	}()
	return nil
}

// Addr returns the listening address once started.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	if s.http == nil {
		return nil
	}
	return s.http.Shutdown(ctx)
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (graph.PatternKind, Request, bool) {
	kind := graph.PatternKind(r.PathValue("kind"))
	if !kind.Valid() {
		writeError(w, http.StatusNotFound, fmt.Sprintf("unknown pattern %q", kind))
		return "", Request{}, false
	}
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request: "+err.Error())
		return "", Request{}, false
	}
	return kind, req, true
}

func (s *Server) handleExecute(w http.ResponseWriter, r *http.Request) {
	kind, req, ok := s.decode(w, r)
	if !ok {
		return
	}

	res, err := s.handler.Execute(r.Context(), kind, req)
	if err != nil {
		s.logger.Warn("pattern execution failed", "pattern", kind, "error", err)
		writeError(w, statusFor(err), err.Error())
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(res)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	kind, req, ok := s.decode(w, r)
	if !ok {
		return
	}

	sw := NewSSEWriter(w)
	sw.Init()

	res, err := s.handler.Stream(r.Context(), kind, req, sw.WriteEvent)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		s.logger.Warn("pattern stream failed", "pattern", kind, "error", err)
		_ = sw.WriteEvent(StreamEvent{Type: EventError, Data: err.Error()})
		return
	}
	_ = sw.WriteEvent(StreamEvent{Type: EventResult, Result: res})
}

// RequestError marks a handler failure caused by the caller's request.
type RequestError struct {
	Message string
}

func (e *RequestError) Error() string { return e.Message }

func statusFor(err error) int {
	var re *RequestError
	if errors.As(err, &re) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}

func writeError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(errorBody{Error: msg})
}
