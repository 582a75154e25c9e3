package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dusk-indust/patterngraph/internal/design"
	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/orchestrator"
)

func (s *Server) registerAPI(mux *http.ServeMux) {
	// Designs
	mux.HandleFunc("GET /api/designs", s.listDesigns)
	mux.HandleFunc("GET /api/designs/{name}", s.getDesign)
	mux.HandleFunc("PUT /api/designs/{name}", s.saveDesign)
	mux.HandleFunc("DELETE /api/designs/{name}", s.deleteDesign)
	mux.HandleFunc("GET /api/designs/{name}/validate", s.validateDesign)

	// Runs
	mux.HandleFunc("POST /api/designs/{name}/run", s.startRun)
	mux.HandleFunc("POST /api/run/cancel", s.cancelRun)
	mux.HandleFunc("GET /api/run", s.getRun)
	mux.HandleFunc("GET /api/run/results", s.getRunResults)
}

func (s *Server) listDesigns(w http.ResponseWriter, r *http.Request) {
	summaries, err := s.store.List(r.Context())
	if err != nil {
		jsonError(w, err.Error(), http.StatusInternalServerError)
		return
	}
	if summaries == nil {
		summaries = []design.Summary{}
	}
	jsonResponse(w, summaries)
}

func (s *Server) getDesign(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		storeError(w, err)
		return
	}
	jsonResponse(w, d)
}

func (s *Server) saveDesign(w http.ResponseWriter, r *http.Request) {
	var d graph.Design
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		jsonError(w, "invalid request body", http.StatusBadRequest)
		return
	}
	d.Name = r.PathValue("name")

	// Loading the design checks ids, agents and edges before anything is stored.
	g, err := graph.FromDesign(d)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	saved := g.Design(d.Name, d.Description)
	if err := s.store.Save(r.Context(), saved); err != nil {
		storeError(w, err)
		return
	}
	jsonStatus(w, http.StatusCreated, saved)
}

func (s *Server) deleteDesign(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Delete(r.Context(), r.PathValue("name")); err != nil {
		storeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) validateDesign(w http.ResponseWriter, r *http.Request) {
	d, err := s.store.Get(r.Context(), r.PathValue("name"))
	if err != nil {
		storeError(w, err)
		return
	}
	g, err := graph.FromDesign(*d)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	issues := g.Validate()
	if issues == nil {
		issues = []graph.Issue{}
	}
	jsonResponse(w, issues)
}

func (s *Server) startRun(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	d, err := s.store.Get(r.Context(), name)
	if err != nil {
		storeError(w, err)
		return
	}
	g, err := graph.FromDesign(*d)
	if err != nil {
		jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	opts := append([]orchestrator.Option{orchestrator.WithLogger(s.logger)}, s.engineOpts...)
	if v := r.URL.Query().Get("streaming"); v != "" {
		opts = append(opts, orchestrator.WithStreaming(v == "true" || v == "1"))
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		jsonError(w, orchestrator.ErrRunInProgress.Error(), http.StatusConflict)
		return
	}
	// The run context exists before the reply so a cancel that arrives
	// before the engine starts still stops the run.
	runCtx, stopRun := context.WithCancel(s.runCtx)
	engine := orchestrator.NewEngine(g, s.client, opts...)
	s.engine = engine
	s.active = name
	s.running = true
	s.stopRun = stopRun
	s.mu.Unlock()

	events, stop := engine.Subscribe()
	go s.forward(name, events)
	go func() {
		defer stop()
		defer stopRun()
		engine.Run(runCtx)

		s.mu.Lock()
		s.running = false
		s.stopRun = nil
		s.mu.Unlock()
	}()

	s.logger.Info("run started via API", "design", name)
	jsonStatus(w, http.StatusAccepted, map[string]string{"design": name, "status": "started"})
}

// forward relays engine progress to websocket clients until the
// subscription closes.
func (s *Server) forward(name string, events <-chan orchestrator.ProgressEvent) {
	for ev := range events {
		s.hub.Broadcast(Event{Type: "progress", Payload: progressPayload{Design: name, ProgressEvent: ev}})
	}
}

type progressPayload struct {
	Design string `json:"design"`
	orchestrator.ProgressEvent
}

func (s *Server) cancelRun(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	stopRun := s.stopRun
	s.mu.Unlock()

	if stopRun != nil {
		stopRun()
	}
	jsonResponse(w, map[string]bool{"cancelled": stopRun != nil})
}

type runView struct {
	Design string `json:"design"`
	orchestrator.Snapshot
}

func (s *Server) getRun(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	engine, name := s.engine, s.active
	s.mu.Unlock()

	if engine == nil {
		jsonError(w, "no run has been started", http.StatusNotFound)
		return
	}
	jsonResponse(w, runView{Design: name, Snapshot: engine.Snapshot()})
}

type resultView struct {
	NodeID string          `json:"node_id"`
	Text   string          `json:"text"`
	Raw    json.RawMessage `json:"raw"`
}

func (s *Server) getRunResults(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	engine := s.engine
	s.mu.Unlock()

	if engine == nil {
		jsonError(w, "no run has been started", http.StatusNotFound)
		return
	}

	snap := engine.Snapshot()
	out := []resultView{}
	for _, n := range snap.Nodes {
		if r, ok := engine.Result(n.ID); ok {
			out = append(out, resultView{NodeID: n.ID, Text: r.Text(), Raw: r.Raw()})
		}
	}
	jsonResponse(w, out)
}

func storeError(w http.ResponseWriter, err error) {
	if errors.Is(err, design.ErrNotFound) {
		jsonError(w, err.Error(), http.StatusNotFound)
		return
	}
	jsonError(w, err.Error(), http.StatusInternalServerError)
}

func jsonResponse(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(data)
}

func jsonStatus(w http.ResponseWriter, code int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(data)
}

func jsonError(w http.ResponseWriter, msg string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}
