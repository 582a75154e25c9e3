package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dusk-indust/patterngraph/internal/agentstate"
	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/pattern"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
	"github.com/dusk-indust/patterngraph/internal/result"
)

// DefaultTickInterval is how often elapsed times are refreshed during a run.
const DefaultTickInterval = 100 * time.Millisecond

// Options controls how an Engine runs.
type Options struct {
	// Streaming selects the streaming endpoints for every node of a run.
	Streaming bool

	// TickInterval is the elapsed-time refresh period. Zero means
	// DefaultTickInterval.
	TickInterval time.Duration

	Logger *slog.Logger
}

// Option configures an Engine.
type Option func(*Options)

// WithStreaming selects streaming or synchronous dispatch.
func WithStreaming(on bool) Option {
	return func(o *Options) { o.Streaming = on }
}

// WithTickInterval sets the elapsed-time refresh period.
func WithTickInterval(d time.Duration) Option {
	return func(o *Options) { o.TickInterval = d }
}

// WithLogger sets the engine's logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *Options) { o.Logger = l }
}

// Engine owns a graph, the results captured for its nodes and the agent
// state of the current run. Only one run may be active at a time; the graph
// stays editable while it runs.
type Engine struct {
	graph      *graph.Graph
	dispatcher *pattern.Dispatcher
	opts       Options
	logger     *slog.Logger
	progress   broadcaster

	mu       sync.RWMutex
	results  map[string]result.Result
	trackers map[string]*agentstate.Tracker
	order    []string
	running  bool
	cancel   context.CancelFunc
	last     *Outcome
}

// NewEngine creates an Engine running g against client.
func NewEngine(g *graph.Graph, client patternsvc.Client, opts ...Option) *Engine {
	o := Options{TickInterval: DefaultTickInterval}
	for _, opt := range opts {
		opt(&o)
	}
	if o.TickInterval <= 0 {
		o.TickInterval = DefaultTickInterval
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return &Engine{
		graph:      g,
		dispatcher: pattern.NewDispatcher(client),
		opts:       o,
		logger:     o.Logger,
		results:    make(map[string]result.Result),
		trackers:   make(map[string]*agentstate.Tracker),
	}
}

// Graph returns the engine's graph.
func (e *Engine) Graph() *graph.Graph { return e.graph }

// Run executes the graph once and reports how it ended. Cancelling ctx or
// calling Cancel stops the run with OutcomeCancelled.
func (e *Engine) Run(ctx context.Context) Outcome {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return Outcome{Status: OutcomeFailed, Kind: KindRunInProgress, Err: ErrRunInProgress}
	}
	runCtx, cancel := context.WithCancel(ctx)
	e.running = true
	e.cancel = cancel

	snap := e.graph.Snapshot()
	e.trackers = make(map[string]*agentstate.Tracker, len(snap.Nodes))
	for _, n := range snap.Nodes {
		e.trackers[n.ID] = agentstate.NewTracker(n)
	}
	e.order = nil
	e.mu.Unlock()

	out := e.run(runCtx, snap)
	cancel()

	e.mu.Lock()
	e.running = false
	e.cancel = nil
	e.last = &out
	e.mu.Unlock()

	e.progress.emit(ProgressEvent{Type: ProgressRunFinished, Outcome: &out})
	e.logger.Info("run finished", "status", out.Status, "nodes_executed", out.NodesExecuted,
		"failed_node", out.FailedNode, "kind", out.Kind)
	return out
}

func (e *Engine) run(ctx context.Context, snap graph.Snapshot) Outcome {
	order, err := ExecutionOrder(snap)
	if err != nil {
		kind := KindEmptyGraph
		if errors.Is(err, ErrGraphCycle) {
			kind = KindGraphCycle
		}
		e.logger.Error("cannot order graph", "error", err)
		return Outcome{Status: OutcomeFailed, Order: order, Kind: kind, Err: err}
	}

	e.mu.Lock()
	e.order = order
	e.mu.Unlock()
	e.progress.emit(ProgressEvent{Type: ProgressRunStarted, Message: strings.Join(order, " -> ")})
	e.logger.Info("run started", "nodes", len(order), "streaming", e.opts.Streaming)

	var out Outcome
	done := make(chan struct{})
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e.tick(gctx, done)
		return nil
	})
	g.Go(func() error {
		defer close(done)
		out = e.dispatchAll(ctx, order)
		return nil
	})
	_ = g.Wait()

	if out.Status == OutcomeCancelled {
		e.resetAgents()
	}
	return out
}

// tick refreshes elapsed times until done is closed or ctx ends.
func (e *Engine) tick(ctx context.Context, done <-chan struct{}) {
	t := time.NewTicker(e.opts.TickInterval)
	defer t.Stop()
	for {
		select {
		case <-done:
			return
		case <-ctx.Done():
			return
		case now := <-t.C:
			e.mu.RLock()
			for _, tr := range e.trackers {
				tr.Tick(now)
			}
			e.mu.RUnlock()
		}
	}
}

// dispatchAll runs the nodes one at a time in order.
func (e *Engine) dispatchAll(ctx context.Context, order []string) Outcome {
	out := Outcome{Order: order}
	for _, id := range order {
		if cancelled(ctx) {
			out.Status = OutcomeCancelled
			return out
		}

		err := e.dispatchNode(ctx, id)
		if errors.Is(err, errNodeRemoved) {
			out.Skipped = append(out.Skipped, id)
			continue
		}
		if err == nil {
			out.NodesExecuted++
			continue
		}
		if cancelled(ctx) {
			e.logger.Info("run cancelled", "node", id)
			out.Status = OutcomeCancelled
			return out
		}

		var ne *NodeError
		if !errors.As(err, &ne) {
			ne = &NodeError{NodeID: id, Kind: classify(err), Err: err}
		}
		e.logger.Error("node failed", "node", id, "pattern", ne.Pattern, "kind", ne.Kind, "error", ne.Err)
		out.Status = OutcomeFailed
		out.FailedNode = id
		out.Kind = ne.Kind
		out.Err = ne
		return out
	}
	out.Status = OutcomeSucceeded
	return out
}

// dispatchNode reads the node's configuration as it is right now, builds its
// call and runs it to completion. Any error returned is a *NodeError, or
// errNodeRemoved when the node left the graph after the run was ordered.
func (e *Engine) dispatchNode(ctx context.Context, id string) error {
	snap := e.graph.Snapshot()
	n, ok := snap.Node(id)
	if !ok {
		e.logger.Warn("node removed before dispatch", "node", id)
		return errNodeRemoved
	}

	e.mu.Lock()
	delete(e.results, id)
	results := make(map[string]result.Result, len(e.results))
	for k, v := range e.results {
		results[k] = v
	}
	tr := agentstate.NewTracker(n)
	e.trackers[id] = tr
	e.mu.Unlock()

	task := ComposeTask(n.Config.Task, AggregateInput(snap, id, results, e.logger))
	gc := pattern.Context{Graph: snap}
	if n.Kind == graph.PatternReflection {
		gc.Results = make(map[string]string, len(results))
		for k, r := range results {
			gc.Results[k] = r.Text()
		}
	}

	call, err := pattern.Build(n, task, gc)
	if err != nil {
		return e.nodeFailed(n, err)
	}

	e.progress.emit(ProgressEvent{Type: ProgressNodeStarted, NodeID: id, Node: n.Name})
	e.logger.Info("dispatching node", "node", id, "pattern", n.Kind, "agents", len(n.Agents))
	start := time.Now()

	var res result.Result
	if e.opts.Streaming {
		res, err = e.stream(ctx, n, call, tr)
	} else {
		tr.SetAll(agentstate.Executing)
		res, err = e.dispatcher.Execute(ctx, call)
	}
	if err != nil {
		if cancelled(ctx) {
			return err
		}
		tr.SetAll(agentstate.Error)
		return e.nodeFailed(n, err)
	}
	if !e.opts.Streaming {
		tr.SetAll(agentstate.Completed)
	}

	e.mu.Lock()
	e.results[id] = res
	e.mu.Unlock()

	e.progress.emit(ProgressEvent{Type: ProgressNodeCompleted, NodeID: id, Node: n.Name})
	e.logger.Info("node completed", "node", id, "pattern", n.Kind, "duration", time.Since(start))
	return nil
}

func (e *Engine) nodeFailed(n graph.Node, err error) *NodeError {
	ne := &NodeError{NodeID: n.ID, Pattern: n.Kind, Kind: classify(err), Err: err}
	e.progress.emit(ProgressEvent{Type: ProgressNodeFailed, NodeID: n.ID, Node: n.Name, Message: err.Error()})
	return ne
}

// stream consumes one node's event stream until it delivers a result, fails
// or the run is cancelled.
func (e *Engine) stream(ctx context.Context, n graph.Node, call *pattern.Call, tr *agentstate.Tracker) (result.Result, error) {
	nodeCtx, stop := context.WithCancel(ctx)
	defer stop()

	events, err := e.dispatcher.Stream(nodeCtx, call)
	if err != nil {
		return nil, err
	}

	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case ev, ok := <-events:
			if !ok {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				return nil, fmt.Errorf("%w: stream ended without a result", ErrStreamTransport)
			}
			if ev.Err != nil {
				return nil, fmt.Errorf("%w: %w", ErrStreamTransport, ev.Err)
			}

			switch ev.Type {
			case patternsvc.EventResult:
				res, err := result.Decode(call.Kind, ev.Result)
				if err != nil {
					return nil, fmt.Errorf("%w: %w", ErrStreamTransport, err)
				}
				return res, nil
			case patternsvc.EventError:
				return nil, &patternsvc.ServiceError{Pattern: call.Kind, Message: ev.Data}
			}

			if !tr.Apply(ev) {
				e.logger.Debug("ignoring stream event", "node", n.ID, "type", ev.Type, "agent", ev.Agent, "data", ev.Data)
				continue
			}
			if st, ok := tr.Agent(ev.Agent); ok {
				e.progress.emit(ProgressEvent{
					Type:    ProgressAgent,
					NodeID:  n.ID,
					Node:    n.Name,
					Agent:   &st,
					Message: string(ev.Type),
				})
			}
		}
	}
}

func (e *Engine) resetAgents() {
	e.mu.RLock()
	defer e.mu.RUnlock()
	for _, tr := range e.trackers {
		tr.Reset()
	}
}

// Cancel stops the active run. It reports whether a run was active.
func (e *Engine) Cancel() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if e.cancel == nil {
		return false
	}
	e.cancel()
	return true
}

// Running reports whether a run is active.
func (e *Engine) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}

// Result returns the result captured for a node.
func (e *Engine) Result(nodeID string) (result.Result, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.results[nodeID]
	return r, ok
}

// Results returns a copy of all captured results keyed by node id.
func (e *Engine) Results() map[string]result.Result {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make(map[string]result.Result, len(e.results))
	for k, v := range e.results {
		out[k] = v
	}
	return out
}

// ClearResults drops every captured result.
func (e *Engine) ClearResults() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.results = make(map[string]result.Result)
}

// Agents returns the agent states of a node in the current or last run.
func (e *Engine) Agents(nodeID string) ([]agentstate.AgentState, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	tr, ok := e.trackers[nodeID]
	if !ok {
		return nil, false
	}
	return tr.Snapshot(), true
}

// Subscribe registers a progress observer. The returned function
// unsubscribes and closes the channel.
func (e *Engine) Subscribe() (<-chan ProgressEvent, func()) {
	return e.progress.subscribe()
}

// Snapshot returns a read-only view of the engine for observers.
func (e *Engine) Snapshot() Snapshot {
	nodes := e.graph.Nodes()

	e.mu.RLock()
	defer e.mu.RUnlock()

	s := Snapshot{
		Running: e.running,
		Order:   append([]string(nil), e.order...),
		Nodes:   make([]NodeState, 0, len(nodes)),
	}
	if e.last != nil {
		last := *e.last
		s.Last = &last
	}
	for _, n := range nodes {
		ns := NodeState{ID: n.ID, Name: n.Name}
		if tr, ok := e.trackers[n.ID]; ok {
			ns.Agents = tr.Snapshot()
		} else {
			ns.Agents = agentstate.NewTracker(n).Snapshot()
		}
		_, ns.HasResult = e.results[n.ID]
		s.Nodes = append(s.Nodes, ns)
	}
	return s
}
