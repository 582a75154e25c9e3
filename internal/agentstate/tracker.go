// Package agentstate turns the event stream of a running node into per-agent
// state: status, accumulated output, and timing.
package agentstate

import (
	"sync"
	"time"

	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
)

// Status is the lifecycle state of one agent during a run.
type Status string

const (
	Waiting      Status = patternsvc.StatusWaiting
	Executing    Status = patternsvc.StatusExecuting
	Delegating   Status = patternsvc.StatusDelegating
	Synthesizing Status = patternsvc.StatusSynthesizing
	Aggregating  Status = patternsvc.StatusAggregating
	Routing      Status = patternsvc.StatusRouting
	Completed    Status = patternsvc.StatusCompleted
	Error        Status = patternsvc.StatusError
)

// Active reports whether s is one of the working states.
func (s Status) Active() bool {
	switch s {
	case Executing, Delegating, Synthesizing, Aggregating, Routing:
		return true
	}
	return false
}

// Known reports whether s is a recognized status label.
func (s Status) Known() bool {
	return s.Active() || s == Waiting || s == Completed || s == Error
}

// AgentState is the runtime view of one agent.
type AgentState struct {
	AgentID   string        `json:"agent_id"`
	Name      string        `json:"name"`
	Status    Status        `json:"status"`
	Buffer    string        `json:"buffer"`
	StartedAt time.Time     `json:"started_at,omitzero"`
	Elapsed   time.Duration `json:"elapsed"`
	Duration  time.Duration `json:"duration"`
}

// Tracker holds the agent states of one node. It is safe for concurrent use:
// the engine applies events while the ticker and observers read.
type Tracker struct {
	mu     sync.Mutex
	nodeID string
	order  []string
	agents map[string]*AgentState
	now    func() time.Time
}

// NewTracker creates a tracker with every agent of n waiting.
func NewTracker(n graph.Node) *Tracker {
	t := &Tracker{
		nodeID: n.ID,
		order:  make([]string, 0, len(n.Agents)),
		agents: make(map[string]*AgentState, len(n.Agents)),
		now:    time.Now,
	}
	for _, a := range n.Agents {
		t.order = append(t.order, a.Name)
		t.agents[a.Name] = &AgentState{AgentID: a.ID, Name: a.Name, Status: Waiting}
	}
	return t
}

// NodeID returns the id of the tracked node.
func (t *Tracker) NodeID() string { return t.nodeID }

// Apply folds one stream event into the agent states. It returns false when
// the event changed nothing: an unknown agent, an unknown label, a status
// change on an agent in the error state, or a frame that is not status/chunk.
func (t *Tracker) Apply(ev patternsvc.StreamEvent) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	st, ok := t.agents[ev.Agent]
	if !ok {
		return false
	}

	switch ev.Type {
	case patternsvc.EventChunk:
		st.Buffer += ev.Data
		return true
	case patternsvc.EventStatus:
		return t.transition(st, Status(ev.Data), ev.DurationMS)
	}
	return false
}

func (t *Tracker) transition(st *AgentState, to Status, durationMS *int64) bool {
	if !to.Known() || st.Status == Error {
		return false
	}

	st.Status = to
	switch {
	case to.Active():
		st.StartedAt = t.now()
		st.Elapsed = 0
	case to == Completed:
		if durationMS != nil {
			st.Duration = time.Duration(*durationMS) * time.Millisecond
		} else if !st.StartedAt.IsZero() {
			st.Duration = t.now().Sub(st.StartedAt)
		}
		st.Elapsed = st.Duration
	}
	return true
}

// SetAll moves every agent to status, used when a node runs without a stream.
// Agents in the error state keep it.
func (t *Tracker) SetAll(status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range t.order {
		t.transition(t.agents[name], status, nil)
	}
}

// Reset puts every agent back to waiting with an empty buffer and no timing.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, name := range t.order {
		st := t.agents[name]
		*st = AgentState{AgentID: st.AgentID, Name: st.Name, Status: Waiting}
	}
}

// Tick recomputes the elapsed time of active agents.
func (t *Tracker) Tick(now time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, st := range t.agents {
		if st.Status.Active() {
			st.Elapsed = now.Sub(st.StartedAt)
		}
	}
}

// Agent returns a copy of the named agent's state.
func (t *Tracker) Agent(name string) (AgentState, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	st, ok := t.agents[name]
	if !ok {
		return AgentState{}, false
	}
	return *st, true
}

// Snapshot returns copies of all agent states in node order.
func (t *Tracker) Snapshot() []AgentState {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]AgentState, len(t.order))
	for i, name := range t.order {
		out[i] = *t.agents[name]
	}
	return out
}
