package graph

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

var (
	// ErrNodeNotFound is returned when an operation references an unknown node.
	ErrNodeNotFound = errors.New("graph: node not found")

	// ErrAgentNotFound is returned when an operation references an unknown agent.
	ErrAgentNotFound = errors.New("graph: agent not found")

	// ErrEdgeNotFound is returned when an operation references an unknown edge.
	ErrEdgeNotFound = errors.New("graph: edge not found")

	// ErrSelfLoop is returned by AddEdge when source and target are the same node.
	ErrSelfLoop = errors.New("graph: self-loop edges are not allowed")

	// ErrLastAgent is returned by RemoveAgent when the removal would leave the
	// node without agents.
	ErrLastAgent = errors.New("graph: a node must keep at least one agent")

	// ErrDuplicateAgentName is returned when an agent name would collide with
	// another agent of the same node. Names correlate stream events.
	ErrDuplicateAgentName = errors.New("graph: duplicate agent name in node")

	// ErrDuplicateID is returned when a generated or supplied id is already in use.
	ErrDuplicateID = errors.New("graph: duplicate id")

	// ErrInvalidPattern is returned for unknown pattern kinds.
	ErrInvalidPattern = errors.New("graph: invalid pattern kind")
)

// Graph owns the nodes and edges of a design. It is safe for concurrent use:
// the user may edit the graph while a run reads snapshots from it.
type Graph struct {
	mu    sync.RWMutex
	ids   IDGenerator
	nodes []*Node // creation order
	edges []Edge  // creation order
	used  map[string]bool

	// repos are design-level repository references that no node needs to
	// carry. Design merges them with the node repositories.
	repos []string
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDGenerator replaces the default UUID generator.
func WithIDGenerator(g IDGenerator) Option {
	return func(gr *Graph) {
		gr.ids = g
	}
}

// New returns an empty Graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		ids:  UUIDGenerator{},
		used: make(map[string]bool),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// newID draws an id from the generator and reserves it. Caller holds mu.
func (g *Graph) newID() (string, error) {
	id := g.ids.NewID()
	if id == "" || g.used[id] {
		return "", fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	g.used[id] = true
	return id, nil
}

// reserve marks an externally supplied id as used. Caller holds mu.
func (g *Graph) reserve(id string) error {
	if g.used[id] {
		return fmt.Errorf("%w: %q", ErrDuplicateID, id)
	}
	g.used[id] = true
	return nil
}

// findNode returns the node pointer and index for id. Caller holds mu.
func (g *Graph) findNode(id string) (*Node, int) {
	for i, n := range g.nodes {
		if n.ID == id {
			return n, i
		}
	}
	return nil, -1
}

// AddNode creates a node of the given kind with a single default worker agent.
func (g *Graph) AddNode(kind PatternKind) (Node, error) {
	if !kind.Valid() {
		return Node{}, fmt.Errorf("%w: %q", ErrInvalidPattern, kind)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	nodeID, err := g.newID()
	if err != nil {
		return Node{}, err
	}
	agentID, err := g.newID()
	if err != nil {
		delete(g.used, nodeID)
		return Node{}, err
	}

	n := &Node{
		ID:   nodeID,
		Name: fmt.Sprintf("%s %d", kind, len(g.nodes)+1),
		Kind: kind,
		Agents: []Agent{{
			ID:   agentID,
			Name: "Agent 1",
			Role: RoleWorker,
		}},
	}
	if kind == PatternDebate {
		n.Config.Rounds = DefaultDebateRounds
	}
	g.nodes = append(g.nodes, n)
	return cloneNode(n), nil
}

// DefaultDebateRounds is the round count given to new debate nodes.
const DefaultDebateRounds = 3

// InsertNode adds a fully specified node, keeping its ids. Agents without an
// id receive a generated one. Used when loading designs.
func (g *Graph) InsertNode(n Node) (Node, error) {
	if !n.Kind.Valid() {
		return Node{}, fmt.Errorf("%w: %q", ErrInvalidPattern, n.Kind)
	}
	if len(n.Agents) == 0 {
		return Node{}, fmt.Errorf("graph: insert node %q: %w", n.ID, ErrLastAgent)
	}
	if err := checkAgentNames(n.Agents); err != nil {
		return Node{}, fmt.Errorf("graph: insert node %q: %w", n.ID, err)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var reserved []string
	rollback := func() {
		for _, id := range reserved {
			delete(g.used, id)
		}
	}

	if n.ID == "" {
		id, err := g.newID()
		if err != nil {
			return Node{}, err
		}
		n.ID = id
	} else if err := g.reserve(n.ID); err != nil {
		return Node{}, err
	}
	reserved = append(reserved, n.ID)

	stored := cloneNode(&n)
	for i := range stored.Agents {
		a := &stored.Agents[i]
		if a.ID == "" {
			id, err := g.newID()
			if err != nil {
				rollback()
				return Node{}, err
			}
			a.ID = id
		} else if err := g.reserve(a.ID); err != nil {
			rollback()
			return Node{}, err
		}
		reserved = append(reserved, a.ID)
	}

	g.nodes = append(g.nodes, &stored)
	return cloneNode(&stored), nil
}

// RemoveNode deletes a node and every edge that touches it.
func (g *Graph) RemoveNode(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, idx := g.findNode(id)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}

	g.nodes = slices.Delete(g.nodes, idx, idx+1)
	delete(g.used, n.ID)
	for _, a := range n.Agents {
		delete(g.used, a.ID)
	}

	kept := g.edges[:0]
	for _, e := range g.edges {
		if e.Source == id || e.Target == id {
			delete(g.used, e.ID)
			continue
		}
		kept = append(kept, e)
	}
	g.edges = kept
	return nil
}

// UpdateNode applies fn to a copy of the node's name, kind and configuration.
// Agents are edited through the agent methods so their invariants hold.
func (g *Graph) UpdateNode(id string, fn func(name *string, kind *PatternKind, cfg *NodeConfig)) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, _ := g.findNode(id)
	if n == nil {
		return Node{}, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}

	name, kind, cfg := n.Name, n.Kind, n.Config
	fn(&name, &kind, &cfg)
	if !kind.Valid() {
		return Node{}, fmt.Errorf("%w: %q", ErrInvalidPattern, kind)
	}
	n.Name, n.Kind, n.Config = name, kind, cfg
	return cloneNode(n), nil
}

// AddAgent appends an agent to a node. An empty agent id is generated.
func (g *Graph) AddAgent(nodeID string, a Agent) (Agent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, _ := g.findNode(nodeID)
	if n == nil {
		return Agent{}, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	if a.Name == "" {
		a.Name = fmt.Sprintf("Agent %d", len(n.Agents)+1)
	}
	if a.Role == "" {
		a.Role = RoleWorker
	}
	if err := checkAgentNames(append(slices.Clone(n.Agents), a)); err != nil {
		return Agent{}, err
	}

	if a.ID == "" {
		id, err := g.newID()
		if err != nil {
			return Agent{}, err
		}
		a.ID = id
	} else if err := g.reserve(a.ID); err != nil {
		return Agent{}, err
	}

	n.Agents = append(n.Agents, a)
	return a, nil
}

// UpdateAgent applies fn to a copy of the agent and stores the result. The id
// cannot be changed.
func (g *Graph) UpdateAgent(nodeID, agentID string, fn func(*Agent)) (Agent, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, _ := g.findNode(nodeID)
	if n == nil {
		return Agent{}, fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	idx := slices.IndexFunc(n.Agents, func(a Agent) bool { return a.ID == agentID })
	if idx < 0 {
		return Agent{}, fmt.Errorf("%w: %q in node %q", ErrAgentNotFound, agentID, nodeID)
	}

	updated := n.Agents[idx]
	fn(&updated)
	updated.ID = agentID

	candidate := slices.Clone(n.Agents)
	candidate[idx] = updated
	if err := checkAgentNames(candidate); err != nil {
		return Agent{}, err
	}
	n.Agents[idx] = updated
	return updated, nil
}

// RemoveAgent deletes an agent from a node. It fails with ErrLastAgent rather
// than leave the node empty. Edges narrowed to the removed agent fall back to
// node level.
func (g *Graph) RemoveAgent(nodeID, agentID string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, _ := g.findNode(nodeID)
	if n == nil {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, nodeID)
	}
	idx := slices.IndexFunc(n.Agents, func(a Agent) bool { return a.ID == agentID })
	if idx < 0 {
		return fmt.Errorf("%w: %q in node %q", ErrAgentNotFound, agentID, nodeID)
	}
	if len(n.Agents) == 1 {
		return ErrLastAgent
	}

	n.Agents = slices.Delete(n.Agents, idx, idx+1)
	delete(g.used, agentID)

	for i := range g.edges {
		e := &g.edges[i]
		if e.Source == nodeID && e.SourceAgent == agentID {
			e.SourceAgent = ""
		}
		if e.Target == nodeID && e.TargetAgent == agentID {
			e.TargetAgent = ""
		}
		e.Kind = edgeKindFor(e.SourceAgent, e.TargetAgent)
	}
	return nil
}

// AddEdge connects source to target. Agent ids are optional; when either is
// given the edge is agent-level. Self-loops are rejected.
func (g *Graph) AddEdge(source, target, sourceAgent, targetAgent string) (Edge, error) {
	return g.InsertEdge(Edge{
		Source:      source,
		Target:      target,
		SourceAgent: sourceAgent,
		TargetAgent: targetAgent,
	})
}

// InsertEdge adds an edge, keeping its id when set. The kind is always
// derived from the agent ids.
func (g *Graph) InsertEdge(e Edge) (Edge, error) {
	if e.Source == e.Target {
		return Edge{}, fmt.Errorf("%w: %q", ErrSelfLoop, e.Source)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	src, _ := g.findNode(e.Source)
	if src == nil {
		return Edge{}, fmt.Errorf("%w: source %q", ErrNodeNotFound, e.Source)
	}
	dst, _ := g.findNode(e.Target)
	if dst == nil {
		return Edge{}, fmt.Errorf("%w: target %q", ErrNodeNotFound, e.Target)
	}
	if e.SourceAgent != "" {
		if _, ok := src.Agent(e.SourceAgent); !ok {
			return Edge{}, fmt.Errorf("%w: %q in node %q", ErrAgentNotFound, e.SourceAgent, e.Source)
		}
	}
	if e.TargetAgent != "" {
		if _, ok := dst.Agent(e.TargetAgent); !ok {
			return Edge{}, fmt.Errorf("%w: %q in node %q", ErrAgentNotFound, e.TargetAgent, e.Target)
		}
	}

	if e.ID == "" {
		id, err := g.newID()
		if err != nil {
			return Edge{}, err
		}
		e.ID = id
	} else if err := g.reserve(e.ID); err != nil {
		return Edge{}, err
	}

	e.Kind = edgeKindFor(e.SourceAgent, e.TargetAgent)
	g.edges = append(g.edges, e)
	return e, nil
}

// RemoveEdge deletes an edge by id.
func (g *Graph) RemoveEdge(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	idx := slices.IndexFunc(g.edges, func(e Edge) bool { return e.ID == id })
	if idx < 0 {
		return fmt.Errorf("%w: %q", ErrEdgeNotFound, id)
	}
	g.edges = slices.Delete(g.edges, idx, idx+1)
	delete(g.used, id)
	return nil
}

// Node returns a copy of the node with the given id.
func (g *Graph) Node(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n, _ := g.findNode(id)
	if n == nil {
		return Node{}, false
	}
	return cloneNode(n), true
}

// Nodes returns copies of all nodes in creation order.
func (g *Graph) Nodes() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Node, len(g.nodes))
	for i, n := range g.nodes {
		out[i] = cloneNode(n)
	}
	return out
}

// Edges returns all edges in creation order.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return append([]Edge{}, g.edges...)
}

// IncomingEdges returns the edges whose target is nodeID, in creation order.
func (g *Graph) IncomingEdges(nodeID string) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var out []Edge
	for _, e := range g.edges {
		if e.Target == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of nodes.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}

// checkAgentNames verifies that agent names are non-empty and unique.
func checkAgentNames(agents []Agent) error {
	seen := make(map[string]bool, len(agents))
	for _, a := range agents {
		if a.Name == "" {
			return fmt.Errorf("graph: agent %q has no name", a.ID)
		}
		if seen[a.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateAgentName, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// cloneNode returns a copy of n that shares no slices with it.
func cloneNode(n *Node) Node {
	dst := *n
	dst.Agents = slices.Clone(n.Agents)
	return dst
}
