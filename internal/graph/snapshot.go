package graph

import (
	"fmt"
	"slices"
)

// Snapshot is a deep copy of a graph at one instant.
type Snapshot struct {
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Snapshot returns a copy of the graph that later edits do not affect.
func (g *Graph) Snapshot() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()

	s := Snapshot{
		Nodes: make([]Node, len(g.nodes)),
		Edges: append([]Edge{}, g.edges...),
	}
	for i, n := range g.nodes {
		s.Nodes[i] = cloneNode(n)
	}
	return s
}

// Node returns the snapshot's node with the given id.
func (s Snapshot) Node(id string) (Node, bool) {
	for _, n := range s.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// Design exports the graph as a persistable Design document.
func (g *Graph) Design(name, description string) Design {
	s := g.Snapshot()
	g.mu.RLock()
	repos := mergeRepos(g.repos, referencedRepos(s.Nodes))
	g.mu.RUnlock()
	return Design{
		Name:            name,
		Description:     description,
		Nodes:           s.Nodes,
		Edges:           s.Edges,
		ReferencedRepos: repos,
	}
}

// FromDesign rebuilds a graph from a Design, preserving every id, role, prompt
// and edge. Nodes and edges keep their document order.
func FromDesign(d Design, opts ...Option) (*Graph, error) {
	g := New(opts...)
	g.repos = mergeRepos(nil, d.ReferencedRepos)
	for _, n := range d.Nodes {
		if _, err := g.InsertNode(n); err != nil {
			return nil, fmt.Errorf("graph: load design %q: %w", d.Name, err)
		}
	}
	for _, e := range d.Edges {
		if _, err := g.InsertEdge(e); err != nil {
			return nil, fmt.Errorf("graph: load design %q: edge %q: %w", d.Name, e.ID, err)
		}
	}
	return g, nil
}

// referencedRepos collects the distinct repository references in node order.
func referencedRepos(nodes []Node) []string {
	repos := []string{}
	for _, n := range nodes {
		if r := n.Config.Repository; r != "" && !slices.Contains(repos, r) {
			repos = append(repos, r)
		}
	}
	return repos
}

// mergeRepos appends the entries of extra missing from base, keeping order.
func mergeRepos(base, extra []string) []string {
	out := make([]string, 0, len(base)+len(extra))
	for _, r := range slices.Concat(base, extra) {
		if r != "" && !slices.Contains(out, r) {
			out = append(out, r)
		}
	}
	return out
}

// ApplySuggestion replaces the system prompt of one agent, typically with a
// prompt proposed by a reflection node.
func (g *Graph) ApplySuggestion(nodeID, agentID, prompt string) error {
	_, err := g.UpdateAgent(nodeID, agentID, func(a *Agent) {
		a.SystemPrompt = prompt
	})
	return err
}
