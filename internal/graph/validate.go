package graph

import (
	"fmt"
	"strings"
)

// Severity grades a validation issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
)

// Issue is one problem found by Validate.
type Issue struct {
	Severity Severity `json:"severity"`
	NodeID   string   `json:"node_id,omitempty"`
	EdgeID   string   `json:"edge_id,omitempty"`
	Message  string   `json:"message"`
}

func (i Issue) String() string {
	var b strings.Builder
	b.WriteString(string(i.Severity))
	if i.NodeID != "" {
		fmt.Fprintf(&b, " node=%s", i.NodeID)
	}
	if i.EdgeID != "" {
		fmt.Fprintf(&b, " edge=%s", i.EdgeID)
	}
	b.WriteString(": ")
	b.WriteString(i.Message)
	return b.String()
}

// Validate reports every role or structure violation in the graph. Errors are
// conditions that will fail a run; warnings flag edges whose source is not
// ordered before its target, so the target may read a missing result.
func (g *Graph) Validate() []Issue {
	s := g.Snapshot()
	var issues []Issue

	for _, n := range s.Nodes {
		issues = append(issues, validateNode(n)...)
	}

	reach := nodeLevelReach(s)
	for _, e := range s.Edges {
		if e.Kind != EdgeAgentLevel {
			continue
		}
		if !reach[e.Source][e.Target] {
			issues = append(issues, Issue{
				Severity: SeverityWarning,
				EdgeID:   e.ID,
				NodeID:   e.Target,
				Message:  fmt.Sprintf("agent-level edge from %s does not order its source first; add a node-level path so the result exists when the target runs", e.Source),
			})
		}
	}
	return issues
}

// HasErrors reports whether any issue is an error.
func HasErrors(issues []Issue) bool {
	for _, i := range issues {
		if i.Severity == SeverityError {
			return true
		}
	}
	return false
}

func validateNode(n Node) []Issue {
	var issues []Issue
	add := func(format string, args ...any) {
		issues = append(issues, Issue{
			Severity: SeverityError,
			NodeID:   n.ID,
			Message:  fmt.Sprintf(format, args...),
		})
	}

	if !n.Kind.Valid() {
		add("unknown pattern %q", n.Kind)
	}
	if len(n.Agents) == 0 {
		add("node has no agents")
	}

	seen := make(map[string]bool)
	for _, a := range n.Agents {
		if seen[a.Name] {
			add("duplicate agent name %q", a.Name)
		}
		seen[a.Name] = true
		if !a.Role.Valid() {
			add("agent %q has unknown role %q", a.Name, a.Role)
		}
	}

	switch n.Kind {
	case PatternHierarchical:
		if m := len(n.AgentsWithRole(RoleManager)); m != 1 {
			add("hierarchical node needs exactly one manager, has %d", m)
		}
	case PatternRouting:
		if len(n.AgentsWithRole(RoleManager, RoleModerator)) == 0 {
			add("routing node needs a manager or moderator to act as router")
		}
	}
	return issues
}

// nodeLevelReach computes, for every node, the set of nodes reachable from it
// through node-level edges.
func nodeLevelReach(s Snapshot) map[string]map[string]bool {
	adj := make(map[string][]string)
	for _, e := range s.Edges {
		if e.Kind == EdgeNodeLevel {
			adj[e.Source] = append(adj[e.Source], e.Target)
		}
	}

	reach := make(map[string]map[string]bool, len(s.Nodes))
	for _, n := range s.Nodes {
		seen := make(map[string]bool)
		stack := append([]string(nil), adj[n.ID]...)
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if seen[cur] {
				continue
			}
			seen[cur] = true
			stack = append(stack, adj[cur]...)
		}
		reach[n.ID] = seen
	}
	return reach
}
