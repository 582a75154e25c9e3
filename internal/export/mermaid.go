package export

import (
	"fmt"
	"strings"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// GenerateMermaid produces a Mermaid graph TD diagram of a design.
// Nodes become subgraphs holding their agents; node-level edges connect
// subgraphs with solid arrows and agent-level edges use dotted arrows
// between the narrowed endpoints.
func GenerateMermaid(d graph.Design) string {
	// Mermaid ids must be alphanumeric.
	ids := make(map[string]string)
	nextID := 0
	getID := func(key string) string {
		if id, ok := ids[key]; ok {
			return id
		}
		id := fmt.Sprintf("N%d", nextID)
		nextID++
		ids[key] = id
		return id
	}
	agentKey := func(nodeID, agentID string) string { return nodeID + "/" + agentID }

	var sb strings.Builder
	sb.WriteString("graph TD\n")

	for _, n := range d.Nodes {
		name := n.Name
		if name == "" {
			name = n.ID
		}
		sb.WriteString(fmt.Sprintf("  subgraph %s[\"%.40s (%s)\"]\n", getID(n.ID), escape(name), n.Kind))
		for _, a := range n.Agents {
			sb.WriteString(fmt.Sprintf("    %s[\"%.40s: %s\"]\n", getID(agentKey(n.ID, a.ID)), escape(a.Name), a.Role))
		}
		sb.WriteString("  end\n")
	}

	for _, e := range d.Edges {
		src, tgt := getID(e.Source), getID(e.Target)
		if e.Kind != graph.EdgeAgentLevel {
			sb.WriteString(fmt.Sprintf("  %s --> %s\n", src, tgt))
			continue
		}
		if e.SourceAgent != "" {
			src = getID(agentKey(e.Source, e.SourceAgent))
		}
		if e.TargetAgent != "" {
			tgt = getID(agentKey(e.Target, e.TargetAgent))
		}
		sb.WriteString(fmt.Sprintf("  %s -.-> %s\n", src, tgt))
	}

	return sb.String()
}

// escape keeps labels from closing the quoted Mermaid string.
func escape(s string) string {
	return strings.ReplaceAll(s, `"`, "'")
}
