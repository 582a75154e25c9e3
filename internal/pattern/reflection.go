package pattern

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
)

// reflectionInstructions tells the reflector how to answer so that
// ParseSuggestions can read the reply.
const reflectionInstructions = `Review the orchestration graph below and suggest improved system prompts.
Reply with a JSON array of objects with the fields node_id, agent_id,
suggested_prompt and reason. Reply with [] if nothing should change.`

// graphView is the serialized form of the graph embedded in reflection tasks.
type graphView struct {
	Nodes []nodeView   `json:"nodes"`
	Edges []graph.Edge `json:"edges"`
}

type nodeView struct {
	ID     string            `json:"id"`
	Name   string            `json:"name,omitempty"`
	Kind   graph.PatternKind `json:"kind"`
	Task   string            `json:"task"`
	Agents []graph.Agent     `json:"agents"`
	Result string            `json:"result,omitempty"`
}

func buildReflection(n graph.Node, req *patternsvc.Request, gc Context) error {
	doc, err := ReflectionSnapshot(gc)
	if err != nil {
		return fmt.Errorf("pattern: reflection node %s: %w", n.ID, err)
	}

	var b strings.Builder
	if t := strings.TrimSpace(req.Task); t != "" {
		b.WriteString(t)
		b.WriteString("\n\n")
	}
	b.WriteString(reflectionInstructions)
	b.WriteString("\n\n## Current Graph\n\n```json\n")
	b.Write(doc)
	b.WriteString("\n```\n")
	req.Task = b.String()
	return nil
}

// ReflectionSnapshot serializes every node, agent and edge of the graph along
// with the result text captured for each node so far.
func ReflectionSnapshot(gc Context) ([]byte, error) {
	view := graphView{
		Nodes: make([]nodeView, 0, len(gc.Graph.Nodes)),
		Edges: gc.Graph.Edges,
	}
	if view.Edges == nil {
		view.Edges = []graph.Edge{}
	}
	for _, n := range gc.Graph.Nodes {
		view.Nodes = append(view.Nodes, nodeView{
			ID:     n.ID,
			Name:   n.Name,
			Kind:   n.Kind,
			Task:   n.Config.Task,
			Agents: n.Agents,
			Result: gc.Results[n.ID],
		})
	}
	return json.MarshalIndent(view, "", "  ")
}
