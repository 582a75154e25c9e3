// Package export renders designs and runs for consumption outside the engine:
// Mermaid diagrams and JSON run reports.
package export

import (
	"encoding/json"
	"time"

	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/orchestrator"
	"github.com/dusk-indust/patterngraph/internal/result"
)

// RunReport is the top-level JSON export of a design and its last run.
type RunReport struct {
	Design     string                `json:"design"`
	ExportedAt string                `json:"exportedAt"`
	Order      []string              `json:"order,omitempty"`
	Outcome    *orchestrator.Outcome `json:"outcome,omitempty"`
	Nodes      []NodeReport          `json:"nodes"`
	Edges      []graph.Edge          `json:"edges"`
}

// NodeReport describes one node and what it produced.
type NodeReport struct {
	ID     string            `json:"id"`
	Name   string            `json:"name,omitempty"`
	Kind   graph.PatternKind `json:"kind"`
	Task   string            `json:"task,omitempty"`
	Agents []AgentReport     `json:"agents"`
	Text   string            `json:"text,omitempty"`
	Result json.RawMessage   `json:"result,omitempty"`
}

// AgentReport describes one agent's configuration and final state.
type AgentReport struct {
	Name       string `json:"name"`
	Role       string `json:"role"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"durationMs,omitempty"`
}

// BuildReport combines a design with the engine's view of its last run.
// results and snap may be empty when the design has never run.
func BuildReport(d graph.Design, snap orchestrator.Snapshot, results map[string]result.Result, now time.Time) *RunReport {
	report := &RunReport{
		Design:     d.Name,
		ExportedAt: now.UTC().Format(time.RFC3339),
		Order:      snap.Order,
		Outcome:    snap.Last,
		Nodes:      make([]NodeReport, 0, len(d.Nodes)),
		Edges:      d.Edges,
	}
	if report.Edges == nil {
		report.Edges = []graph.Edge{}
	}

	states := make(map[string]orchestrator.NodeState, len(snap.Nodes))
	for _, ns := range snap.Nodes {
		states[ns.ID] = ns
	}

	for _, n := range d.Nodes {
		nr := NodeReport{
			ID:     n.ID,
			Name:   n.Name,
			Kind:   n.Kind,
			Task:   n.Config.Task,
			Agents: make([]AgentReport, 0, len(n.Agents)),
		}

		status := make(map[string]AgentReport)
		for _, st := range states[n.ID].Agents {
			status[st.Name] = AgentReport{Status: string(st.Status), DurationMS: st.Duration.Milliseconds()}
		}
		for _, a := range n.Agents {
			ar := status[a.Name]
			ar.Name = a.Name
			ar.Role = string(a.Role)
			nr.Agents = append(nr.Agents, ar)
		}

		if r, ok := results[n.ID]; ok {
			nr.Text = r.Text()
			nr.Result = r.Raw()
		}
		report.Nodes = append(report.Nodes, nr)
	}
	return report
}
