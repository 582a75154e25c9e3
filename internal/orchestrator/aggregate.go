package orchestrator

import (
	"log/slog"
	"strings"

	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/result"
)

const (
	// ResultSeparator joins the contributions of several upstream nodes.
	ResultSeparator = "\n\n---\n\n"

	// PreviousResultsHeader introduces the upstream section of a task.
	PreviousResultsHeader = "\n\n## Previous Results\n\n"
)

// AggregateInput collects the text each incoming edge of nodeID contributes,
// in edge creation order. An agent-level edge that names a source agent
// contributes only that agent's output; every other edge contributes the
// source node's whole result text. Sources without a cached result and empty
// contributions are left out.
func AggregateInput(s graph.Snapshot, nodeID string, results map[string]result.Result, logger *slog.Logger) string {
	if logger == nil {
		logger = slog.Default()
	}

	var parts []string
	for _, e := range s.Edges {
		if e.Target != nodeID {
			continue
		}
		res, ok := results[e.Source]
		if !ok {
			logger.Warn("upstream node has no result yet",
				"node", nodeID, "source", e.Source, "edge", e.ID, "edge_kind", e.Kind)
			continue
		}

		var text string
		if e.Kind == graph.EdgeAgentLevel && e.SourceAgent != "" {
			text = agentContribution(s, e, res)
		} else {
			text = res.Text()
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, ResultSeparator)
}

// agentContribution is the output of the edge's source agent, or "" when the
// result has no per-agent breakdown for it.
func agentContribution(s graph.Snapshot, e graph.Edge, res result.Result) string {
	src, ok := s.Node(e.Source)
	if !ok {
		return ""
	}
	a, ok := src.Agent(e.SourceAgent)
	if !ok {
		return ""
	}
	out, _ := res.AgentOutput(a.Name)
	return out
}

// ComposeTask appends the aggregated upstream text to a node's own task.
func ComposeTask(task, aggregated string) string {
	if aggregated == "" {
		return task
	}
	return task + PreviousResultsHeader + aggregated
}
