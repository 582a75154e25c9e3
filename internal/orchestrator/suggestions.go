package orchestrator

import (
	"errors"
	"fmt"

	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/pattern"
)

// ApplySuggestions reads the prompt suggestions in every captured reflection
// result and writes them into the graph. Suggestions naming a node or agent
// that no longer exists are skipped. It returns the suggestions applied.
func (e *Engine) ApplySuggestions() ([]pattern.Suggestion, error) {
	if e.Running() {
		return nil, ErrRunInProgress
	}

	applied := []pattern.Suggestion{}
	for _, n := range e.graph.Nodes() {
		if n.Kind != graph.PatternReflection {
			continue
		}
		r, ok := e.Result(n.ID)
		if !ok {
			continue
		}

		suggestions, err := pattern.ParseSuggestions(r.Text())
		if errors.Is(err, pattern.ErrNoSuggestions) {
			e.logger.Warn("reflection reply has no suggestions", "node", n.ID)
			continue
		}
		if err != nil {
			return applied, fmt.Errorf("orchestrator: reflection node %s: %w", n.ID, err)
		}

		for _, s := range suggestions {
			if err := e.graph.ApplySuggestion(s.NodeID, s.AgentID, s.SuggestedPrompt); err != nil {
				e.logger.Warn("skipping suggestion", "node", s.NodeID, "agent", s.AgentID, "error", err)
				continue
			}
			e.logger.Info("applied suggestion", "node", s.NodeID, "agent", s.AgentID, "reason", s.Reason)
			applied = append(applied, s)
		}
	}
	return applied, nil
}
