package orchestrator

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

func reflectionGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := seqGraph(t)
	_, err := g.InsertNode(graph.Node{ID: "A", Kind: graph.PatternSequential, Config: graph.NodeConfig{Task: "write"},
		Agents: []graph.Agent{{ID: "w", Name: "Writer", Role: graph.RoleWorker, SystemPrompt: "Write at length."}}})
	require.NoError(t, err)
	_, err = g.InsertNode(graph.Node{ID: "R", Kind: graph.PatternReflection, Config: graph.NodeConfig{Task: "critique"},
		Agents: []graph.Agent{{ID: "c", Name: "Critic", Role: graph.RoleReflector}}})
	require.NoError(t, err)
	_, err = g.AddEdge("A", "R", "", "")
	require.NoError(t, err)
	return g
}

func TestApplySuggestions(t *testing.T) {
	reply := "Two ideas:\n" + "```json\n" +
		`[{"node_id": "A", "agent_id": "w", "suggested_prompt": "Be brief.", "reason": "too long"},` +
		` {"node_id": "gone", "agent_id": "x", "suggested_prompt": "ignored", "reason": "stale"}]` + "\n```"
	doc, err := json.Marshal(map[string]string{"result": reply})
	require.NoError(t, err)

	client := &fakeClient{handle: func(_ context.Context, c fakeCall) (json.RawMessage, error) {
		if c.Kind == graph.PatternReflection {
			return doc, nil
		}
		return canned(c.Kind), nil
	}}
	g := reflectionGraph(t)
	e := NewEngine(g, client)
	require.Equal(t, OutcomeSucceeded, e.Run(context.Background()).Status)

	applied, err := e.ApplySuggestions()
	require.NoError(t, err)
	require.Len(t, applied, 1)
	assert.Equal(t, "too long", applied[0].Reason)

	n, _ := g.Node("A")
	assert.Equal(t, "Be brief.", n.Agents[0].SystemPrompt)
}

func TestApplySuggestions_NoneProposed(t *testing.T) {
	client := &fakeClient{handle: func(_ context.Context, c fakeCall) (json.RawMessage, error) {
		if c.Kind == graph.PatternReflection {
			return json.RawMessage(`{"result": "The prompts look fine."}`), nil
		}
		return canned(c.Kind), nil
	}}
	g := reflectionGraph(t)
	e := NewEngine(g, client)
	require.Equal(t, OutcomeSucceeded, e.Run(context.Background()).Status)

	applied, err := e.ApplySuggestions()
	require.NoError(t, err)
	assert.Empty(t, applied)

	n, _ := g.Node("A")
	assert.Equal(t, "Write at length.", n.Agents[0].SystemPrompt)
}

func TestApplySuggestions_BeforeRun(t *testing.T) {
	applied, err := NewEngine(reflectionGraph(t), &fakeClient{}).ApplySuggestions()
	require.NoError(t, err)
	assert.Empty(t, applied)
}
