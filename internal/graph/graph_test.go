package graph

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestGraph() *Graph {
	return New(WithIDGenerator(NewSequenceGenerator("id")))
}

func TestAddNode_DefaultWorker(t *testing.T) {
	g := newTestGraph()

	n, err := g.AddNode(PatternHierarchical)
	require.NoError(t, err)

	assert.Equal(t, "id-1", n.ID)
	assert.Equal(t, PatternHierarchical, n.Kind)
	require.Len(t, n.Agents, 1)
	assert.Equal(t, "id-2", n.Agents[0].ID)
	assert.Equal(t, "Agent 1", n.Agents[0].Name)
	assert.Equal(t, RoleWorker, n.Agents[0].Role)
}

func TestAddNode_DebateDefaultsRounds(t *testing.T) {
	g := newTestGraph()
	n, err := g.AddNode(PatternDebate)
	require.NoError(t, err)
	assert.Equal(t, DefaultDebateRounds, n.Config.Rounds)
}

func TestAddNode_RejectsUnknownKind(t *testing.T) {
	g := newTestGraph()
	_, err := g.AddNode("swarm")
	require.ErrorIs(t, err, ErrInvalidPattern)
	assert.Equal(t, 0, g.Len())
}

type fixedIDs struct{ id string }

func (f fixedIDs) NewID() string { return f.id }

func TestAddNode_RejectsDuplicateGeneratedID(t *testing.T) {
	g := New(WithIDGenerator(fixedIDs{id: "same"}))

	_, err := g.AddNode(PatternSequential)
	require.ErrorIs(t, err, ErrDuplicateID, "node and its default agent would share an id")
	assert.Equal(t, 0, g.Len())
}

func TestAddEdge(t *testing.T) {
	g := newTestGraph()
	a, _ := g.AddNode(PatternSequential)
	b, _ := g.AddNode(PatternParallel)

	t.Run("node-level", func(t *testing.T) {
		e, err := g.AddEdge(a.ID, b.ID, "", "")
		require.NoError(t, err)
		assert.Equal(t, EdgeNodeLevel, e.Kind)
	})

	t.Run("agent-level with source agent only", func(t *testing.T) {
		e, err := g.AddEdge(a.ID, b.ID, a.Agents[0].ID, "")
		require.NoError(t, err)
		assert.Equal(t, EdgeAgentLevel, e.Kind)
	})

	t.Run("agent-level with target agent only", func(t *testing.T) {
		e, err := g.AddEdge(a.ID, b.ID, "", b.Agents[0].ID)
		require.NoError(t, err)
		assert.Equal(t, EdgeAgentLevel, e.Kind)
	})

	t.Run("self-loop rejected", func(t *testing.T) {
		_, err := g.AddEdge(a.ID, a.ID, "", "")
		require.ErrorIs(t, err, ErrSelfLoop)
	})

	t.Run("unknown node rejected", func(t *testing.T) {
		_, err := g.AddEdge(a.ID, "missing", "", "")
		require.ErrorIs(t, err, ErrNodeNotFound)
	})

	t.Run("agent of another node rejected", func(t *testing.T) {
		_, err := g.AddEdge(a.ID, b.ID, b.Agents[0].ID, "")
		require.ErrorIs(t, err, ErrAgentNotFound)
	})

	assert.Len(t, g.Edges(), 3)
}

func TestRemoveNode_CascadesEdges(t *testing.T) {
	g := newTestGraph()
	a, _ := g.AddNode(PatternSequential)
	b, _ := g.AddNode(PatternParallel)
	c, _ := g.AddNode(PatternDebate)

	_, err := g.AddEdge(a.ID, b.ID, "", "")
	require.NoError(t, err)
	_, err = g.AddEdge(b.ID, c.ID, "", "")
	require.NoError(t, err)
	keep, err := g.AddEdge(a.ID, c.ID, a.Agents[0].ID, "")
	require.NoError(t, err)

	require.NoError(t, g.RemoveNode(b.ID))

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Equal(t, keep.ID, edges[0].ID)

	ids := map[string]bool{}
	for _, n := range g.Nodes() {
		ids[n.ID] = true
	}
	for _, e := range edges {
		assert.True(t, ids[e.Source], "edge %s has dangling source", e.ID)
		assert.True(t, ids[e.Target], "edge %s has dangling target", e.ID)
	}

	require.ErrorIs(t, g.RemoveNode(b.ID), ErrNodeNotFound)
}

func TestRemoveEdge(t *testing.T) {
	g := newTestGraph()
	a, _ := g.AddNode(PatternSequential)
	b, _ := g.AddNode(PatternSequential)
	e, err := g.AddEdge(a.ID, b.ID, "", "")
	require.NoError(t, err)

	require.NoError(t, g.RemoveEdge(e.ID))
	assert.Empty(t, g.Edges())
	require.ErrorIs(t, g.RemoveEdge(e.ID), ErrEdgeNotFound)
}

func TestAgents(t *testing.T) {
	g := newTestGraph()
	n, _ := g.AddNode(PatternHierarchical)

	m, err := g.AddAgent(n.ID, Agent{Name: "Manager", Role: RoleManager, SystemPrompt: "plan"})
	require.NoError(t, err)
	assert.NotEmpty(t, m.ID)

	t.Run("duplicate name rejected", func(t *testing.T) {
		_, err := g.AddAgent(n.ID, Agent{Name: "Manager"})
		require.ErrorIs(t, err, ErrDuplicateAgentName)
	})

	t.Run("generated name", func(t *testing.T) {
		a, err := g.AddAgent(n.ID, Agent{})
		require.NoError(t, err)
		assert.Equal(t, "Agent 3", a.Name)
		assert.Equal(t, RoleWorker, a.Role)
	})

	t.Run("update keeps id", func(t *testing.T) {
		up, err := g.UpdateAgent(n.ID, m.ID, func(a *Agent) {
			a.ID = "hijack"
			a.SystemPrompt = "delegate"
		})
		require.NoError(t, err)
		assert.Equal(t, m.ID, up.ID)
		assert.Equal(t, "delegate", up.SystemPrompt)
	})

	t.Run("update to duplicate name rejected", func(t *testing.T) {
		_, err := g.UpdateAgent(n.ID, m.ID, func(a *Agent) { a.Name = "Agent 1" })
		require.ErrorIs(t, err, ErrDuplicateAgentName)
		got, _ := g.Node(n.ID)
		a, _ := got.Agent(m.ID)
		assert.Equal(t, "Manager", a.Name)
	})

	t.Run("apply suggestion", func(t *testing.T) {
		require.NoError(t, g.ApplySuggestion(n.ID, m.ID, "better prompt"))
		got, _ := g.Node(n.ID)
		a, _ := got.Agent(m.ID)
		assert.Equal(t, "better prompt", a.SystemPrompt)
	})
}

func TestRemoveAgent(t *testing.T) {
	g := newTestGraph()
	a, _ := g.AddNode(PatternSequential)
	b, _ := g.AddNode(PatternSequential)
	extra, err := g.AddAgent(a.ID, Agent{Name: "Writer"})
	require.NoError(t, err)

	e, err := g.AddEdge(a.ID, b.ID, extra.ID, "")
	require.NoError(t, err)
	require.Equal(t, EdgeAgentLevel, e.Kind)

	require.NoError(t, g.RemoveAgent(a.ID, extra.ID))

	edges := g.Edges()
	require.Len(t, edges, 1)
	assert.Empty(t, edges[0].SourceAgent)
	assert.Equal(t, EdgeNodeLevel, edges[0].Kind)

	t.Run("last agent cannot be removed", func(t *testing.T) {
		err := g.RemoveAgent(b.ID, b.Agents[0].ID)
		require.ErrorIs(t, err, ErrLastAgent)
		got, _ := g.Node(b.ID)
		assert.Len(t, got.Agents, 1)
	})

	t.Run("unknown agent", func(t *testing.T) {
		require.ErrorIs(t, g.RemoveAgent(a.ID, "nope"), ErrAgentNotFound)
	})
}

func TestUpdateNode(t *testing.T) {
	g := newTestGraph()
	n, _ := g.AddNode(PatternSequential)

	up, err := g.UpdateNode(n.ID, func(name *string, kind *PatternKind, cfg *NodeConfig) {
		*name = "Draft"
		*kind = PatternDebate
		cfg.Task = "Argue"
		cfg.Rounds = 5
	})
	require.NoError(t, err)
	assert.Equal(t, "Draft", up.Name)
	assert.Equal(t, PatternDebate, up.Kind)
	assert.Equal(t, 5, up.Config.Rounds)

	_, err = g.UpdateNode(n.ID, func(_ *string, kind *PatternKind, _ *NodeConfig) { *kind = "bogus" })
	require.ErrorIs(t, err, ErrInvalidPattern)
	got, _ := g.Node(n.ID)
	assert.Equal(t, PatternDebate, got.Kind)

	_, err = g.UpdateNode("missing", func(*string, *PatternKind, *NodeConfig) {})
	require.ErrorIs(t, err, ErrNodeNotFound)
}

func TestSnapshot_IsolatedFromEdits(t *testing.T) {
	g := newTestGraph()
	n, _ := g.AddNode(PatternSequential)

	snap := g.Snapshot()
	_, err := g.UpdateAgent(n.ID, n.Agents[0].ID, func(a *Agent) { a.SystemPrompt = "changed" })
	require.NoError(t, err)

	assert.Empty(t, snap.Nodes[0].Agents[0].SystemPrompt)

	snap.Nodes[0].Agents[0].Name = "mutated"
	got, _ := g.Node(n.ID)
	assert.Equal(t, "Agent 1", got.Agents[0].Name)
}

func TestIncomingEdges_CreationOrder(t *testing.T) {
	g := newTestGraph()
	a, _ := g.AddNode(PatternSequential)
	b, _ := g.AddNode(PatternSequential)
	c, _ := g.AddNode(PatternSequential)

	e1, _ := g.AddEdge(b.ID, c.ID, "", "")
	_, _ = g.AddEdge(a.ID, b.ID, "", "")
	e3, _ := g.AddEdge(a.ID, c.ID, "", "")

	in := g.IncomingEdges(c.ID)
	require.Len(t, in, 2)
	assert.Equal(t, e1.ID, in[0].ID)
	assert.Equal(t, e3.ID, in[1].ID)
}

func TestDesign_RoundTrip(t *testing.T) {
	g := newTestGraph()
	a, _ := g.AddNode(PatternSequential)
	b, _ := g.AddNode(PatternRouting)
	_, err := g.UpdateNode(b.ID, func(_ *string, _ *PatternKind, cfg *NodeConfig) {
		cfg.Task = "route it"
		cfg.Repository = "github.com/acme/app"
	})
	require.NoError(t, err)
	router, err := g.AddAgent(b.ID, Agent{Name: "Router", Role: RoleModerator, SystemPrompt: "pick"})
	require.NoError(t, err)
	_, err = g.AddEdge(a.ID, b.ID, "", "")
	require.NoError(t, err)
	_, err = g.AddEdge(a.ID, b.ID, a.Agents[0].ID, router.ID)
	require.NoError(t, err)

	d := g.Design("demo", "two nodes")
	assert.Equal(t, []string{"github.com/acme/app"}, d.ReferencedRepos)

	loaded, err := FromDesign(d)
	require.NoError(t, err)

	again := loaded.Design("demo", "two nodes")
	assert.Equal(t, d, again)
}

func TestDesign_KeepsDesignLevelRepos(t *testing.T) {
	d := Design{
		Name:            "repos",
		ReferencedRepos: []string{"github.com/acme/app"},
		Nodes: []Node{{ID: "n1", Kind: PatternSequential, Config: NodeConfig{Repository: "github.com/acme/lib"},
			Agents: []Agent{{ID: "a1", Name: "A", Role: RoleWorker}}}},
		Edges: []Edge{},
	}
	g, err := FromDesign(d)
	require.NoError(t, err)

	out := g.Design("repos", "")
	assert.Equal(t, []string{"github.com/acme/app", "github.com/acme/lib"}, out.ReferencedRepos)

	empty := New().Design("empty", "")
	assert.Equal(t, []string{}, empty.ReferencedRepos)
}

func TestFromDesign_RejectsDuplicateIDs(t *testing.T) {
	d := Design{
		Name: "dup",
		Nodes: []Node{
			{ID: "n1", Kind: PatternSequential, Agents: []Agent{{ID: "a1", Name: "A", Role: RoleWorker}}},
			{ID: "n2", Kind: PatternSequential, Agents: []Agent{{ID: "a1", Name: "B", Role: RoleWorker}}},
		},
	}
	_, err := FromDesign(d)
	require.ErrorIs(t, err, ErrDuplicateID)
}

func TestGraph_ConcurrentEdits(t *testing.T) {
	g := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			n, err := g.AddNode(PatternParallel)
			if err != nil {
				return
			}
			_, _ = g.AddAgent(n.ID, Agent{Name: fmt.Sprintf("Worker %d", i)})
			_ = g.Snapshot()
		}(i)
	}
	wg.Wait()
	assert.Equal(t, 20, g.Len())
}

func TestValidate(t *testing.T) {
	g := newTestGraph()
	h, _ := g.AddNode(PatternHierarchical)
	r, _ := g.AddNode(PatternRouting)
	s, _ := g.AddNode(PatternSequential)

	_, err := g.AddEdge(h.ID, s.ID, h.Agents[0].ID, "")
	require.NoError(t, err)

	issues := g.Validate()
	assert.True(t, HasErrors(issues))

	var errs, warns int
	for _, i := range issues {
		switch i.Severity {
		case SeverityError:
			errs++
			assert.Contains(t, []string{h.ID, r.ID}, i.NodeID)
		case SeverityWarning:
			warns++
			assert.Equal(t, s.ID, i.NodeID)
		}
	}
	assert.Equal(t, 2, errs)
	assert.Equal(t, 1, warns)

	_, err = g.UpdateAgent(h.ID, h.Agents[0].ID, func(a *Agent) { a.Role = RoleManager })
	require.NoError(t, err)
	_, err = g.UpdateAgent(r.ID, r.Agents[0].ID, func(a *Agent) { a.Role = RoleModerator })
	require.NoError(t, err)
	_, err = g.AddEdge(h.ID, s.ID, "", "")
	require.NoError(t, err)

	assert.Empty(t, g.Validate())
}
