package orchestrator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/patterngraph/internal/agentstate"
	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/pattern"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
)

type fakeCall struct {
	Kind graph.PatternKind
	Req  patternsvc.Request
}

// fakeClient records every call. Without handlers it answers with a canned
// document per pattern kind.
type fakeClient struct {
	mu     sync.Mutex
	calls  []fakeCall
	handle func(ctx context.Context, c fakeCall) (json.RawMessage, error)
	stream func(ctx context.Context, c fakeCall, out chan<- patternsvc.StreamEvent)
}

func (f *fakeClient) record(kind graph.PatternKind, req patternsvc.Request) fakeCall {
	c := fakeCall{Kind: kind, Req: req}
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
	return c
}

func (f *fakeClient) Calls() []fakeCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]fakeCall(nil), f.calls...)
}

func (f *fakeClient) Execute(ctx context.Context, kind graph.PatternKind, req patternsvc.Request) (json.RawMessage, error) {
	c := f.record(kind, req)
	if f.handle != nil {
		return f.handle(ctx, c)
	}
	return canned(kind), nil
}

func (f *fakeClient) Stream(ctx context.Context, kind graph.PatternKind, req patternsvc.Request) (<-chan patternsvc.StreamEvent, error) {
	c := f.record(kind, req)
	ch := make(chan patternsvc.StreamEvent)
	go func() {
		defer close(ch)
		if f.stream != nil {
			f.stream(ctx, c, ch)
			return
		}
		for _, a := range req.Agents {
			if !send(ctx, ch, patternsvc.StatusEvent(a.Name, patternsvc.StatusExecuting)) ||
				!send(ctx, ch, patternsvc.ChunkEvent(a.Name, a.Name+" output")) ||
				!send(ctx, ch, patternsvc.CompletedEvent(a.Name, 5)) {
				return
			}
		}
		send(ctx, ch, patternsvc.StreamEvent{Type: patternsvc.EventResult, Result: canned(kind)})
	}()
	return ch, nil
}

func send(ctx context.Context, ch chan<- patternsvc.StreamEvent, ev patternsvc.StreamEvent) bool {
	select {
	case ch <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func canned(kind graph.PatternKind) json.RawMessage {
	switch kind {
	case graph.PatternSequential:
		return json.RawMessage(`{"steps": [{"agent": "Writer", "result": "draft"}], "final_result": "draft"}`)
	case graph.PatternParallel:
		return json.RawMessage(`{"agent_results": {"P1": "one", "P2": "two"}}`)
	case graph.PatternHierarchical:
		return json.RawMessage(`{"manager_plan": "plan", "agent_results": {"W": "done"}, "final_result": "final"}`)
	default:
		return json.RawMessage(`{"result": "ok"}`)
	}
}

// chainGraph builds A(sequential: Writer) -> B(parallel: P1, P2) ->
// C(hierarchical: M manager, W worker).
func chainGraph(t *testing.T) *graph.Graph {
	t.Helper()
	g := seqGraph(t)
	nodes := []graph.Node{
		{ID: "A", Kind: graph.PatternSequential, Config: graph.NodeConfig{Task: "write"}, Agents: []graph.Agent{
			{Name: "Writer", Role: graph.RoleWorker},
		}},
		{ID: "B", Kind: graph.PatternParallel, Config: graph.NodeConfig{Task: "review"}, Agents: []graph.Agent{
			{Name: "P1", Role: graph.RoleWorker}, {Name: "P2", Role: graph.RoleWorker},
		}},
		{ID: "C", Kind: graph.PatternHierarchical, Config: graph.NodeConfig{Task: "ship"}, Agents: []graph.Agent{
			{Name: "M", Role: graph.RoleManager}, {Name: "W", Role: graph.RoleWorker},
		}},
	}
	for _, n := range nodes {
		_, err := g.InsertNode(n)
		require.NoError(t, err)
	}
	_, err := g.AddEdge("A", "B", "", "")
	require.NoError(t, err)
	_, err = g.AddEdge("B", "C", "", "")
	require.NoError(t, err)
	return g
}

func assertAllWaiting(t *testing.T, e *Engine, nodeIDs ...string) {
	t.Helper()
	for _, id := range nodeIDs {
		agents, ok := e.Agents(id)
		require.True(t, ok, id)
		for _, st := range agents {
			assert.Equal(t, agentstate.Waiting, st.Status, "%s/%s", id, st.Name)
			assert.Empty(t, st.Buffer, "%s/%s", id, st.Name)
		}
	}
}

func TestEngine_ChainRunsToCompletion(t *testing.T) {
	for _, streaming := range []bool{false, true} {
		name := "sync"
		if streaming {
			name = "streaming"
		}
		t.Run(name, func(t *testing.T) {
			client := &fakeClient{}
			e := NewEngine(chainGraph(t), client, WithStreaming(streaming))

			out := e.Run(context.Background())
			require.Equal(t, OutcomeSucceeded, out.Status, out.String())
			assert.Equal(t, 3, out.NodesExecuted)
			assert.Equal(t, []string{"A", "B", "C"}, out.Order)
			assert.NoError(t, out.Err)

			results := e.Results()
			assert.Len(t, results, 3)
			for _, id := range []string{"A", "B", "C"} {
				assert.Contains(t, results, id)
			}

			calls := client.Calls()
			require.Len(t, calls, 3)
			assert.Equal(t, "write", calls[0].Req.Task)
			assert.Equal(t, "review"+PreviousResultsHeader+"**Writer:** draft", calls[1].Req.Task)
			assert.Equal(t, "ship"+PreviousResultsHeader+"**P1:** one\n\n**P2:** two", calls[2].Req.Task)
			assert.Equal(t, "M", calls[2].Req.Manager)

			agents, ok := e.Agents("C")
			require.True(t, ok)
			for _, st := range agents {
				assert.Equal(t, agentstate.Completed, st.Status, st.Name)
				if streaming {
					assert.Equal(t, st.Name+" output", st.Buffer)
					assert.Equal(t, 5*time.Millisecond, st.Duration)
				}
			}
			assert.False(t, e.Running())
		})
	}
}

func TestEngine_CancelAfterFirstNode(t *testing.T) {
	bStarted := make(chan struct{})
	client := &fakeClient{}
	client.stream = func(ctx context.Context, c fakeCall, out chan<- patternsvc.StreamEvent) {
		if c.Kind != graph.PatternParallel {
			send(ctx, out, patternsvc.StreamEvent{Type: patternsvc.EventResult, Result: canned(c.Kind)})
			return
		}
		send(ctx, out, patternsvc.StatusEvent("P1", patternsvc.StatusExecuting))
		send(ctx, out, patternsvc.ChunkEvent("P1", "half an ans"))
		close(bStarted)
		<-ctx.Done()
	}

	e := NewEngine(chainGraph(t), client, WithStreaming(true))

	done := make(chan Outcome, 1)
	go func() { done <- e.Run(context.Background()) }()

	select {
	case <-bStarted:
	case <-time.After(2 * time.Second):
		t.Fatal("node B never started")
	}
	require.Eventually(t, func() bool {
		agents, _ := e.Agents("B")
		return len(agents) == 2 && agents[0].Buffer == "half an ans"
	}, time.Second, 5*time.Millisecond)
	require.True(t, e.Cancel())

	var out Outcome
	select {
	case out = <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop after cancel")
	}

	assert.Equal(t, OutcomeCancelled, out.Status)
	assert.NoError(t, out.Err)
	assert.Empty(t, out.Kind)
	assert.Equal(t, 1, out.NodesExecuted)

	results := e.Results()
	require.Len(t, results, 1)
	assert.Contains(t, results, "A")

	assertAllWaiting(t, e, "A", "B", "C")
	assert.Len(t, client.Calls(), 2, "C is never dispatched")
	assert.False(t, e.Cancel(), "no run is active any more")
}

func TestEngine_ParentContextCancelled(t *testing.T) {
	client := &fakeClient{handle: func(ctx context.Context, c fakeCall) (json.RawMessage, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}}
	e := NewEngine(chainGraph(t), client)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	out := e.Run(ctx)
	assert.Equal(t, OutcomeCancelled, out.Status)
	assert.Empty(t, e.Results())
}

func TestEngine_HierarchicalWithoutManager(t *testing.T) {
	g := seqGraph(t)
	a, err := g.AddNode(graph.PatternSequential)
	require.NoError(t, err)
	h, err := g.AddNode(graph.PatternHierarchical) // default worker only
	require.NoError(t, err)
	_, err = g.AddEdge(a.ID, h.ID, "", "")
	require.NoError(t, err)

	client := &fakeClient{}
	e := NewEngine(g, client)
	out := e.Run(context.Background())

	assert.Equal(t, OutcomeFailed, out.Status)
	assert.Equal(t, h.ID, out.FailedNode)
	assert.Equal(t, KindRolePrecondition, out.Kind)
	assert.ErrorIs(t, out.Err, pattern.ErrRolePrecondition)
	assert.Equal(t, 1, out.NodesExecuted)

	calls := client.Calls()
	require.Len(t, calls, 1, "no call is made for the failing node")
	assert.Equal(t, graph.PatternSequential, calls[0].Kind)

	_, ok := e.Result(a.ID)
	assert.True(t, ok, "results before the failure remain")
}

func TestEngine_HierarchicalWithoutManagerMakesNoCalls(t *testing.T) {
	g := seqGraph(t)
	_, err := g.AddNode(graph.PatternHierarchical)
	require.NoError(t, err)

	client := &fakeClient{}
	out := NewEngine(g, client).Run(context.Background())

	assert.Equal(t, KindRolePrecondition, out.Kind)
	assert.Empty(t, client.Calls())
}

func TestEngine_FailureKinds(t *testing.T) {
	tests := []struct {
		name      string
		streaming bool
		handle    func(ctx context.Context, c fakeCall) (json.RawMessage, error)
		stream    func(ctx context.Context, c fakeCall, out chan<- patternsvc.StreamEvent)
		want      ErrorKind
	}{
		{
			name: "service error",
			handle: func(context.Context, fakeCall) (json.RawMessage, error) {
				return nil, &patternsvc.ServiceError{Pattern: graph.PatternParallel, StatusCode: 500, Message: "model overloaded"}
			},
			want: KindPatternExecution,
		},
		{
			name: "network error",
			handle: func(context.Context, fakeCall) (json.RawMessage, error) {
				return nil, errors.New("dial tcp: connection refused")
			},
			want: KindStreamTransport,
		},
		{
			name: "unparseable result",
			handle: func(context.Context, fakeCall) (json.RawMessage, error) {
				return json.RawMessage(`not json`), nil
			},
			want: KindStreamTransport,
		},
		{
			name:      "error frame",
			streaming: true,
			stream: func(ctx context.Context, c fakeCall, out chan<- patternsvc.StreamEvent) {
				send(ctx, out, patternsvc.StreamEvent{Type: patternsvc.EventError, Data: "agent crashed"})
			},
			want: KindPatternExecution,
		},
		{
			name:      "malformed frame",
			streaming: true,
			stream: func(ctx context.Context, c fakeCall, out chan<- patternsvc.StreamEvent) {
				send(ctx, out, patternsvc.StreamEvent{Err: errors.New("invalid character")})
			},
			want: KindStreamTransport,
		},
		{
			name:      "stream closed without result",
			streaming: true,
			stream: func(ctx context.Context, c fakeCall, out chan<- patternsvc.StreamEvent) {
				send(ctx, out, patternsvc.StatusEvent("Agent 1", patternsvc.StatusExecuting))
			},
			want: KindStreamTransport,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := seqGraph(t)
			first, err := g.AddNode(graph.PatternParallel)
			require.NoError(t, err)
			second, err := g.AddNode(graph.PatternSequential)
			require.NoError(t, err)
			_, err = g.AddEdge(first.ID, second.ID, "", "")
			require.NoError(t, err)

			client := &fakeClient{handle: tt.handle, stream: tt.stream}
			out := NewEngine(g, client, WithStreaming(tt.streaming)).Run(context.Background())

			assert.Equal(t, OutcomeFailed, out.Status)
			assert.Equal(t, first.ID, out.FailedNode)
			assert.Equal(t, tt.want, out.Kind)
			assert.ErrorIs(t, out.Err, tt.want.Sentinel())

			var ne *NodeError
			require.ErrorAs(t, out.Err, &ne)
			assert.Equal(t, graph.PatternParallel, ne.Pattern)
			assert.Len(t, client.Calls(), 1, "dependents are never dispatched")
		})
	}
}

func TestEngine_GraphErrors(t *testing.T) {
	t.Run("empty", func(t *testing.T) {
		out := NewEngine(seqGraph(t), &fakeClient{}).Run(context.Background())
		assert.Equal(t, OutcomeFailed, out.Status)
		assert.Equal(t, KindEmptyGraph, out.Kind)
		assert.ErrorIs(t, out.Err, ErrEmptyGraph)
		assert.Empty(t, out.FailedNode)
	})

	t.Run("cycle", func(t *testing.T) {
		g := seqGraph(t)
		ids := addNodes(t, g, 2)
		_, err := g.AddEdge(ids[0], ids[1], "", "")
		require.NoError(t, err)
		_, err = g.AddEdge(ids[1], ids[0], "", "")
		require.NoError(t, err)

		client := &fakeClient{}
		out := NewEngine(g, client).Run(context.Background())
		assert.Equal(t, KindGraphCycle, out.Kind)
		assert.ErrorIs(t, out.Err, ErrGraphCycle)
		assert.Empty(t, client.Calls())
	})
}

func TestEngine_UnknownAgentEventIsIgnored(t *testing.T) {
	g := seqGraph(t)
	n, err := g.AddNode(graph.PatternSequential)
	require.NoError(t, err)

	client := &fakeClient{stream: func(ctx context.Context, c fakeCall, out chan<- patternsvc.StreamEvent) {
		send(ctx, out, patternsvc.StatusEvent("Ghost", patternsvc.StatusExecuting))
		send(ctx, out, patternsvc.ChunkEvent("Ghost", "boo"))
		send(ctx, out, patternsvc.StreamEvent{Type: patternsvc.EventResult, Result: canned(c.Kind)})
	}}
	e := NewEngine(g, client, WithStreaming(true))
	events, stop := e.Subscribe()
	defer stop()

	out := e.Run(context.Background())
	require.Equal(t, OutcomeSucceeded, out.Status)

	agents, _ := e.Agents(n.ID)
	require.Len(t, agents, 1)
	assert.Equal(t, "Agent 1", agents[0].Name)
	assert.Equal(t, agentstate.Waiting, agents[0].Status)
	assert.Empty(t, agents[0].Buffer)

	for len(events) > 0 {
		ev := <-events
		assert.NotEqual(t, ProgressAgent, ev.Type)
	}
}

func TestEngine_ReadsNodeConfigAtDispatch(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{handle: func(ctx context.Context, c fakeCall) (json.RawMessage, error) {
		if c.Req.Task == "first" {
			<-release
		}
		return canned(c.Kind), nil
	}}

	g := seqGraph(t)
	ids := addNodes(t, g, 2)
	for i, task := range []string{"first", "second"} {
		_, err := g.UpdateNode(ids[i], func(_ *string, _ *graph.PatternKind, cfg *graph.NodeConfig) { cfg.Task = task })
		require.NoError(t, err)
	}
	_, err := g.AddEdge(ids[0], ids[1], "", "")
	require.NoError(t, err)

	e := NewEngine(g, client)
	done := make(chan Outcome, 1)
	go func() { done <- e.Run(context.Background()) }()

	require.Eventually(t, func() bool { return len(client.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	_, err = g.UpdateNode(ids[1], func(_ *string, _ *graph.PatternKind, cfg *graph.NodeConfig) { cfg.Task = "edited" })
	require.NoError(t, err)
	close(release)

	out := <-done
	require.Equal(t, OutcomeSucceeded, out.Status)
	calls := client.Calls()
	require.Len(t, calls, 2)
	assert.True(t, strings.HasPrefix(calls[1].Req.Task, "edited"+PreviousResultsHeader))
}

func TestEngine_NodeRemovedMidRunIsSkipped(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{handle: func(ctx context.Context, c fakeCall) (json.RawMessage, error) {
		if c.Req.Task == "write" {
			<-release
		}
		return canned(c.Kind), nil
	}}

	g := chainGraph(t)
	e := NewEngine(g, client)
	done := make(chan Outcome, 1)
	go func() { done <- e.Run(context.Background()) }()

	require.Eventually(t, func() bool { return len(client.Calls()) == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, g.RemoveNode("B"))
	close(release)

	out := <-done
	require.Equal(t, OutcomeSucceeded, out.Status, out.String())
	assert.Equal(t, 2, out.NodesExecuted)
	assert.Equal(t, []string{"B"}, out.Skipped)
	assert.Equal(t, "succeeded: 2 nodes executed, 1 skipped", out.String())
	assert.Len(t, client.Calls(), 2)

	_, ok := e.Result("B")
	assert.False(t, ok)
}

func TestEngine_RunInProgress(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{handle: func(ctx context.Context, c fakeCall) (json.RawMessage, error) {
		<-release
		return canned(c.Kind), nil
	}}
	g := seqGraph(t)
	addNodes(t, g, 1)
	e := NewEngine(g, client)

	done := make(chan Outcome, 1)
	go func() { done <- e.Run(context.Background()) }()
	require.Eventually(t, e.Running, time.Second, 5*time.Millisecond)

	second := e.Run(context.Background())
	assert.Equal(t, KindRunInProgress, second.Kind)
	assert.ErrorIs(t, second.Err, ErrRunInProgress)

	close(release)
	assert.Equal(t, OutcomeSucceeded, (<-done).Status)
}

func TestEngine_TickerUpdatesElapsed(t *testing.T) {
	release := make(chan struct{})
	client := &fakeClient{stream: func(ctx context.Context, c fakeCall, out chan<- patternsvc.StreamEvent) {
		send(ctx, out, patternsvc.StatusEvent("Agent 1", patternsvc.StatusExecuting))
		select {
		case <-release:
		case <-ctx.Done():
			return
		}
		send(ctx, out, patternsvc.CompletedEvent("Agent 1", 42))
		send(ctx, out, patternsvc.StreamEvent{Type: patternsvc.EventResult, Result: canned(c.Kind)})
	}}
	g := seqGraph(t)
	ids := addNodes(t, g, 1)
	e := NewEngine(g, client, WithStreaming(true), WithTickInterval(5*time.Millisecond))

	done := make(chan Outcome, 1)
	go func() { done <- e.Run(context.Background()) }()

	require.Eventually(t, func() bool {
		agents, _ := e.Agents(ids[0])
		return len(agents) == 1 && agents[0].Status == agentstate.Executing && agents[0].Elapsed > 0
	}, 2*time.Second, 5*time.Millisecond)
	close(release)

	require.Equal(t, OutcomeSucceeded, (<-done).Status)
	agents, _ := e.Agents(ids[0])
	assert.Equal(t, 42*time.Millisecond, agents[0].Duration)
}

func TestEngine_ProgressEvents(t *testing.T) {
	e := NewEngine(chainGraph(t), &fakeClient{})
	events, stop := e.Subscribe()

	out := e.Run(context.Background())
	require.Equal(t, OutcomeSucceeded, out.Status)
	stop()

	var got []string
	for ev := range events {
		if ev.Type == ProgressAgent {
			continue
		}
		got = append(got, string(ev.Type)+":"+ev.NodeID)
	}
	assert.Equal(t, []string{
		"run-started:",
		"node-started:A", "node-completed:A",
		"node-started:B", "node-completed:B",
		"node-started:C", "node-completed:C",
		"run-finished:",
	}, got)
}

func TestEngine_Snapshot(t *testing.T) {
	e := NewEngine(chainGraph(t), &fakeClient{})

	before := e.Snapshot()
	assert.False(t, before.Running)
	require.Len(t, before.Nodes, 3)
	assert.Equal(t, agentstate.Waiting, before.Nodes[0].Agents[0].Status)
	assert.Nil(t, before.Last)

	e.Run(context.Background())

	after := e.Snapshot()
	assert.Equal(t, []string{"A", "B", "C"}, after.Order)
	for _, n := range after.Nodes {
		assert.True(t, n.HasResult, n.ID)
	}
	require.NotNil(t, after.Last)
	assert.Equal(t, OutcomeSucceeded, after.Last.Status)

	e.ClearResults()
	assert.Empty(t, e.Results())
}

func TestEngine_AgainstEchoService(t *testing.T) {
	ts := httptest.NewServer(patternsvc.NewServer(&patternsvc.EchoHandler{}, nil).Routes())
	defer ts.Close()

	e := NewEngine(chainGraph(t), patternsvc.NewHTTPClient(ts.URL), WithStreaming(true))
	out := e.Run(context.Background())
	require.Equal(t, OutcomeSucceeded, out.Status, out.String())

	c, ok := e.Result("C")
	require.True(t, ok)
	assert.NotEmpty(t, c.Text())

	agents, _ := e.Agents("B")
	for _, st := range agents {
		assert.Equal(t, agentstate.Completed, st.Status)
		assert.Equal(t, st.Name+" handled: review", st.Buffer)
	}
}

func TestOutcome_JSON(t *testing.T) {
	out := Outcome{Status: OutcomeFailed, NodesExecuted: 1, FailedNode: "B", Kind: KindStreamTransport, Err: errors.New("eof")}
	b, err := json.Marshal(out)
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"failed","nodes_executed":1,"failed_node":"B","kind":"stream-transport","error":"eof"}`, string(b))

	b, err = json.Marshal(Outcome{Status: OutcomeSucceeded, NodesExecuted: 2, Skipped: []string{"B"}})
	require.NoError(t, err)
	assert.JSONEq(t, `{"status":"succeeded","nodes_executed":2,"skipped":["B"]}`, string(b))
}
