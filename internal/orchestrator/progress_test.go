package orchestrator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dusk-indust/patterngraph/internal/agentstate"
)

func TestProgressReporter_EmitAndSubscribe(t *testing.T) {
	pr := NewProgressReporter(4)
	defer pr.Close()

	ch := pr.Subscribe()
	want := ProgressEvent{Type: ProgressNodeStarted, NodeID: "n1", Node: "sequential 1"}

	pr.Emit(want)

	select {
	case got := <-ch:
		assert.Equal(t, want, got)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for progress event")
	}
}

func TestProgressReporter_EmitWhenFull_DoesNotBlock(t *testing.T) {
	pr := NewProgressReporter(8)
	defer pr.Close()

	done := make(chan struct{})
	go func() {
		for range 100 {
			pr.Emit(ProgressEvent{Type: ProgressAgent})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Emit blocked when the channel was full")
	}
	assert.Len(t, pr.Subscribe(), 8)
}

func TestBroadcaster_Unsubscribe(t *testing.T) {
	var b broadcaster
	first, stopFirst := b.subscribe()
	second, stopSecond := b.subscribe()
	defer stopSecond()

	b.emit(ProgressEvent{Type: ProgressRunStarted})
	stopFirst()
	stopFirst() // idempotent
	b.emit(ProgressEvent{Type: ProgressRunFinished})

	var got []ProgressType
	for ev := range first {
		got = append(got, ev.Type)
	}
	assert.Equal(t, []ProgressType{ProgressRunStarted}, got)

	require.Len(t, second, 2)
}

func TestFormatProgress(t *testing.T) {
	tests := []struct {
		name  string
		event ProgressEvent
		want  string
	}{
		{"node started", ProgressEvent{Type: ProgressNodeStarted, NodeID: "n1", Node: "Research"}, "  ● Research..."},
		{"falls back to id", ProgressEvent{Type: ProgressNodeCompleted, NodeID: "n1"}, "  ✓ n1 complete"},
		{"failed", ProgressEvent{Type: ProgressNodeFailed, Node: "Research", Message: "boom"}, "  ✗ Research failed: boom"},
		{"agent status", ProgressEvent{Type: ProgressAgent, Message: "status", Agent: &agentstate.AgentState{Name: "W", Status: agentstate.Executing}}, "    W: executing"},
		{"agent chunk", ProgressEvent{Type: ProgressAgent, Message: "chunk", Agent: &agentstate.AgentState{Name: "W"}}, ""},
		{"finished", ProgressEvent{Type: ProgressRunFinished, Outcome: &Outcome{Status: OutcomeSucceeded, NodesExecuted: 3}}, "run succeeded: 3 nodes executed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, FormatProgress(tt.event))
		})
	}
}
