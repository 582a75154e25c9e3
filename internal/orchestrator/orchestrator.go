// Package orchestrator runs a pattern graph: it orders the nodes, feeds each
// one the results of its upstream nodes, dispatches it to the pattern
// execution service and tracks its agents until the run settles.
package orchestrator

import (
	"encoding/json"
	"fmt"

	"github.com/dusk-indust/patterngraph/internal/agentstate"
)

// OutcomeStatus is the final state of a run.
type OutcomeStatus string

const (
	OutcomeSucceeded OutcomeStatus = "succeeded"
	OutcomeCancelled OutcomeStatus = "cancelled"
	OutcomeFailed    OutcomeStatus = "failed"
)

// Outcome reports how a run ended.
type Outcome struct {
	Status        OutcomeStatus
	NodesExecuted int
	Order         []string

	// Skipped lists ordered nodes that were removed from the graph before
	// their turn came.
	Skipped []string

	// Set only when Status is OutcomeFailed. FailedNode is empty for
	// failures that happen before any node is dispatched.
	FailedNode string
	Kind       ErrorKind
	Err        error
}

func (o Outcome) String() string {
	switch o.Status {
	case OutcomeSucceeded:
		if len(o.Skipped) > 0 {
			return fmt.Sprintf("succeeded: %d nodes executed, %d skipped", o.NodesExecuted, len(o.Skipped))
		}
		return fmt.Sprintf("succeeded: %d nodes executed", o.NodesExecuted)
	case OutcomeCancelled:
		return fmt.Sprintf("cancelled after %d nodes", o.NodesExecuted)
	default:
		if o.FailedNode != "" {
			return fmt.Sprintf("failed at node %s (%s): %v", o.FailedNode, o.Kind, o.Err)
		}
		return fmt.Sprintf("failed (%s): %v", o.Kind, o.Err)
	}
}

type outcomeJSON struct {
	Status        OutcomeStatus `json:"status"`
	NodesExecuted int           `json:"nodes_executed"`
	Order         []string      `json:"order,omitempty"`
	Skipped       []string      `json:"skipped,omitempty"`
	FailedNode    string        `json:"failed_node,omitempty"`
	Kind          ErrorKind     `json:"kind,omitempty"`
	Error         string        `json:"error,omitempty"`
}

// MarshalJSON renders Err as its message.
func (o Outcome) MarshalJSON() ([]byte, error) {
	v := outcomeJSON{
		Status:        o.Status,
		NodesExecuted: o.NodesExecuted,
		Order:         o.Order,
		Skipped:       o.Skipped,
		FailedNode:    o.FailedNode,
		Kind:          o.Kind,
	}
	if o.Err != nil {
		v.Error = o.Err.Error()
	}
	return json.Marshal(v)
}

// ProgressEvent is emitted to observers while a run is in flight.
type ProgressEvent struct {
	Type   ProgressType `json:"type"`
	NodeID string       `json:"node_id,omitempty"`
	Node   string       `json:"node,omitempty"` // display name

	// Agent is set for ProgressAgent events.
	Agent *agentstate.AgentState `json:"agent,omitempty"`

	// Outcome is set for ProgressRunFinished events.
	Outcome *Outcome `json:"outcome,omitempty"`

	Message string `json:"message,omitempty"`
}

// ProgressType discriminates progress events.
type ProgressType string

const (
	ProgressRunStarted    ProgressType = "run-started"
	ProgressNodeStarted   ProgressType = "node-started"
	ProgressAgent         ProgressType = "agent"
	ProgressNodeCompleted ProgressType = "node-completed"
	ProgressNodeFailed    ProgressType = "node-failed"
	ProgressRunFinished   ProgressType = "run-finished"
)

// NodeState is the observable state of one node.
type NodeState struct {
	ID        string                  `json:"id"`
	Name      string                  `json:"name"`
	Agents    []agentstate.AgentState `json:"agents"`
	HasResult bool                    `json:"has_result"`
}

// Snapshot is a read-only view of the engine.
type Snapshot struct {
	Running bool        `json:"running"`
	Order   []string    `json:"order,omitempty"`
	Nodes   []NodeState `json:"nodes"`
	Last    *Outcome    `json:"last_outcome,omitempty"`
}
