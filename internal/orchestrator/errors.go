package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/pattern"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
)

var (
	// ErrEmptyGraph is returned when a run is started on a graph with no nodes.
	ErrEmptyGraph = errors.New("orchestrator: graph has no nodes")

	// ErrGraphCycle is matched by every CycleError.
	ErrGraphCycle = errors.New("orchestrator: graph contains a cycle")

	// ErrStreamTransport covers network failures, malformed frames and
	// streams that end without a result.
	ErrStreamTransport = errors.New("orchestrator: stream transport failure")

	// ErrPatternExecution covers failures reported by the execution service.
	ErrPatternExecution = errors.New("orchestrator: pattern execution failed")

	// ErrRunInProgress is returned when a run is started while another is active.
	ErrRunInProgress = errors.New("orchestrator: a run is already in progress")

	errNodeRemoved = errors.New("orchestrator: node removed")
)

// ErrorKind names the category of a failed run.
type ErrorKind string

const (
	KindEmptyGraph       ErrorKind = "empty-graph"
	KindGraphCycle       ErrorKind = "graph-cycle"
	KindRolePrecondition ErrorKind = "role-precondition"
	KindStreamTransport  ErrorKind = "stream-transport"
	KindPatternExecution ErrorKind = "pattern-execution"
	KindRunInProgress    ErrorKind = "run-in-progress"
)

// Sentinel returns the error value matched by errors.Is for this kind.
func (k ErrorKind) Sentinel() error {
	switch k {
	case KindEmptyGraph:
		return ErrEmptyGraph
	case KindGraphCycle:
		return ErrGraphCycle
	case KindRolePrecondition:
		return pattern.ErrRolePrecondition
	case KindStreamTransport:
		return ErrStreamTransport
	case KindPatternExecution:
		return ErrPatternExecution
	case KindRunInProgress:
		return ErrRunInProgress
	}
	return nil
}

// CycleError reports nodes that could not be ordered because they sit on or
// behind a cycle of node-level edges.
type CycleError struct {
	Unordered []string
}

func (e *CycleError) Error() string {
	return fmt.Sprintf("orchestrator: graph contains a cycle involving nodes %s", strings.Join(e.Unordered, ", "))
}

// Is makes errors.Is(err, ErrGraphCycle) true for any CycleError.
func (e *CycleError) Is(target error) bool {
	return target == ErrGraphCycle
}

// NodeError is the failure of a single node. It matches both its kind's
// sentinel and the underlying cause.
type NodeError struct {
	NodeID  string
	Pattern graph.PatternKind
	Kind    ErrorKind
	Err     error
}

func (e *NodeError) Error() string {
	return fmt.Sprintf("orchestrator: node %s (%s): %s: %v", e.NodeID, e.Pattern, e.Kind, e.Err)
}

func (e *NodeError) Unwrap() []error {
	if s := e.Kind.Sentinel(); s != nil {
		return []error{s, e.Err}
	}
	return []error{e.Err}
}

// classify maps a dispatch error onto its kind. Service-reported failures are
// execution errors; anything else that broke the exchange is transport.
func classify(err error) ErrorKind {
	var se *patternsvc.ServiceError
	switch {
	case errors.Is(err, pattern.ErrRolePrecondition):
		return KindRolePrecondition
	case errors.As(err, &se), errors.Is(err, ErrPatternExecution):
		return KindPatternExecution
	default:
		return KindStreamTransport
	}
}

// cancelled reports whether the run was stopped by its own signal. Whatever
// error the in-flight call returned afterwards is a symptom of the abort.
func cancelled(runCtx context.Context) bool {
	return runCtx.Err() != nil
}
