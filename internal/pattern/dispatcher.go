// Package pattern maps a node's configuration onto a call against the pattern
// execution service. Each pattern kind has a builder that checks the node's
// role preconditions before anything touches the network.
package pattern

import (
	"context"
	"errors"
	"fmt"

	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
	"github.com/dusk-indust/patterngraph/internal/result"
)

// ErrRolePrecondition is matched by every RoleError.
var ErrRolePrecondition = errors.New("pattern: role precondition failed")

// RoleError reports a node whose agent roles do not fit its pattern.
type RoleError struct {
	NodeID  string
	Pattern graph.PatternKind
	Reason  string
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("pattern: %s node %s: %s", e.Pattern, e.NodeID, e.Reason)
}

// Is makes errors.Is(err, ErrRolePrecondition) true for any RoleError.
func (e *RoleError) Is(target error) bool {
	return target == ErrRolePrecondition
}

// Call is a ready-to-send request for one node.
type Call struct {
	NodeID  string
	Kind    graph.PatternKind
	Request patternsvc.Request
}

// Context is what a builder may read besides the node itself. Only the
// reflection builder uses it.
type Context struct {
	Graph   graph.Snapshot
	Results map[string]string // node id -> captured result text
}

type builder func(n graph.Node, req *patternsvc.Request, gc Context) error

var builders = map[graph.PatternKind]builder{
	graph.PatternSequential:   buildSequential,
	graph.PatternParallel:     buildParallel,
	graph.PatternHierarchical: buildHierarchical,
	graph.PatternDebate:       buildDebate,
	graph.PatternRouting:      buildRouting,
	graph.PatternReflection:   buildReflection,
}

// Build validates node and produces its call with task as the effective task
// text. It never performs I/O.
func Build(n graph.Node, task string, gc Context) (*Call, error) {
	b, ok := builders[n.Kind]
	if !ok {
		return nil, fmt.Errorf("pattern: node %s: %w: %q", n.ID, graph.ErrInvalidPattern, n.Kind)
	}
	if len(n.Agents) == 0 {
		return nil, roleError(n, "node has no agents")
	}

	req := patternsvc.Request{
		Task:       task,
		Agents:     agentSpecs(n.Agents),
		Repository: n.Config.Repository,
	}
	if err := b(n, &req, gc); err != nil {
		return nil, err
	}
	return &Call{NodeID: n.ID, Kind: n.Kind, Request: req}, nil
}

func roleError(n graph.Node, format string, args ...any) *RoleError {
	return &RoleError{NodeID: n.ID, Pattern: n.Kind, Reason: fmt.Sprintf(format, args...)}
}

func agentSpecs(agents []graph.Agent) []patternsvc.AgentSpec {
	out := make([]patternsvc.AgentSpec, len(agents))
	for i, a := range agents {
		out[i] = patternsvc.AgentSpec{
			Name:         a.Name,
			SystemPrompt: a.SystemPrompt,
			Role:         string(a.Role),
		}
	}
	return out
}

func names(agents []graph.Agent) []string {
	out := make([]string, len(agents))
	for i, a := range agents {
		out[i] = a.Name
	}
	return out
}

func buildSequential(n graph.Node, req *patternsvc.Request, _ Context) error {
	req.AgentSequence = names(n.Agents)
	return nil
}

func buildParallel(n graph.Node, req *patternsvc.Request, _ Context) error {
	req.AgentNames = names(n.Agents)
	return nil
}

func buildHierarchical(n graph.Node, req *patternsvc.Request, _ Context) error {
	managers := n.AgentsWithRole(graph.RoleManager)
	switch len(managers) {
	case 0:
		return roleError(n, "needs exactly one manager, has none")
	case 1:
	default:
		return roleError(n, "needs exactly one manager, has %d", len(managers))
	}

	req.Manager = managers[0].Name
	req.Workers = names(n.AgentsWithRole(graph.RoleWorker))
	return nil
}

func buildDebate(n graph.Node, req *patternsvc.Request, _ Context) error {
	req.Debaters = names(n.AgentsWithRole(graph.RoleWorker, graph.RoleSpecialist))
	if mods := n.AgentsWithRole(graph.RoleModerator); len(mods) > 0 {
		req.Moderator = mods[0].Name
	}
	req.Rounds = n.Config.Rounds
	if req.Rounds <= 0 {
		req.Rounds = graph.DefaultDebateRounds
	}
	return nil
}

func buildRouting(n graph.Node, req *patternsvc.Request, _ Context) error {
	routers := n.AgentsWithRole(graph.RoleManager, graph.RoleModerator)
	if len(routers) == 0 {
		return roleError(n, "needs a manager or moderator to act as router")
	}
	req.Router = routers[0].Name
	req.Specialists = names(n.AgentsWithRole(graph.RoleSpecialist))
	return nil
}

// Dispatcher sends calls to the pattern execution service.
type Dispatcher struct {
	client patternsvc.Client
}

// NewDispatcher creates a Dispatcher using client.
func NewDispatcher(client patternsvc.Client) *Dispatcher {
	return &Dispatcher{client: client}
}

// Execute issues a synchronous call and decodes the result.
func (d *Dispatcher) Execute(ctx context.Context, call *Call) (result.Result, error) {
	raw, err := d.client.Execute(ctx, call.Kind, call.Request)
	if err != nil {
		return nil, err
	}
	return result.Decode(call.Kind, raw)
}

// Stream issues a streaming call. The returned channel is closed when the
// stream settles or ctx is cancelled.
func (d *Dispatcher) Stream(ctx context.Context, call *Call) (<-chan patternsvc.StreamEvent, error) {
	return d.client.Stream(ctx, call.Kind, call.Request)
}
