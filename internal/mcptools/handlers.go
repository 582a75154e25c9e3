package mcptools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/dusk-indust/patterngraph/internal/design"
	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/orchestrator"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
)

// DesignService holds the design store and pattern service client used by
// MCP tool handlers.
type DesignService struct {
	store  design.Store
	client patternsvc.Client
	opts   []orchestrator.Option
	logger *slog.Logger
}

// NewDesignService creates a DesignService. opts are applied to every engine
// the run_design tool creates.
func NewDesignService(store design.Store, client patternsvc.Client, logger *slog.Logger, opts ...orchestrator.Option) *DesignService {
	if logger == nil {
		logger = slog.Default()
	}
	return &DesignService{store: store, client: client, opts: opts, logger: logger}
}

// ListDesigns returns summaries of every stored design.
func (s *DesignService) ListDesigns(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	_ ListDesignsInput,
) (*mcp.CallToolResult, ListDesignsOutput, error) {
	summaries, err := s.store.List(ctx)
	if err != nil {
		return nil, ListDesignsOutput{}, fmt.Errorf("list designs: %w", err)
	}

	out := ListDesignsOutput{Designs: make([]DesignSummary, 0, len(summaries))}
	for _, sum := range summaries {
		out.Designs = append(out.Designs, DesignSummary{
			Name:        sum.Name,
			Description: sum.Description,
			Nodes:       sum.Nodes,
			Edges:       sum.Edges,
			UpdatedAt:   sum.UpdatedAt.UTC().Format(time.RFC3339),
		})
	}
	return nil, out, nil
}

// GetDesign returns a stored design with its validation issues.
func (s *DesignService) GetDesign(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input GetDesignInput,
) (*mcp.CallToolResult, GetDesignOutput, error) {
	d, g, err := s.load(ctx, input.Name)
	if err != nil {
		return nil, GetDesignOutput{}, err
	}

	out := GetDesignOutput{Design: normalize(*d), Issues: []string{}}
	for _, issue := range g.Validate() {
		out.Issues = append(out.Issues, issue.String())
	}
	return nil, out, nil
}

// ExecutionOrder returns the order in which a design's nodes would run.
func (s *DesignService) ExecutionOrder(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input ExecutionOrderInput,
) (*mcp.CallToolResult, ExecutionOrderOutput, error) {
	_, g, err := s.load(ctx, input.Name)
	if err != nil {
		return nil, ExecutionOrderOutput{}, err
	}

	snap := g.Snapshot()
	order, err := orchestrator.ExecutionOrder(snap)
	if err != nil {
		return nil, ExecutionOrderOutput{}, fmt.Errorf("order design %q: %w", input.Name, err)
	}

	out := ExecutionOrderOutput{Order: make([]OrderedNode, 0, len(order))}
	for _, id := range order {
		n, _ := snap.Node(id)
		out.Order = append(out.Order, OrderedNode{ID: n.ID, Name: n.Name, Kind: n.Kind})
	}
	return nil, out, nil
}

// RunDesign executes a stored design against the pattern service and
// returns the outcome with each node's result text.
func (s *DesignService) RunDesign(
	ctx context.Context,
	_ *mcp.CallToolRequest,
	input RunDesignInput,
) (*mcp.CallToolResult, RunDesignOutput, error) {
	d, g, err := s.load(ctx, input.Name)
	if err != nil {
		return nil, RunDesignOutput{}, err
	}

	opts := append([]orchestrator.Option{orchestrator.WithLogger(s.logger)}, s.opts...)
	opts = append(opts, orchestrator.WithStreaming(input.Streaming))
	engine := orchestrator.NewEngine(g, s.client, opts...)

	res := engine.Run(ctx)
	s.logger.Info("design run via MCP", "design", input.Name, "status", res.Status)

	out := RunDesignOutput{
		Status:        string(res.Status),
		NodesExecuted: res.NodesExecuted,
		Order:         res.Order,
		FailedNode:    res.FailedNode,
		Kind:          string(res.Kind),
		Results:       []NodeResult{},
		Applied:       []Applied{},
	}
	if out.Order == nil {
		out.Order = []string{}
	}
	if res.Err != nil {
		out.Message = res.Err.Error()
	}
	for _, id := range res.Order {
		r, ok := engine.Result(id)
		if !ok {
			continue
		}
		n, _ := g.Node(id)
		out.Results = append(out.Results, NodeResult{ID: id, Name: n.Name, Text: r.Text()})
	}

	if input.ApplySuggestions && res.Status == orchestrator.OutcomeSucceeded {
		applied, err := engine.ApplySuggestions()
		if err != nil {
			return nil, out, fmt.Errorf("apply suggestions to %q: %w", input.Name, err)
		}
		if len(applied) > 0 {
			if err := s.store.Save(ctx, g.Design(d.Name, d.Description)); err != nil {
				return nil, out, fmt.Errorf("save design %q: %w", input.Name, err)
			}
		}
		for _, a := range applied {
			out.Applied = append(out.Applied, Applied{NodeID: a.NodeID, AgentID: a.AgentID, Reason: a.Reason})
		}
	}
	return nil, out, nil
}

func (s *DesignService) load(ctx context.Context, name string) (*graph.Design, *graph.Graph, error) {
	if name == "" {
		return nil, nil, fmt.Errorf("name is required")
	}
	d, err := s.store.Get(ctx, name)
	if err != nil {
		return nil, nil, fmt.Errorf("get design %q: %w", name, err)
	}
	g, err := graph.FromDesign(*d)
	if err != nil {
		return nil, nil, fmt.Errorf("load design %q: %w", name, err)
	}
	return d, g, nil
}

// normalize replaces nil slices so the design validates against its schema.
func normalize(d graph.Design) graph.Design {
	if d.Nodes == nil {
		d.Nodes = []graph.Node{}
	}
	if d.Edges == nil {
		d.Edges = []graph.Edge{}
	}
	if d.ReferencedRepos == nil {
		d.ReferencedRepos = []string{}
	}
	return d
}
