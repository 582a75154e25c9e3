package mcptools

import "github.com/dusk-indust/patterngraph/internal/graph"

// --- MCP Tool Input/Output Types ---
// The MCP Go SDK generates JSON schemas from these structs. Slices in
// outputs are always non-nil so they validate as arrays.

// ListDesignsInput is the input for the list_designs MCP tool.
type ListDesignsInput struct{}

// ListDesignsOutput is the result of the list_designs MCP tool.
type ListDesignsOutput struct {
	Designs []DesignSummary `json:"designs"`
}

// DesignSummary is a brief overview of one stored design.
type DesignSummary struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Nodes       int    `json:"nodes"`
	Edges       int    `json:"edges"`
	UpdatedAt   string `json:"updatedAt"`
}

// GetDesignInput is the input for the get_design MCP tool.
type GetDesignInput struct {
	Name string `json:"name" jsonschema:"design name"`
}

// GetDesignOutput is the result of the get_design MCP tool.
type GetDesignOutput struct {
	Design graph.Design `json:"design"`
	Issues []string     `json:"issues" jsonschema:"validation errors and warnings for the design"`
}

// ExecutionOrderInput is the input for the execution_order MCP tool.
type ExecutionOrderInput struct {
	Name string `json:"name" jsonschema:"design name"`
}

// ExecutionOrderOutput is the result of the execution_order MCP tool.
type ExecutionOrderOutput struct {
	Order []OrderedNode `json:"order"`
}

// OrderedNode is one step of an execution order.
type OrderedNode struct {
	ID   string            `json:"id"`
	Name string            `json:"name"`
	Kind graph.PatternKind `json:"kind"`
}

// RunDesignInput is the input for the run_design MCP tool.
type RunDesignInput struct {
	Name      string `json:"name" jsonschema:"design name"`
	Streaming bool   `json:"streaming,omitempty" jsonschema:"use the streaming endpoints of the pattern service"`

	ApplySuggestions bool `json:"applySuggestions,omitempty" jsonschema:"write prompt suggestions from reflection nodes back into the stored design"`
}

// RunDesignOutput is the result of the run_design MCP tool.
type RunDesignOutput struct {
	Status        string       `json:"status" jsonschema:"succeeded, cancelled or failed"`
	NodesExecuted int          `json:"nodesExecuted"`
	Order         []string     `json:"order"`
	FailedNode    string       `json:"failedNode,omitempty"`
	Kind          string       `json:"kind,omitempty"`
	Message       string       `json:"message,omitempty"`
	Results       []NodeResult `json:"results"`
	Applied       []Applied    `json:"applied"`
}

// NodeResult is the text a node produced.
type NodeResult struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Text string `json:"text"`
}

// Applied is a reflection suggestion written into the design.
type Applied struct {
	NodeID  string `json:"nodeId"`
	AgentID string `json:"agentId"`
	Reason  string `json:"reason"`
}
