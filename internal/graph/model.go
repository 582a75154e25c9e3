package graph

// --- Enums ---

// PatternKind identifies one of the six orchestration strategies a node runs.
type PatternKind string

const (
	PatternSequential   PatternKind = "sequential"
	PatternParallel     PatternKind = "parallel"
	PatternHierarchical PatternKind = "hierarchical"
	PatternDebate       PatternKind = "debate"
	PatternRouting      PatternKind = "routing"
	PatternReflection   PatternKind = "reflection"
)

// PatternKinds lists every supported pattern in canonical order.
var PatternKinds = []PatternKind{
	PatternSequential,
	PatternParallel,
	PatternHierarchical,
	PatternDebate,
	PatternRouting,
	PatternReflection,
}

// Valid reports whether k is one of the six known pattern kinds.
func (k PatternKind) Valid() bool {
	for _, known := range PatternKinds {
		if k == known {
			return true
		}
	}
	return false
}

// Role tags an agent's function inside its node.
type Role string

const (
	RoleManager    Role = "manager"
	RoleWorker     Role = "worker"
	RoleSpecialist Role = "specialist"
	RoleModerator  Role = "moderator"
	RoleReflector  Role = "reflector"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	switch r {
	case RoleManager, RoleWorker, RoleSpecialist, RoleModerator, RoleReflector:
		return true
	}
	return false
}

// EdgeKind distinguishes whole-node connections from agent-narrowed ones.
type EdgeKind string

const (
	EdgeNodeLevel  EdgeKind = "node-level"
	EdgeAgentLevel EdgeKind = "agent-level"
)

// --- Models ---

// Agent is a named, role-tagged participant owned by exactly one node.
// Runtime state (status, buffers, timers) is tracked by the agentstate
// package and is never part of the persisted model.
type Agent struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	Role         Role   `json:"role"`
	SystemPrompt string `json:"system_prompt"`
}

// NodeConfig is the pattern configuration of a node.
type NodeConfig struct {
	Task       string `json:"task"`
	Rounds     int    `json:"rounds,omitempty"`     // debate only
	Repository string `json:"repository,omitempty"` // optional external repository reference
}

// Position is the canvas location of a node. The engine never reads it; it
// exists so saved designs round-trip without loss.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Node is one orchestration block.
type Node struct {
	ID       string      `json:"id"`
	Name     string      `json:"name,omitempty"`
	Kind     PatternKind `json:"kind"`
	Config   NodeConfig  `json:"config"`
	Agents   []Agent     `json:"agents"`
	Position Position    `json:"position"`
}

// Agent returns the agent with the given id.
func (n *Node) Agent(id string) (Agent, bool) {
	for _, a := range n.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return Agent{}, false
}

// AgentsWithRole returns the node's agents having any of the given roles, in
// node order.
func (n *Node) AgentsWithRole(roles ...Role) []Agent {
	var out []Agent
	for _, a := range n.Agents {
		for _, r := range roles {
			if a.Role == r {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Edge is a directed connection between two nodes, optionally narrowed to
// specific agents.
type Edge struct {
	ID          string   `json:"id"`
	Source      string   `json:"source"`
	Target      string   `json:"target"`
	SourceAgent string   `json:"source_agent,omitempty"`
	TargetAgent string   `json:"target_agent,omitempty"`
	Kind        EdgeKind `json:"kind"`
}

// edgeKindFor derives an edge's kind from the presence of agent ids.
func edgeKindFor(sourceAgent, targetAgent string) EdgeKind {
	if sourceAgent != "" || targetAgent != "" {
		return EdgeAgentLevel
	}
	return EdgeNodeLevel
}

// Design is the persisted form of a graph.
type Design struct {
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	Nodes           []Node   `json:"nodes"`
	Edges           []Edge   `json:"edges"`
	ReferencedRepos []string `json:"referenced_repos"`
}
