package orchestrator

import "github.com/dusk-indust/patterngraph/internal/graph"

// ExecutionOrder returns the node ids of s in an order where every node-level
// edge's source precedes its target. Agent-level edges carry data only and do
// not constrain the order. Nodes with no pending dependencies are taken in
// creation order, so the result is deterministic.
func ExecutionOrder(s graph.Snapshot) ([]string, error) {
	if len(s.Nodes) == 0 {
		return nil, ErrEmptyGraph
	}

	inDegree := make(map[string]int, len(s.Nodes))
	for _, n := range s.Nodes {
		inDegree[n.ID] = 0
	}
	adj := make(map[string][]string)
	for _, e := range s.Edges {
		if e.Kind != graph.EdgeNodeLevel {
			continue
		}
		if _, ok := inDegree[e.Source]; !ok {
			continue
		}
		if _, ok := inDegree[e.Target]; !ok {
			continue
		}
		adj[e.Source] = append(adj[e.Source], e.Target)
		inDegree[e.Target]++
	}

	queue := make([]string, 0, len(s.Nodes))
	for _, n := range s.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(s.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adj[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) < len(s.Nodes) {
		var stuck []string
		for _, n := range s.Nodes {
			if inDegree[n.ID] > 0 {
				stuck = append(stuck, n.ID)
			}
		}
		return order, &CycleError{Unordered: stuck}
	}
	return order, nil
}
