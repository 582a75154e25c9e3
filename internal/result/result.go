// Package result decodes the pattern-shaped values returned by the pattern
// execution service into tagged variants, and extracts the text that feeds
// downstream nodes.
package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// Result is the cached output of one node run.
type Result interface {
	// Pattern returns the pattern kind that produced the result.
	Pattern() graph.PatternKind

	// Text returns the canonical aggregable text of the whole result. Every
	// variant applies the same priority rules as Extract, so a document's
	// text does not depend on the pattern that produced it.
	Text() string

	// AgentOutput returns the individual output of the named agent. The second
	// value is false when the result has no per-agent breakdown or the agent
	// is absent from it.
	AgentOutput(name string) (string, bool)

	// Raw returns the JSON document the result was decoded from.
	Raw() json.RawMessage
}

// Step is one hand-off in a sequential chain.
type Step struct {
	Agent  string `json:"agent"`
	Result string `json:"result"`
}

// DebateArgument is one debater's contribution to a round.
type DebateArgument struct {
	Agent    string `json:"agent"`
	Argument string `json:"argument"`
}

// DebateRound groups the arguments made in one round.
type DebateRound struct {
	Round     int              `json:"round"`
	Arguments []DebateArgument `json:"arguments"`
}

// raw carries the undecoded document shared by every variant.
type raw struct {
	doc json.RawMessage
}

func (r raw) Raw() json.RawMessage {
	return append(json.RawMessage(nil), r.doc...)
}

// Sequential is the result of a chain of hand-offs.
type Sequential struct {
	raw
	Steps       []Step `json:"steps"`
	FinalResult string `json:"final_result"`
}

func (*Sequential) Pattern() graph.PatternKind { return graph.PatternSequential }

func (s *Sequential) Text() string { return Extract(s.doc) }

func (s *Sequential) AgentOutput(name string) (string, bool) {
	return lastStep(s.Steps, name)
}

// Parallel is the result of a fan-out.
type Parallel struct {
	raw
	AgentResults     AgentOutputs `json:"agent_results"`
	AggregatedResult string       `json:"aggregated_result"`
}

func (*Parallel) Pattern() graph.PatternKind { return graph.PatternParallel }

func (p *Parallel) Text() string { return Extract(p.doc) }

func (p *Parallel) AgentOutput(name string) (string, bool) {
	return p.AgentResults.Get(name)
}

// Hierarchical is the result of a manager delegating to workers.
type Hierarchical struct {
	raw
	ManagerPlan  string       `json:"manager_plan"`
	AgentResults AgentOutputs `json:"agent_results"`
	FinalResult  string       `json:"final_result"`
}

func (*Hierarchical) Pattern() graph.PatternKind { return graph.PatternHierarchical }

func (h *Hierarchical) Text() string { return Extract(h.doc) }

func (h *Hierarchical) AgentOutput(name string) (string, bool) {
	return h.AgentResults.Get(name)
}

// Debate is the result of a multi-round debate.
type Debate struct {
	raw
	Rounds      []DebateRound `json:"rounds"`
	FinalResult string        `json:"final_result"`
}

func (*Debate) Pattern() graph.PatternKind { return graph.PatternDebate }

func (d *Debate) Text() string { return Extract(d.doc) }

// AgentOutput returns the agent's argument from the latest round it spoke in.
func (d *Debate) AgentOutput(name string) (string, bool) {
	for i := len(d.Rounds) - 1; i >= 0; i-- {
		args := d.Rounds[i].Arguments
		for j := len(args) - 1; j >= 0; j-- {
			if args[j].Agent == name {
				return args[j].Argument, true
			}
		}
	}
	return "", false
}

// Routing is the result of a router handing the task to one specialist.
type Routing struct {
	raw
	SelectedSpecialist string `json:"selected_specialist"`
	RoutingReason      string `json:"routing_reason"`
	Result             string `json:"result"`
}

func (*Routing) Pattern() graph.PatternKind { return graph.PatternRouting }

func (r *Routing) Text() string { return Extract(r.doc) }

func (r *Routing) AgentOutput(name string) (string, bool) {
	if r.SelectedSpecialist != "" && r.SelectedSpecialist == name {
		return r.Result, true
	}
	return "", false
}

// Reflection is the answer of a reflector agent. Suggestion parsing happens in
// the pattern package.
type Reflection struct {
	raw
	Result string `json:"result"`
	Output string `json:"output"`
}

func (*Reflection) Pattern() graph.PatternKind { return graph.PatternReflection }

func (r *Reflection) Text() string { return Extract(r.doc) }

func (*Reflection) AgentOutput(string) (string, bool) { return "", false }

// Generic wraps a document whose shape does not match its pattern's variant.
type Generic struct {
	raw
	Kind graph.PatternKind
}

func (g *Generic) Pattern() graph.PatternKind { return g.Kind }

func (g *Generic) Text() string { return Extract(g.doc) }

func (g *Generic) AgentOutput(name string) (string, bool) {
	var obj map[string]json.RawMessage
	if json.Unmarshal(g.doc, &obj) != nil {
		return "", false
	}
	if v, ok := obj["agent_results"]; ok {
		var outs AgentOutputs
		if json.Unmarshal(v, &outs) == nil {
			if s, ok := outs.Get(name); ok {
				return s, true
			}
		}
	}
	if v, ok := obj["steps"]; ok {
		var steps []Step
		if json.Unmarshal(v, &steps) == nil {
			return lastStep(steps, name)
		}
	}
	return "", false
}

// Decode parses a service response for the given pattern. A document that is
// valid JSON but does not fit the pattern's variant decodes to a Generic.
func Decode(kind graph.PatternKind, doc json.RawMessage) (Result, error) {
	doc = bytes.TrimSpace(doc)
	if len(doc) == 0 {
		return nil, fmt.Errorf("result: decode %s: empty document", kind)
	}
	if !json.Valid(doc) {
		return nil, fmt.Errorf("result: decode %s: invalid JSON", kind)
	}
	doc = append(json.RawMessage(nil), doc...)
	base := raw{doc: doc}

	var v Result
	switch kind {
	case graph.PatternSequential:
		v = &Sequential{raw: base}
	case graph.PatternParallel:
		v = &Parallel{raw: base}
	case graph.PatternHierarchical:
		v = &Hierarchical{raw: base}
	case graph.PatternDebate:
		v = &Debate{raw: base}
	case graph.PatternRouting:
		v = &Routing{raw: base}
	case graph.PatternReflection:
		v = &Reflection{raw: base}
	default:
		return &Generic{raw: base, Kind: kind}, nil
	}

	if err := json.Unmarshal(doc, v); err != nil {
		return &Generic{raw: base, Kind: kind}, nil
	}
	return v, nil
}

// Extract applies the aggregation rules to an arbitrary result document, in
// priority order: per-agent map, step list, final_result, aggregated_result,
// string result or output, a nested result object one level deep, and
// finally the compact JSON of the whole document.
func Extract(doc json.RawMessage) string {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(doc, &obj); err != nil || obj == nil {
		var s string
		if json.Unmarshal(doc, &s) == nil {
			return s
		}
		return compact(doc)
	}
	if s, ok := extractFields(obj, true); ok {
		return s
	}
	return compact(doc)
}

func extractFields(obj map[string]json.RawMessage, nested bool) (string, bool) {
	if v, ok := obj["agent_results"]; ok {
		var outs AgentOutputs
		if json.Unmarshal(v, &outs) == nil && outs.Len() > 0 {
			return outs.Format(), true
		}
	}
	if v, ok := obj["steps"]; ok {
		var steps []Step
		if json.Unmarshal(v, &steps) == nil && len(steps) > 0 {
			return formatSteps(steps), true
		}
	}
	for _, key := range []string{"final_result", "aggregated_result", "result", "output"} {
		v, ok := obj[key]
		if !ok {
			continue
		}
		var s string
		if json.Unmarshal(v, &s) == nil && s != "" {
			return s, true
		}
	}
	if nested {
		if v, ok := obj["result"]; ok {
			var inner map[string]json.RawMessage
			if json.Unmarshal(v, &inner) == nil && inner != nil {
				return extractFields(inner, false)
			}
		}
	}
	return "", false
}

// FormatAgentBlock renders one agent's output the way aggregated text shows it.
func FormatAgentBlock(name, output string) string {
	return "**" + name + ":** " + output
}

func formatSteps(steps []Step) string {
	blocks := make([]string, 0, len(steps))
	for _, s := range steps {
		blocks = append(blocks, FormatAgentBlock(s.Agent, s.Result))
	}
	return strings.Join(blocks, "\n\n")
}

// lastStep returns the result of the last step performed by name.
func lastStep(steps []Step, name string) (string, bool) {
	for i := len(steps) - 1; i >= 0; i-- {
		if steps[i].Agent == name {
			return steps[i].Result, true
		}
	}
	return "", false
}

func compact(doc json.RawMessage) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, doc); err != nil {
		return string(doc)
	}
	return buf.String()
}
