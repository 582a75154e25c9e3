package result

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// AgentOutputs is a per-agent output map that remembers the order in which
// agents appear in the service response.
type AgentOutputs struct {
	names  []string
	values map[string]string
}

// NewAgentOutputs builds an AgentOutputs from alternating name/output pairs.
func NewAgentOutputs(pairs ...string) AgentOutputs {
	var o AgentOutputs
	for i := 0; i+1 < len(pairs); i += 2 {
		o.Set(pairs[i], pairs[i+1])
	}
	return o
}

// Set stores output for name, keeping the original position of an existing name.
func (o *AgentOutputs) Set(name, output string) {
	if o.values == nil {
		o.values = make(map[string]string)
	}
	if _, ok := o.values[name]; !ok {
		o.names = append(o.names, name)
	}
	o.values[name] = output
}

// Get returns the output stored for name.
func (o AgentOutputs) Get(name string) (string, bool) {
	v, ok := o.values[name]
	return v, ok
}

// Len returns the number of agents.
func (o AgentOutputs) Len() int { return len(o.names) }

// Names returns agent names in response order.
func (o AgentOutputs) Names() []string {
	return append([]string(nil), o.names...)
}

// Format joins the outputs as "**name:** output" blocks.
func (o AgentOutputs) Format() string {
	blocks := make([]string, 0, len(o.names))
	for _, n := range o.names {
		blocks = append(blocks, FormatAgentBlock(n, o.values[n]))
	}
	return strings.Join(blocks, "\n\n")
}

// MarshalJSON writes the map with keys in response order.
func (o AgentOutputs) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range o.names {
		if i > 0 {
			buf.WriteByte(',')
		}
		k, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		v, err := json.Marshal(o.values[n])
		if err != nil {
			return nil, err
		}
		buf.Write(k)
		buf.WriteByte(':')
		buf.Write(v)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON walks the object token by token so key order survives.
// Non-string values are kept as their compact JSON text.
func (o *AgentOutputs) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("result: agent outputs: %w", err)
	}
	if tok == nil {
		*o = AgentOutputs{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("result: agent outputs: expected object, got %v", tok)
	}

	out := AgentOutputs{}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("result: agent outputs: %w", err)
		}
		name, ok := tok.(string)
		if !ok {
			return fmt.Errorf("result: agent outputs: expected key, got %v", tok)
		}
		var v json.RawMessage
		if err := dec.Decode(&v); err != nil {
			return fmt.Errorf("result: agent outputs %q: %w", name, err)
		}
		var s string
		if json.Unmarshal(v, &s) != nil {
			s = compact(v)
		}
		out.Set(name, s)
	}
	if _, err := dec.Token(); err != nil {
		return fmt.Errorf("result: agent outputs: %w", err)
	}
	*o = out
	return nil
}
