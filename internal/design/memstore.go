package design

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// Compile-time assertion: *MemStore satisfies Store.
var _ Store = (*MemStore)(nil)

// MemStore implements Store using Go maps. Thread-safe via sync.RWMutex.
// Designs are stored as JSON so callers never share memory with the store.
type MemStore struct {
	mu      sync.RWMutex
	designs map[string]memEntry
}

type memEntry struct {
	doc     []byte
	summary Summary
}

// NewMemStore returns an initialized MemStore ready for use.
func NewMemStore() *MemStore {
	return &MemStore{designs: make(map[string]memEntry)}
}

// Save stores a copy of d under its name.
func (m *MemStore) Save(_ context.Context, d graph.Design) error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("design: marshal %q: %w", d.Name, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.designs[d.Name] = memEntry{
		doc: doc,
		summary: Summary{
			Name:        d.Name,
			Description: d.Description,
			Nodes:       len(d.Nodes),
			Edges:       len(d.Edges),
			UpdatedAt:   time.Now().UTC(),
		},
	}
	return nil
}

// Get returns a copy of the named design.
func (m *MemStore) Get(_ context.Context, name string) (*graph.Design, error) {
	m.mu.RLock()
	e, ok := m.designs[name]
	m.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	var d graph.Design
	if err := json.Unmarshal(e.doc, &d); err != nil {
		return nil, fmt.Errorf("design: unmarshal %q: %w", name, err)
	}
	return &d, nil
}

// List returns all summaries sorted by name.
func (m *MemStore) List(_ context.Context) ([]Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Summary, 0, len(m.designs))
	for _, e := range m.designs {
		out = append(out, e.summary)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// Delete removes the named design.
func (m *MemStore) Delete(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.designs[name]; !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	delete(m.designs, name)
	return nil
}

// Close is a no-op for the in-memory store.
func (m *MemStore) Close() error {
	return nil
}
