// Package design persists graph designs. All design access goes through the
// Store interface; the engine never depends on a concrete backend.
package design

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// ErrNotFound is returned when no design has the requested name.
var ErrNotFound = errors.New("design: not found")

// Store is the persistence boundary for designs.
// Implementations: MemStore (testing), SQLiteStore, KuzuStore (cgo).
type Store interface {
	io.Closer

	// Save creates or replaces the design with d.Name.
	Save(ctx context.Context, d graph.Design) error

	// Get loads a design by name, returning ErrNotFound if absent.
	Get(ctx context.Context, name string) (*graph.Design, error)

	// List returns summaries of all designs ordered by name.
	List(ctx context.Context) ([]Summary, error)

	// Delete removes a design, returning ErrNotFound if absent.
	Delete(ctx context.Context, name string) error
}

// Summary describes a stored design without loading its graph.
type Summary struct {
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Nodes       int       `json:"nodes"`
	Edges       int       `json:"edges"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Drivers accepted by Open.
const (
	DriverMemory = "memory"
	DriverSQLite = "sqlite"
	DriverKuzu   = "kuzu"
)

// Open returns the store for driver. path is ignored by the memory driver.
func Open(driver, path string) (Store, error) {
	switch driver {
	case "", DriverMemory:
		return NewMemStore(), nil
	case DriverSQLite:
		return NewSQLiteStore(path)
	case DriverKuzu:
		return openKuzu(path)
	default:
		return nil, fmt.Errorf("design: unknown store driver %q", driver)
	}
}

// validateName rejects designs that cannot be addressed by name.
func validateName(name string) error {
	if name == "" {
		return errors.New("design: name is required")
	}
	return nil
}
