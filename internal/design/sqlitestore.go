package design

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// Compile-time assertion: *SQLiteStore satisfies Store.
var _ Store = (*SQLiteStore)(nil)

// SQLiteStore keeps each design as a JSON document in a SQLite table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (creating if needed) the SQLite database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if path == "" {
		return nil, errors.New("design: sqlite store needs a path")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("design: create data dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("design: open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("design: ping sqlite: %w", err)
	}

	// WAL lets the web server read while a CLI save is writing.
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("design: exec %s: %w", p, err)
		}
	}

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("design: migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS designs (
			name        TEXT PRIMARY KEY,
			description TEXT NOT NULL DEFAULT '',
			node_count  INTEGER NOT NULL DEFAULT 0,
			edge_count  INTEGER NOT NULL DEFAULT 0,
			document    TEXT NOT NULL,
			updated_at  DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return err
		}
	}
	return nil
}

// Save inserts or replaces the design.
func (s *SQLiteStore) Save(ctx context.Context, d graph.Design) error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	doc, err := json.Marshal(d)
	if err != nil {
		return fmt.Errorf("design: marshal %q: %w", d.Name, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO designs (name, description, node_count, edge_count, document, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			description = excluded.description,
			node_count = excluded.node_count,
			edge_count = excluded.edge_count,
			document = excluded.document,
			updated_at = excluded.updated_at`,
		d.Name, d.Description, len(d.Nodes), len(d.Edges), string(doc), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("design: save %q: %w", d.Name, err)
	}
	return nil
}

// Get loads the named design.
func (s *SQLiteStore) Get(ctx context.Context, name string) (*graph.Design, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT document FROM designs WHERE name = ?`, name).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return nil, fmt.Errorf("design: get %q: %w", name, err)
	}

	var d graph.Design
	if err := json.Unmarshal([]byte(doc), &d); err != nil {
		return nil, fmt.Errorf("design: decode %q: %w", name, err)
	}
	return &d, nil
}

// List returns all summaries ordered by name.
func (s *SQLiteStore) List(ctx context.Context) ([]Summary, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT name, description, node_count, edge_count, updated_at FROM designs ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("design: list: %w", err)
	}
	defer rows.Close()

	out := []Summary{}
	for rows.Next() {
		var sum Summary
		if err := rows.Scan(&sum.Name, &sum.Description, &sum.Nodes, &sum.Edges, &sum.UpdatedAt); err != nil {
			return nil, fmt.Errorf("design: scan summary: %w", err)
		}
		out = append(out, sum)
	}
	return out, rows.Err()
}

// Delete removes the named design.
func (s *SQLiteStore) Delete(ctx context.Context, name string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM designs WHERE name = ?`, name)
	if err != nil {
		return fmt.Errorf("design: delete %q: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("design: delete %q: %w", name, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
