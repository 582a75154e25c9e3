//go:build cgo

package design

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	kuzu "github.com/kuzudb/go-kuzu"

	"github.com/dusk-indust/patterngraph/internal/graph"
)

// KuzuStore keeps designs as a property graph: Design, Block and Agent node
// tables with CONTAINS, HAS_AGENT and CONNECTS relationships. Document order
// is kept in seq columns. It requires CGO because the go-kuzu driver wraps
// KuzuDB's C library.
type KuzuStore struct {
	mu   sync.Mutex
	db   *kuzu.Database
	conn *kuzu.Connection
}

// Compile-time check that KuzuStore satisfies Store.
var _ Store = (*KuzuStore)(nil)

// NewKuzuStore creates a KuzuStore backed by an in-memory KuzuDB instance.
func NewKuzuStore() (*KuzuStore, error) {
	return openKuzuStore(":memory:")
}

// NewKuzuFileStore creates a KuzuStore backed by a KuzuDB directory at dbPath.
// KuzuDB creates the leaf directory itself for new databases.
func NewKuzuFileStore(dbPath string) (*KuzuStore, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("kuzu: create parent directory: %w", err)
	}
	return openKuzuStore(dbPath)
}

func openKuzu(path string) (Store, error) {
	if path == "" {
		return NewKuzuStore()
	}
	return NewKuzuFileStore(path)
}

func openKuzuStore(path string) (*KuzuStore, error) {
	cfg := kuzu.DefaultSystemConfig()
	db, err := kuzu.OpenDatabase(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("kuzu: open database: %w", err)
	}
	conn, err := kuzu.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kuzu: open connection: %w", err)
	}
	s := &KuzuStore{db: db, conn: conn}
	if err := s.initSchema(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the KuzuDB connection and database.
func (s *KuzuStore) Close() error {
	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// ---------- Schema setup ----------

// ddlStatements defines the Cypher DDL executed by initSchema.
// Node tables must precede relationship tables. Block and Agent keys are
// "<design>/<id>" so two designs may reuse the same graph ids.
var ddlStatements = []string{
	`CREATE NODE TABLE IF NOT EXISTS Design(
		name STRING,
		description STRING,
		repos STRING,
		updated_at INT64,
		PRIMARY KEY(name)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Block(
		key STRING,
		id STRING,
		design STRING,
		seq INT64,
		name STRING,
		kind STRING,
		task STRING,
		rounds INT64,
		repository STRING,
		x DOUBLE,
		y DOUBLE,
		PRIMARY KEY(key)
	)`,
	`CREATE NODE TABLE IF NOT EXISTS Agent(
		key STRING,
		id STRING,
		design STRING,
		seq INT64,
		name STRING,
		role STRING,
		system_prompt STRING,
		PRIMARY KEY(key)
	)`,
	`CREATE REL TABLE IF NOT EXISTS CONTAINS(FROM Design TO Block)`,
	`CREATE REL TABLE IF NOT EXISTS HAS_AGENT(FROM Block TO Agent)`,
	`CREATE REL TABLE IF NOT EXISTS CONNECTS(
		FROM Block TO Block,
		id STRING,
		source_agent STRING,
		target_agent STRING,
		kind STRING,
		seq INT64
	)`,
}

func (s *KuzuStore) initSchema() error {
	for _, stmt := range ddlStatements {
		res, err := s.conn.Query(stmt)
		if err != nil {
			return fmt.Errorf("kuzu: init schema: %w", err)
		}
		res.Close()
	}
	return nil
}

// ---------- Store ----------

// Save replaces any existing design of the same name inside one transaction.
func (s *KuzuStore) Save(_ context.Context, d graph.Design) error {
	if err := validateName(d.Name); err != nil {
		return err
	}
	repos, err := json.Marshal(d.ReferencedRepos)
	if err != nil {
		return fmt.Errorf("kuzu: marshal repos: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.run("BEGIN TRANSACTION"); err != nil {
		return err
	}
	if err := s.writeDesign(d, string(repos)); err != nil {
		_ = s.run("ROLLBACK")
		return fmt.Errorf("kuzu: save %q: %w", d.Name, err)
	}
	return s.run("COMMIT")
}

func (s *KuzuStore) writeDesign(d graph.Design, repos string) error {
	if err := s.deleteDesign(d.Name); err != nil {
		return err
	}

	err := s.exec(
		"CREATE (:Design {name: $name, description: $description, repos: $repos, updated_at: $ts})",
		map[string]any{
			"name":        d.Name,
			"description": d.Description,
			"repos":       repos,
			"ts":          time.Now().UTC().UnixNano(),
		},
	)
	if err != nil {
		return err
	}

	for i, n := range d.Nodes {
		err := s.exec(
			`MATCH (d:Design {name: $design})
			 CREATE (d)-[:CONTAINS]->(:Block {
				key: $key, id: $id, design: $design, seq: $seq,
				name: $name, kind: $kind, task: $task, rounds: $rounds,
				repository: $repo, x: $x, y: $y
			 })`,
			map[string]any{
				"design": d.Name,
				"key":    scopedKey(d.Name, n.ID),
				"id":     n.ID,
				"seq":    int64(i),
				"name":   n.Name,
				"kind":   string(n.Kind),
				"task":   n.Config.Task,
				"rounds": int64(n.Config.Rounds),
				"repo":   n.Config.Repository,
				"x":      n.Position.X,
				"y":      n.Position.Y,
			},
		)
		if err != nil {
			return err
		}
		for j, a := range n.Agents {
			err := s.exec(
				`MATCH (b:Block {key: $block})
				 CREATE (b)-[:HAS_AGENT]->(:Agent {
					key: $key, id: $id, design: $design, seq: $seq,
					name: $name, role: $role, system_prompt: $prompt
				 })`,
				map[string]any{
					"block":  scopedKey(d.Name, n.ID),
					"key":    scopedKey(d.Name, a.ID),
					"id":     a.ID,
					"design": d.Name,
					"seq":    int64(j),
					"name":   a.Name,
					"role":   string(a.Role),
					"prompt": a.SystemPrompt,
				},
			)
			if err != nil {
				return err
			}
		}
	}

	for i, e := range d.Edges {
		err := s.exec(
			`MATCH (a:Block {key: $src}), (b:Block {key: $dst})
			 CREATE (a)-[:CONNECTS {id: $id, source_agent: $sa, target_agent: $ta, kind: $kind, seq: $seq}]->(b)`,
			map[string]any{
				"src":  scopedKey(d.Name, e.Source),
				"dst":  scopedKey(d.Name, e.Target),
				"id":   e.ID,
				"sa":   e.SourceAgent,
				"ta":   e.TargetAgent,
				"kind": string(e.Kind),
				"seq":  int64(i),
			},
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// deleteDesign removes a design and everything it contains.
func (s *KuzuStore) deleteDesign(name string) error {
	params := map[string]any{"design": name}
	stmts := []string{
		"MATCH (a:Agent) WHERE a.design = $design DETACH DELETE a",
		"MATCH (b:Block) WHERE b.design = $design DETACH DELETE b",
		"MATCH (d:Design) WHERE d.name = $design DETACH DELETE d",
	}
	for _, stmt := range stmts {
		if err := s.exec(stmt, params); err != nil {
			return err
		}
	}
	return nil
}

// Get reassembles a design from its tables in document order.
func (s *KuzuStore) Get(_ context.Context, name string) (*graph.Design, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	params := map[string]any{"design": name}
	rows, err := s.query(
		"MATCH (d:Design {name: $design}) RETURN d.name, d.description, d.repos",
		params,
	)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrNotFound, name)
	}

	d := &graph.Design{
		Name:        toString(rows[0][0]),
		Description: toString(rows[0][1]),
		Nodes:       []graph.Node{},
		Edges:       []graph.Edge{},
	}
	if err := json.Unmarshal([]byte(toString(rows[0][2])), &d.ReferencedRepos); err != nil {
		return nil, fmt.Errorf("kuzu: decode repos: %w", err)
	}

	blocks, err := s.query(
		`MATCH (b:Block) WHERE b.design = $design
		 RETURN b.id, b.name, b.kind, b.task, b.rounds, b.repository, b.x, b.y
		 ORDER BY b.seq`,
		params,
	)
	if err != nil {
		return nil, err
	}
	index := make(map[string]int, len(blocks))
	for _, r := range blocks {
		index[toString(r[0])] = len(d.Nodes)
		d.Nodes = append(d.Nodes, graph.Node{
			ID:   toString(r[0]),
			Name: toString(r[1]),
			Kind: graph.PatternKind(toString(r[2])),
			Config: graph.NodeConfig{
				Task:       toString(r[3]),
				Rounds:     toInt(r[4]),
				Repository: toString(r[5]),
			},
			Agents:   []graph.Agent{},
			Position: graph.Position{X: toFloat64(r[6]), Y: toFloat64(r[7])},
		})
	}

	agents, err := s.query(
		`MATCH (b:Block)-[:HAS_AGENT]->(a:Agent) WHERE b.design = $design
		 RETURN b.id, a.id, a.name, a.role, a.system_prompt
		 ORDER BY b.seq, a.seq`,
		params,
	)
	if err != nil {
		return nil, err
	}
	for _, r := range agents {
		i, ok := index[toString(r[0])]
		if !ok {
			continue
		}
		d.Nodes[i].Agents = append(d.Nodes[i].Agents, graph.Agent{
			ID:           toString(r[1]),
			Name:         toString(r[2]),
			Role:         graph.Role(toString(r[3])),
			SystemPrompt: toString(r[4]),
		})
	}

	edges, err := s.query(
		`MATCH (a:Block)-[c:CONNECTS]->(b:Block) WHERE a.design = $design
		 RETURN c.id, a.id, b.id, c.source_agent, c.target_agent, c.kind
		 ORDER BY c.seq`,
		params,
	)
	if err != nil {
		return nil, err
	}
	for _, r := range edges {
		d.Edges = append(d.Edges, graph.Edge{
			ID:          toString(r[0]),
			Source:      toString(r[1]),
			Target:      toString(r[2]),
			SourceAgent: toString(r[3]),
			TargetAgent: toString(r[4]),
			Kind:        graph.EdgeKind(toString(r[5])),
		})
	}
	return d, nil
}

// List returns all summaries ordered by name.
func (s *KuzuStore) List(_ context.Context) ([]Summary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.query(
		"MATCH (d:Design) RETURN d.name, d.description, d.updated_at ORDER BY d.name",
		nil,
	)
	if err != nil {
		return nil, err
	}

	out := make([]Summary, 0, len(rows))
	for _, r := range rows {
		sum := Summary{
			Name:        toString(r[0]),
			Description: toString(r[1]),
			UpdatedAt:   time.Unix(0, toInt64(r[2])).UTC(),
		}
		params := map[string]any{"design": sum.Name}
		if sum.Nodes, err = s.count("MATCH (b:Block) WHERE b.design = $design RETURN count(b)", params); err != nil {
			return nil, err
		}
		if sum.Edges, err = s.count("MATCH (a:Block)-[c:CONNECTS]->(:Block) WHERE a.design = $design RETURN count(c)", params); err != nil {
			return nil, err
		}
		out = append(out, sum)
	}
	return out, nil
}

// count runs a single-value count query.
func (s *KuzuStore) count(cypher string, params map[string]any) (int, error) {
	rows, err := s.query(cypher, params)
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 || len(rows[0]) == 0 {
		return 0, nil
	}
	return toInt(rows[0][0]), nil
}

// Delete removes the named design.
func (s *KuzuStore) Delete(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rows, err := s.query("MATCH (d:Design {name: $design}) RETURN d.name", map[string]any{"design": name})
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return s.deleteDesign(name)
}

// ---------- Internal helpers ----------

func scopedKey(design, id string) string {
	return design + "/" + id
}

// run executes a statement without parameters or result rows.
func (s *KuzuStore) run(cypher string) error {
	res, err := s.conn.Query(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: %s: %w", cypher, err)
	}
	res.Close()
	return nil
}

// exec runs a parameterized Cypher statement that produces no result rows.
func (s *KuzuStore) exec(cypher string, params map[string]any) error {
	stmt, err := s.conn.Prepare(cypher)
	if err != nil {
		return fmt.Errorf("kuzu: prepare: %w", err)
	}
	defer stmt.Close()

	res, err := s.conn.Execute(stmt, params)
	if err != nil {
		return fmt.Errorf("kuzu: execute: %w", err)
	}
	res.Close()
	return nil
}

// query runs a Cypher statement and collects all result rows. Each row is a
// []any slice with values in column order.
func (s *KuzuStore) query(cypher string, params map[string]any) ([][]any, error) {
	var res *kuzu.QueryResult
	var err error

	if len(params) == 0 {
		res, err = s.conn.Query(cypher)
	} else {
		var stmt *kuzu.PreparedStatement
		stmt, err = s.conn.Prepare(cypher)
		if err != nil {
			return nil, fmt.Errorf("kuzu: prepare: %w", err)
		}
		defer stmt.Close()
		res, err = s.conn.Execute(stmt, params)
	}
	if err != nil {
		return nil, fmt.Errorf("kuzu: query: %w", err)
	}
	defer res.Close()

	var rows [][]any
	for res.HasNext() {
		tuple, err := res.Next()
		if err != nil {
			return nil, fmt.Errorf("kuzu: next: %w", err)
		}
		vals, err := tuple.GetAsSlice()
		if err != nil {
			return nil, fmt.Errorf("kuzu: row values: %w", err)
		}
		rows = append(rows, vals)
	}
	return rows, nil
}

// ---------- Type coercion helpers ----------
// KuzuDB returns typed Go values (int64, float64, bool, string).

func toString(v any) string {
	switch s := v.(type) {
	case string:
		return s
	case nil:
		return ""
	}
	return fmt.Sprintf("%v", v)
}

func toInt(v any) int {
	return int(toInt64(v))
}

func toInt64(v any) int64 {
	switch n := v.(type) {
	case int64:
		return n
	case int:
		return int64(n)
	case int32:
		return int64(n)
	case uint64:
		return int64(n)
	case float64:
		return int64(n)
	default:
		return 0
	}
}

func toFloat64(v any) float64 {
	switch n := v.(type) {
	case float64:
		return n
	case float32:
		return float64(n)
	case int64:
		return float64(n)
	default:
		return 0
	}
}
