package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dusk-indust/patterngraph/internal/starter"
)

// mcpConfig represents the structure of a .mcp.json file.
type mcpConfig struct {
	MCPServers map[string]json.RawMessage `json:"mcpServers"`
}

// patterngraphMCPEntry is the MCP server configuration for the patterngraph binary.
var patterngraphMCPEntry = json.RawMessage(`{
  "type": "stdio",
  "command": "patterngraph",
  "args": ["serve-mcp"]
}`)

// runInit installs the starter config and example design into the project
// directory and registers the MCP server in its .mcp.json.
func runInit(_ context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	flags := newFlagSet("init", &cf)
	force := flags.Bool("force", false, "overwrite existing files and entries")
	if err := flags.Parse(args); err != nil {
		return err
	}

	abs, err := filepath.Abs(cf.ProjectRoot)
	if err != nil {
		return fmt.Errorf("resolving project root: %w", err)
	}

	// --- Copy embedded starter files ---

	err = fs.WalkDir(starter.FS, starter.Root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel, err := filepath.Rel(starter.Root, path)
		if err != nil {
			return err
		}
		dest := filepath.Join(abs, rel)

		if d.IsDir() {
			return os.MkdirAll(dest, 0o755)
		}

		if !*force {
			if _, err := os.Stat(dest); err == nil {
				fmt.Fprintf(stdout, "  skipped %s (exists, use -force to overwrite)\n", dotRelative(abs, dest))
				return nil
			}
		}

		data, err := starter.FS.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading embedded %s: %w", path, err)
		}
		if err := os.WriteFile(dest, data, 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", dest, err)
		}

		fmt.Fprintf(stdout, "  created %s\n", dotRelative(abs, dest))
		return nil
	})
	if err != nil {
		return fmt.Errorf("copying starter files: %w", err)
	}

	// --- Create/merge .mcp.json ---

	if err := mergeMCPConfig(stdout, filepath.Join(abs, ".mcp.json"), *force); err != nil {
		return err
	}

	fmt.Fprintln(stdout, "\nSetup complete. Try 'patterngraph run designs/example.json'.")
	return nil
}

// mergeMCPConfig creates or merges the patterngraph entry into .mcp.json.
func mergeMCPConfig(stdout io.Writer, mcpPath string, force bool) error {
	var cfg mcpConfig

	data, err := os.ReadFile(mcpPath)
	if err == nil {
		if err := json.Unmarshal(data, &cfg); err != nil {
			return fmt.Errorf("parsing %s: %w", mcpPath, err)
		}
	}

	if cfg.MCPServers == nil {
		cfg.MCPServers = make(map[string]json.RawMessage)
	}

	if _, exists := cfg.MCPServers["patterngraph"]; exists && !force {
		fmt.Fprintln(stdout, "  skipped .mcp.json patterngraph entry (exists, use -force to overwrite)")
		return nil
	}

	cfg.MCPServers["patterngraph"] = patterngraphMCPEntry

	out, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling .mcp.json: %w", err)
	}

	if err := os.WriteFile(mcpPath, append(out, '\n'), 0o644); err != nil {
		return fmt.Errorf("writing %s: %w", mcpPath, err)
	}

	action := "created"
	if data != nil {
		action = "updated"
	}
	fmt.Fprintf(stdout, "  %s .mcp.json with patterngraph MCP server\n", action)
	return nil
}

// dotRelative returns a display path relative to the project root, prefixed
// with "./".
func dotRelative(base, path string) string {
	rel, err := filepath.Rel(base, path)
	if err != nil {
		return path
	}
	return "./" + rel
}
