package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/dusk-indust/patterngraph/internal/export"
	"github.com/dusk-indust/patterngraph/internal/graph"
)

func runDiagram(ctx context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("diagram", &cf)
	ref, err := designArg(fs, args)
	if err != nil {
		return err
	}
	e, err := setup(&cf)
	if err != nil {
		return err
	}
	d, err := e.loadDesign(ctx, ref)
	if err != nil {
		return err
	}

	fmt.Fprint(stdout, export.GenerateMermaid(d))
	return nil
}

// runExport prints the normalized design document. Loading it through the
// graph fills in missing ids and edge kinds.
func runExport(ctx context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("export", &cf)
	output := fs.String("o", "", "write to this file instead of stdout")
	ref, err := designArg(fs, args)
	if err != nil {
		return err
	}
	e, err := setup(&cf)
	if err != nil {
		return err
	}
	d, err := e.loadDesign(ctx, ref)
	if err != nil {
		return err
	}
	g, err := graph.FromDesign(d)
	if err != nil {
		return err
	}

	out, err := json.MarshalIndent(g.Design(d.Name, d.Description), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal JSON: %w", err)
	}
	out = append(out, '\n')
	if *output != "" {
		return os.WriteFile(*output, out, 0o644)
	}
	_, err = stdout.Write(out)
	return err
}

func runDesigns(ctx context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("designs", &cf)
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(&cf)
	if err != nil {
		return err
	}
	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	summaries, err := store.List(ctx)
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Fprintln(stdout, "No designs found.")
		fmt.Fprintln(stdout, "Run 'patterngraph save <file>' to store one.")
		return nil
	}
	for _, s := range summaries {
		fmt.Fprintf(stdout, "%-24s %3d nodes %3d edges  %s\n", s.Name, s.Nodes, s.Edges, s.Description)
	}
	return nil
}

func runSave(ctx context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("save", &cf)
	name := fs.String("name", "", "store under this name instead of the file's")
	path, err := designArg(fs, args)
	if err != nil {
		return err
	}
	e, err := setup(&cf)
	if err != nil {
		return err
	}

	d, err := readDesignFile(path)
	if err != nil {
		return err
	}
	if *name != "" {
		d.Name = *name
	}
	g, err := graph.FromDesign(d)
	if err != nil {
		return err
	}
	for _, issue := range g.Validate() {
		e.logger.Warn("design issue", "design", d.Name, "issue", issue.String())
	}

	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.Save(ctx, g.Design(d.Name, d.Description)); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "saved %s (%d nodes, %d edges) to %s store\n", d.Name, g.Len(), len(g.Edges()), e.cfg.Store.Driver)
	return nil
}
