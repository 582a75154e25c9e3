package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dusk-indust/patterngraph/internal/export"
	"github.com/dusk-indust/patterngraph/internal/graph"
	"github.com/dusk-indust/patterngraph/internal/orchestrator"
)

func runRun(ctx context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("run", &cf)
	report := fs.String("report", "", "write a JSON run report to this file")
	quiet := fs.Bool("quiet", false, "print results only, without progress lines")
	apply := fs.Bool("apply-suggestions", false, "write reflection prompt suggestions back to the design")

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

	engine := orchestrator.NewEngine(g, e.client(), e.engineOptions()...)
	events, stop := engine.Subscribe()
	printed := make(chan struct{})
	go func() {
		defer close(printed)
		for ev := range events {
			if *quiet {
				continue
			}
			if line := orchestrator.FormatProgress(ev); line != "" {
				fmt.Fprintln(stdout, line)
			}
		}
	}()

	outcome := engine.Run(ctx)
	stop()
	<-printed

	snap := engine.Snapshot()
	for _, ns := range snap.Nodes {
		r, ok := engine.Result(ns.ID)
		if !ok {
			continue
		}
		fmt.Fprintf(stdout, "\n## %s\n\n%s\n", ns.Name, r.Text())
	}

	if *report != "" {
		rep := export.BuildReport(g.Design(d.Name, d.Description), snap, engine.Results(), time.Now())
		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal report: %w", err)
		}
		if err := os.WriteFile(*report, append(out, '\n'), 0o644); err != nil {
			return fmt.Errorf("writing %s: %w", *report, err)
		}
	}

	if outcome.Status == orchestrator.OutcomeFailed {
		return fmt.Errorf("run %s", outcome)
	}
	if *apply && outcome.Status == orchestrator.OutcomeSucceeded {
		return applySuggestions(ctx, stdout, e, engine, ref, d)
	}
	return nil
}

// applySuggestions writes reflection suggestions into the graph and saves it
// where the design came from: the file at ref, or the store.
func applySuggestions(ctx context.Context, stdout io.Writer, e *env, engine *orchestrator.Engine, ref string, d graph.Design) error {
	applied, err := engine.ApplySuggestions()
	if err != nil {
		return err
	}
	if len(applied) == 0 {
		fmt.Fprintln(stdout, "\nno prompt suggestions to apply")
		return nil
	}
	for _, s := range applied {
		fmt.Fprintf(stdout, "\napplied suggestion to %s/%s: %s", s.NodeID, s.AgentID, s.Reason)
	}
	fmt.Fprintln(stdout)

	updated := engine.Graph().Design(d.Name, d.Description)
	if _, err := os.Stat(ref); err == nil {
		out, err := json.MarshalIndent(updated, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal design: %w", err)
		}
		return os.WriteFile(ref, append(out, '\n'), 0o644)
	}

	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()
	return store.Save(ctx, updated)
}

func runOrder(ctx context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("order", &cf)
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

	snap := g.Snapshot()
	order, err := orchestrator.ExecutionOrder(snap)
	for i, id := range order {
		n, _ := snap.Node(id)
		fmt.Fprintf(stdout, "%d. %s (%s) %s\n", i+1, n.Name, n.Kind, n.ID)
	}
	if errors.Is(err, orchestrator.ErrGraphCycle) {
		var ce *orchestrator.CycleError
		if errors.As(err, &ce) {
			fmt.Fprintf(stdout, "not ordered: %v\n", ce.Unordered)
		}
	}
	return err
}

func runValidate(ctx context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("validate", &cf)
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

	issues := g.Validate()
	if len(issues) == 0 {
		fmt.Fprintln(stdout, "ok")
		return nil
	}
	for _, issue := range issues {
		fmt.Fprintln(stdout, issue)
	}
	if graph.HasErrors(issues) {
		return fmt.Errorf("design %q has errors", d.Name)
	}
	return nil
}
