package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
)

// version is set by goreleaser at build time.
var version = "dev"

// errUsage is returned after usage text has been printed.
var errUsage = errors.New("invalid usage")

type command struct {
	name    string
	summary string
	run     func(ctx context.Context, stdout io.Writer, args []string) error
}

var commands []command

func init() {
	commands = []command{
		{"run", "run a design against the pattern service", runRun},
		{"order", "print the execution order of a design", runOrder},
		{"validate", "report role and structure problems in a design", runValidate},
		{"diagram", "print a design as a Mermaid flowchart", runDiagram},
		{"export", "print a design, or a run report, as JSON", runExport},
		{"designs", "list designs in the store", runDesigns},
		{"save", "load a design file into the store", runSave},
		{"serve", "serve the HTTP API and websocket progress stream", runServe},
		{"serve-mcp", "run as an MCP server", runServeMCP},
		{"echo-service", "run the local echo pattern service", runEchoService},
		{"init", "write a starter patterngraph.yml and MCP entry", runInit},
		{"version", "print version and exit", runVersion},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout); err != nil {
		if !errors.Is(err, errUsage) && !errors.Is(err, flag.ErrHelp) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		usage(os.Stderr)
		return errUsage
	}

	name := args[0]
	switch name {
	case "-h", "-help", "--help", "help":
		usage(stdout)
		return nil
	case "-version", "--version":
		name = "version"
	}

	for _, cmd := range commands {
		if cmd.name == name {
			return cmd.run(ctx, stdout, args[1:])
		}
	}
	usage(os.Stderr)
	return fmt.Errorf("unknown command %q", name)
}

func usage(w io.Writer) {
	fmt.Fprintln(w, "usage: patterngraph <command> [flags] [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "commands:")
	for _, cmd := range commands {
		fmt.Fprintf(w, "  %-13s %s\n", cmd.name, cmd.summary)
	}
}

func runVersion(_ context.Context, stdout io.Writer, _ []string) error {
	fmt.Fprintln(stdout, version)
	return nil
}
