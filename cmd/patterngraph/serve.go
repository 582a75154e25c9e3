package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/dusk-indust/patterngraph/internal/mcptools"
	"github.com/dusk-indust/patterngraph/internal/patternsvc"
	"github.com/dusk-indust/patterngraph/internal/web"
)

func runServe(ctx context.Context, _ io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("serve", &cf)
	addr := fs.String("addr", "", "listen address (default from config, :8080)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(&cf)
	if err != nil {
		return err
	}
	if *addr != "" {
		e.cfg.Web.Addr = *addr
	}

	store, err := e.openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	srv := web.NewServer(store, e.client(), e.logger, e.engineOptions()...)
	return srv.Start(ctx, e.cfg.Web.Addr)
}

func runServeMCP(ctx context.Context, _ io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("serve-mcp", &cf)
	httpAddr := fs.String("http", "", "serve streamable HTTP on this address instead of stdio")
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

	svc := mcptools.NewDesignService(store, e.client(), e.logger, e.engineOptions()...)
	server := mcptools.NewDesignMCPServer(svc)
	if *httpAddr != "" {
		e.logger.Info("MCP server listening", "addr", *httpAddr)
		return mcptools.RunHTTP(ctx, server, *httpAddr)
	}
	return mcptools.RunStdio(ctx, server)
}

func runEchoService(ctx context.Context, stdout io.Writer, args []string) error {
	var cf commonFlags
	fs := newFlagSet("echo-service", &cf)
	addr := fs.String("addr", "127.0.0.1:8000", "listen address")
	delay := fs.Duration("delay", 0, "pause before every streamed chunk")
	if err := fs.Parse(args); err != nil {
		return err
	}
	e, err := setup(&cf)
	if err != nil {
		return err
	}

	srv := patternsvc.NewServer(&patternsvc.EchoHandler{Delay: *delay}, e.logger)
	if err := srv.Start(ctx, *addr); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "echo pattern service listening on http://%s\n", srv.Addr())

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Stop(shutdownCtx)
}
