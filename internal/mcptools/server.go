// Package mcptools exposes stored designs and graph runs as MCP tools.
package mcptools

import (
	"context"
	"net/http"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// version is set by the linker at build time.
var version = "dev"

// NewDesignMCPServer creates an MCP server with the design tools registered:
// list_designs, get_design, execution_order and run_design.
func NewDesignMCPServer(svc *DesignService) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "patterngraph",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "list_designs",
		Description: "List all saved pattern graph designs with their node and edge counts.",
	}, svc.ListDesigns)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "get_design",
		Description: "Return a saved design: its nodes, agents and edges, plus any validation errors or warnings.",
	}, svc.GetDesign)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "execution_order",
		Description: "Compute the order in which a design's nodes run. Only node-level connections constrain the order.",
	}, svc.ExecutionOrder)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "run_design",
		Description: "Run a saved design against the pattern execution service and return the outcome and each node's result text.",
	}, svc.RunDesign)

	return server
}

// RunStdio runs the MCP server on stdio transport, blocking until stdin is
// closed or the context is cancelled.
func RunStdio(ctx context.Context, server *mcp.Server) error {
	return server.Run(ctx, &mcp.StdioTransport{})
}

// RunHTTP serves the MCP tools over streamable HTTP on addr.
func RunHTTP(ctx context.Context, server *mcp.Server, addr string) error {
	handler := mcp.NewStreamableHTTPHandler(
		func(_ *http.Request) *mcp.Server { return server },
		nil,
	)

	httpServer := &http.Server{
		Addr:    addr,
		Handler: handler,
	}

	// Shutdown gracefully when context is cancelled.
	go func() {
		<-ctx.Done()
		httpServer.Shutdown(context.Background())
	}()

	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}
