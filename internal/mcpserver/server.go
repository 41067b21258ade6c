// Package mcpserver exposes the tool catalog over the Model Context Protocol.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/tidwall/pretty"
	"github.com/windlant/kobold-mcp-server/internal/tools"
)

const ServerName = "kobold-mcp-server"

// New builds an MCP server with one tool per definition the client exposes.
func New(client tools.ToolClient, version string) (*mcp.Server, error) {
	server := mcp.NewServer(&mcp.Implementation{Name: ServerName, Version: version}, nil)
	for _, def := range client.List() {
		schema, err := json.Marshal(def.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("marshal input schema for %s: %w", def.Name, err)
		}
		server.AddTool(&mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: json.RawMessage(schema),
		}, handler(client, def.Name))
	}
	return server, nil
}

// handler reports every failure inside the result so one bad call never ends the session.
func handler(client tools.ToolClient, name string) mcp.ToolHandler {
	return func(ctx context.Context, req *mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, err := tools.DecodeArguments(req.Params.Arguments)
		if err != nil {
			return errorResult(err), nil
		}
		resp, err := client.Call(ctx, name, args)
		if err != nil {
			return errorResult(err), nil
		}
		return &mcp.CallToolResult{
			Content: []mcp.Content{&mcp.TextContent{Text: FormatJSON(resp)}},
		}, nil
	}
}

func errorResult(err error) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
		IsError: true,
	}
}

// FormatJSON pretty prints a remote response for display.
func FormatJSON(raw json.RawMessage) string {
	return string(pretty.PrettyOptions(raw, &pretty.Options{Width: 80, Indent: "  "}))
}

// HTTPHandler serves the MCP streamable HTTP transport at /mcp plus a health probe.
func HTTPHandler(server *mcp.Server) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	streamable := mcp.NewStreamableHTTPHandler(func(*http.Request) *mcp.Server { return server }, nil)
	r.Handle("/mcp", streamable)
	r.Handle("/mcp/*", streamable)
	return r
}
