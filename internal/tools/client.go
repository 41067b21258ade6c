package tools

import (
	"context"
	"encoding/json"
)

// ToolClient is what both front ends (MCP and the NDJSON line protocol) call into.
type ToolClient interface {
	// Call runs the named tool and returns the raw JSON response of the remote server.
	Call(ctx context.Context, name string, args ToolArguments) (json.RawMessage, error)

	// List returns the definitions of every exposed tool.
	List() []ToolDefinition
}
