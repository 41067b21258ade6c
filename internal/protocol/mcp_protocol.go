package protocol

import (
	"encoding/json"

	"github.com/windlant/kobold-mcp-server/internal/tools"
)

// Line protocol method constants
const (
	MCPMethodListTools = "list_tools"
	MCPMethodCallTool  = "call_tool"
)

// MCPRequest is one request line. Name and Arguments are only read for call_tool;
// Arguments stays raw so numbers keep their precision until tools.DecodeArguments.
type MCPRequest struct {
	Method    string          `json:"method"`
	Name      string          `json:"name,omitempty"`
	Arguments json.RawMessage `json:"arguments,omitempty"`
}

// Responses

type MCPListToolsResponse struct {
	Tools []tools.ToolDefinition `json:"tools"`
}

type MCPToolCallResponse struct {
	Result string `json:"result"`
	Error  string `json:"error,omitempty"`
}
