package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/windlant/kobold-mcp-server/internal/mcpserver"
	"github.com/windlant/kobold-mcp-server/internal/protocol"
	"github.com/windlant/kobold-mcp-server/internal/tools"
)

// Server 处理 NDJSON 行协议请求（list_tools / call_tool）
type Server struct {
	client tools.ToolClient
}

// NewServer 创建一个新的行协议服务器实例
func NewServer(client tools.ToolClient) *Server {
	return &Server{
		client: client,
	}
}

// HandleRequest 处理一个请求，并返回原始的 JSON 响应字节
func (s *Server) HandleRequest(ctx context.Context, requestBytes []byte) ([]byte, error) {
	// 先解析 JSON，确定请求的方法类型
	var rawReq protocol.MCPRequest
	if err := json.Unmarshal(requestBytes, &rawReq); err != nil {
		return s.createErrorResponse(fmt.Sprintf("invalid JSON: %v", err))
	}

	switch rawReq.Method {
	case "":
		return s.createErrorResponse("missing or invalid method field")
	case protocol.MCPMethodListTools:
		return s.handleListTools()
	case protocol.MCPMethodCallTool:
		if rawReq.Name == "" {
			return s.createErrorResponse("missing or invalid name field for call_tool")
		}

		// 没有提供 arguments 时视为空对象
		args, err := tools.DecodeArguments(rawReq.Arguments)
		if err != nil {
			return s.createErrorResponse(err.Error())
		}

		return s.handleCallTool(ctx, rawReq.Name, args)
	default:
		return s.createErrorResponse(fmt.Sprintf("unknown method: %s", rawReq.Method))
	}
}

// handleListTools 返回当前服务器支持的所有工具列表
func (s *Server) handleListTools() ([]byte, error) {
	response := protocol.MCPListToolsResponse{
		Tools: s.client.List(),
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return s.createErrorResponse(fmt.Sprintf("failed to marshal list_tools response: %v", err))
	}

	return jsonBytes, nil
}

// handleCallTool 执行指定名称的工具；失败只影响本次调用
func (s *Server) handleCallTool(ctx context.Context, name string, args tools.ToolArguments) ([]byte, error) {
	result, err := s.client.Call(ctx, name, args)
	if err != nil {
		return s.createErrorResponse(err.Error())
	}

	response := protocol.MCPToolCallResponse{
		Result: mcpserver.FormatJSON(result),
	}

	jsonBytes, err := json.Marshal(response)
	if err != nil {
		return s.createErrorResponse(fmt.Sprintf("failed to marshal call_tool response: %v", err))
	}

	return jsonBytes, nil
}

// createErrorResponse 生成一个符合协议格式的错误响应
func (s *Server) createErrorResponse(message string) ([]byte, error) {
	errorResponse := protocol.MCPToolCallResponse{
		Error:  message,
		Result: "",
	}

	jsonBytes, err := json.Marshal(errorResponse)
	if err != nil {
		fallback := `{"error": "failed to create error response"}`
		return []byte(fallback), nil
	}

	return jsonBytes, nil
}
