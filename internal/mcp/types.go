// Package mcp bridges remote Model Context Protocol servers into the
// local tool registry. Each configured server is connected at startup,
// its tools discovered and wrapped as registry entries whose handlers
// proxy calls over the server's transport.
package mcp

import (
	"context"
	"encoding/json"
	"strings"
)

// protocolVersion is the MCP revision sent in the initialize handshake.
const protocolVersion = "2024-11-05"

// ToolSchema is a raw tool declaration from an MCP server.
type ToolSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// ContentBlock is one element of a tools/call result.
type ContentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// CallResult is the structured outcome of one remote tool invocation.
// IsError marks a tool-level failure; transport failures surface as Go
// errors instead.
type CallResult struct {
	Content []ContentBlock `json:"content"`
	IsError bool           `json:"isError"`
}

// Text flattens the result's text blocks into one string.
func (r *CallResult) Text() string {
	var parts []string
	for _, block := range r.Content {
		if block.Type == "text" && block.Text != "" {
			parts = append(parts, block.Text)
		}
	}
	return strings.Join(parts, "\n")
}

// parseCallResult decodes a tools/call result, falling back to the raw
// JSON for servers that return bare payloads.
func parseCallResult(raw json.RawMessage) *CallResult {
	var res CallResult
	if err := json.Unmarshal(raw, &res); err == nil && (len(res.Content) > 0 || res.IsError) {
		return &res
	}
	return &CallResult{Content: []ContentBlock{{Type: "text", Text: string(raw)}}}
}

// Transport is the protocol-level connection to one MCP server.
type Transport interface {
	// Connect performs the initialize handshake.
	Connect(ctx context.Context) error

	// Disconnect releases the connection.
	Disconnect() error

	// ListTools retrieves the server's tool declarations.
	ListTools(ctx context.Context) ([]ToolSchema, error)

	// CallTool invokes a remote tool. The error covers transport and
	// protocol failures; tool-level failures come back in the result.
	CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error)

	// Ping checks that the server is responsive.
	Ping(ctx context.Context) error

	// IsConnected reports the connection status.
	IsConnected() bool
}

// rpcRequest is a JSON-RPC 2.0 request. Requests without an ID are
// notifications.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// rpcResponse is a JSON-RPC 2.0 response.
type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// initializeParams is the client half of the MCP handshake.
func initializeParams() map[string]any {
	return map[string]any{
		"protocolVersion": protocolVersion,
		"capabilities":    map[string]any{},
		"clientInfo": map[string]string{
			"name":    "shiftbot",
			"version": "1.0.0",
		},
	}
}
