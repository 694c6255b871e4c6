package mcp

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"shiftbot/internal/logging"
)

// HTTPTransport speaks JSON-RPC 2.0 against a single streamable HTTP
// endpoint.
type HTTPTransport struct {
	endpoint string
	client   *http.Client
	nextID   atomic.Int64

	mu         sync.RWMutex
	connected  bool
	serverName string
}

// NewHTTPTransport creates an HTTP transport for the given endpoint.
func NewHTTPTransport(endpoint string, timeout time.Duration) *HTTPTransport {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPTransport{
		endpoint: endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

// Connect performs the initialize handshake and sends the initialized
// notification.
func (t *HTTPTransport) Connect(ctx context.Context) error {
	resp, err := t.call(ctx, "initialize", initializeParams())
	if err != nil {
		return fmt.Errorf("failed to connect to MCP server at %s: %w", t.endpoint, err)
	}

	var info struct {
		ServerInfo struct {
			Name    string `json:"name"`
			Version string `json:"version"`
		} `json:"serverInfo"`
	}
	_ = json.Unmarshal(resp.Result, &info)

	t.mu.Lock()
	t.connected = true
	t.serverName = info.ServerInfo.Name
	t.mu.Unlock()

	t.notify(ctx, "notifications/initialized")

	logging.L("mcp").Debugw("connected", "endpoint", t.endpoint, "server", info.ServerInfo.Name)
	return nil
}

// Disconnect marks the transport as closed. HTTP holds no persistent
// connection state beyond the client's pool.
func (t *HTTPTransport) Disconnect() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = false
	return nil
}

// ListTools retrieves the server's tool declarations.
func (t *HTTPTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
	if !t.IsConnected() {
		return nil, fmt.Errorf("not connected to MCP server")
	}

	resp, err := t.call(ctx, "tools/list", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to list tools: %w", err)
	}

	var result struct {
		Tools []ToolSchema `json:"tools"`
	}
	if err := json.Unmarshal(resp.Result, &result); err != nil {
		return nil, fmt.Errorf("failed to parse tools response: %w", err)
	}
	return result.Tools, nil
}

// CallTool invokes a remote tool.
func (t *HTTPTransport) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
	if !t.IsConnected() {
		return nil, fmt.Errorf("not connected to MCP server")
	}

	resp, err := t.call(ctx, "tools/call", map[string]any{
		"name":      name,
		"arguments": args,
	})
	if err != nil {
		return nil, err
	}
	return parseCallResult(resp.Result), nil
}

// Ping checks that the server is responsive.
func (t *HTTPTransport) Ping(ctx context.Context) error {
	if !t.IsConnected() {
		return fmt.Errorf("not connected to MCP server")
	}
	_, err := t.call(ctx, "ping", nil)
	return err
}

// IsConnected reports the connection status.
func (t *HTTPTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.connected
}

// call posts one JSON-RPC request and decodes the response.
func (t *HTTPTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	req := rpcRequest{
		JSONRPC: "2.0",
		ID:      t.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	httpResp, err := t.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(httpResp.Body, 2048))
		return nil, fmt.Errorf("server returned status %d: %s", httpResp.StatusCode, string(msg))
	}

	var resp rpcResponse
	if err := json.NewDecoder(httpResp.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
	}
	return &resp, nil
}

// notify posts a fire-and-forget notification.
func (t *HTTPTransport) notify(ctx context.Context, method string) {
	body, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
	})
	if err != nil {
		return
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.endpoint, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := t.client.Do(req)
	if err != nil {
		logging.L("mcp").Debugw("notification failed", "method", method, "error", err)
		return
	}
	resp.Body.Close()
}

var _ Transport = (*HTTPTransport)(nil)
