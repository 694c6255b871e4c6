package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os/exec"
	"sync"
	"time"

	"shiftbot/internal/logging"
)

// StdioTransport speaks JSON-RPC 2.0 with a subprocess over its
// stdin/stdout, one message per line.
type StdioTransport struct {
	command string
	args    []string

	mu        sync.Mutex
	cmd       *exec.Cmd
	stdin     io.WriteCloser
	connected bool
	pending   map[int64]chan *rpcResponse
	nextID    int64
	done      chan struct{}

	wg sync.WaitGroup
}

// NewStdioTransport creates a transport that will spawn the given
// command on Connect.
func NewStdioTransport(command string, args []string) *StdioTransport {
	return &StdioTransport{
		command: command,
		args:    args,
		pending: make(map[int64]chan *rpcResponse),
	}
}

// Connect starts the subprocess, begins reading its output, and runs
// the initialize handshake.
func (t *StdioTransport) Connect(ctx context.Context) error {
	t.mu.Lock()
	if t.connected {
		t.mu.Unlock()
		return nil
	}
	if t.command == "" {
		t.mu.Unlock()
		return fmt.Errorf("empty command for stdio transport")
	}

	cmd := exec.Command(t.command, t.args...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to get stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		t.mu.Unlock()
		return fmt.Errorf("failed to start %s: %w", t.command, err)
	}

	t.cmd = cmd
	t.stdin = stdin
	t.connected = true
	t.done = make(chan struct{})
	t.wg.Add(2)
	go t.readStdout(stdout)
	go t.readStderr(stderr)
	t.mu.Unlock()

	// The handshake must run without the lock held: the reader
	// goroutine needs it to dispatch the response.
	if _, err := t.call(ctx, "initialize", initializeParams()); err != nil {
		t.Disconnect()
		return fmt.Errorf("initialize failed for %s: %w", t.command, err)
	}
	t.notifyInitialized()

	logging.L("mcp").Debugw("stdio server started", "command", t.command)
	return nil
}

// Disconnect kills the subprocess and drains the reader goroutines.
func (t *StdioTransport) Disconnect() error {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil
	}
	t.connected = false
	if t.cmd != nil && t.cmd.Process != nil {
		_ = t.cmd.Process.Kill()
	}
	if t.stdin != nil {
		_ = t.stdin.Close()
	}
	close(t.done)
	for id, ch := range t.pending {
		close(ch)
		delete(t.pending, id)
	}
	t.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		t.wg.Wait()
		if t.cmd != nil {
			_ = t.cmd.Wait()
		}
		close(finished)
	}()
	select {
	case <-finished:
	case <-time.After(time.Second):
		logging.L("mcp").Warnw("timeout draining stdio transport", "command", t.command)
	}
	return nil
}

// readStdout dispatches JSON-RPC responses to their waiters.
func (t *StdioTransport) readStdout(stdout io.Reader) {
	defer t.wg.Done()

	scanner := bufio.NewScanner(stdout)
	// Tool outputs can be large; the default 64KiB line cap is too small.
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var resp rpcResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			logging.L("mcp").Debugw("skipping unparseable stdout line", "error", err)
			continue
		}
		if resp.ID == 0 {
			// Server-initiated notification; nothing waits on it.
			continue
		}

		t.mu.Lock()
		ch, ok := t.pending[resp.ID]
		if ok {
			delete(t.pending, resp.ID)
		}
		t.mu.Unlock()
		if ok {
			ch <- &resp
		}
	}
}

// readStderr forwards the server's diagnostics to the log.
func (t *StdioTransport) readStderr(stderr io.Reader) {
	defer t.wg.Done()
	scanner := bufio.NewScanner(stderr)
	for scanner.Scan() {
		logging.L("mcp").Debugw("server stderr", "command", t.command, "line", scanner.Text())
	}
}

// call writes one request line and waits for its response.
func (t *StdioTransport) call(ctx context.Context, method string, params any) (*rpcResponse, error) {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return nil, fmt.Errorf("not connected to MCP server")
	}

	t.nextID++
	id := t.nextID
	ch := make(chan *rpcResponse, 1)
	t.pending[id] = ch

	data, err := json.Marshal(rpcRequest{JSONRPC: "2.0", ID: id, Method: method, Params: params})
	if err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}
	if _, err := t.stdin.Write(append(data, '\n')); err != nil {
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, fmt.Errorf("failed to write to stdin: %w", err)
	}
	done := t.done
	t.mu.Unlock()

	select {
	case resp, ok := <-ch:
		if !ok || resp == nil {
			return nil, fmt.Errorf("connection closed")
		}
		if resp.Error != nil {
			return nil, fmt.Errorf("MCP error %d: %s", resp.Error.Code, resp.Error.Message)
		}
		return resp, nil
	case <-done:
		return nil, fmt.Errorf("connection closed")
	case <-ctx.Done():
		t.mu.Lock()
		delete(t.pending, id)
		t.mu.Unlock()
		return nil, ctx.Err()
	}
}

// notifyInitialized completes the handshake; no response expected.
func (t *StdioTransport) notifyInitialized() {
	data, err := json.Marshal(map[string]any{
		"jsonrpc": "2.0",
		"method":  "notifications/initialized",
	})
	if err != nil {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.stdin != nil {
		_, _ = t.stdin.Write(append(data, '\n'))
	}
}

// ListTools retrieves the server's tool declarations.
func (t *StdioTransport) ListTools(ctx context.Context) ([]ToolSchema, error) {
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
func (t *StdioTransport) CallTool(ctx context.Context, name string, args map[string]any) (*CallResult, error) {
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
func (t *StdioTransport) Ping(ctx context.Context) error {
	_, err := t.call(ctx, "ping", nil)
	return err
}

// IsConnected reports the connection status.
func (t *StdioTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

var _ Transport = (*StdioTransport)(nil)
