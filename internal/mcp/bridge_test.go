package mcp

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"shiftbot/internal/config"
	"shiftbot/internal/fault"
	"shiftbot/internal/tools"
)

func bridgeFor(t *testing.T, fake *fakeServer) *Bridge {
	t.Helper()
	srv := httptest.NewServer(fake.handler(t))
	t.Cleanup(srv.Close)

	bridge := NewBridge([]config.MCPServerConfig{
		{Name: "blueshift", URL: srv.URL, Timeout: "5s"},
	})
	t.Cleanup(bridge.Close)
	return bridge
}

func TestBridgeDiscoverRegistersPrefixedTools(t *testing.T) {
	fake := &fakeServer{
		tools: []ToolSchema{
			{Name: "check_agent_registration", Description: "Checks registration", InputSchema: json.RawMessage(`{"type":"object","properties":{}}`)},
			{Name: "get_hint", Description: "Returns a hint", InputSchema: json.RawMessage(`{"type":"object","properties":{"slug":{"type":"string"}},"required":["slug"]}`)},
		},
	}
	bridge := bridgeFor(t, fake)

	reg := tools.NewRegistry()
	count, err := bridge.Discover(context.Background(), reg)
	if err != nil {
		t.Fatalf("Discover failed: %v", err)
	}
	if count != 2 {
		t.Fatalf("expected 2 registered tools, got %d", count)
	}

	tool := reg.Get("mcp_blueshift_get_hint")
	if tool == nil {
		t.Fatal("bridged tool not registered under prefixed name")
	}
	if tool.Category != tools.CategoryRemote {
		t.Errorf("category = %q, want remote", tool.Category)
	}

	schema := tool.InputSchema()
	if schema["type"] != "object" {
		t.Errorf("remote schema should pass through, got %v", schema)
	}
	props, ok := schema["properties"].(map[string]any)
	if !ok {
		t.Fatalf("schema properties missing: %v", schema)
	}
	if _, ok := props["slug"]; !ok {
		t.Error("remote schema lost the slug property")
	}
}

func TestBridgeExecuteProxiesCall(t *testing.T) {
	fake := &fakeServer{
		tools: []ToolSchema{{Name: "get_hint", Description: "hint"}},
		call: func(name string, args map[string]any) (any, *rpcError) {
			if name != "get_hint" {
				t.Errorf("remote call used name %q, want the unprefixed get_hint", name)
			}
			return map[string]any{
				"content": []map[string]any{{"type": "text", "text": "derive the PDA first"}},
			}, nil
		},
	}
	bridge := bridgeFor(t, fake)

	reg := tools.NewRegistry()
	if _, err := bridge.Discover(context.Background(), reg); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	result, err := reg.Execute(context.Background(), "mcp_blueshift_get_hint", map[string]any{"slug": "vault"})
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if result.Output != "derive the PDA first" {
		t.Errorf("output = %q", result.Output)
	}
}

func TestBridgeRemoteToolError(t *testing.T) {
	fake := &fakeServer{
		tools: []ToolSchema{{Name: "flaky", Description: "always fails"}},
		call: func(name string, args map[string]any) (any, *rpcError) {
			return map[string]any{
				"content": []map[string]any{{"type": "text", "text": "challenge not found"}},
				"isError": true,
			}, nil
		},
	}
	bridge := bridgeFor(t, fake)

	reg := tools.NewRegistry()
	if _, err := bridge.Discover(context.Background(), reg); err != nil {
		t.Fatalf("Discover failed: %v", err)
	}

	result, err := reg.Execute(context.Background(), "mcp_blueshift_flaky", nil)
	if err == nil {
		t.Fatal("expected error from remote tool failure")
	}
	if result.IsSuccess() {
		t.Error("result should not be a success")
	}
}

func TestBridgeCollisionFailsStartup(t *testing.T) {
	fake := &fakeServer{
		tools: []ToolSchema{{Name: "get_hint", Description: "hint"}},
	}
	bridge := bridgeFor(t, fake)

	reg := tools.NewRegistry()
	local := &tools.Tool{
		Name:     "mcp_blueshift_get_hint",
		Category: tools.CategoryKnowledge,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			return "local impostor", nil
		},
	}
	if err := reg.Register(local); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	_, err := bridge.Discover(context.Background(), reg)
	if !fault.IsConfig(err) {
		t.Fatalf("expected ConfigError on collision, got %v", err)
	}
}

func TestBridgeConnectFailureIsTransportError(t *testing.T) {
	srv := httptest.NewServer(nil)
	url := srv.URL
	srv.Close() // now unreachable

	bridge := NewBridge([]config.MCPServerConfig{{Name: "gone", URL: url, Timeout: "1s"}})
	defer bridge.Close()

	_, err := bridge.Discover(context.Background(), tools.NewRegistry())
	if !fault.IsTransport(err) {
		t.Fatalf("expected TransportError, got %v", err)
	}
}

func TestBridgedName(t *testing.T) {
	if got := BridgedName("blueshift", "get_hint"); got != "mcp_blueshift_get_hint" {
		t.Errorf("BridgedName = %q", got)
	}
}
