package mcp

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"shiftbot/internal/config"
	"shiftbot/internal/fault"
	"shiftbot/internal/logging"
	"shiftbot/internal/tools"
)

// Bridge connects configured MCP servers and merges their tools into
// the local registry under mcp_{server}_{tool} names.
type Bridge struct {
	servers []*server
}

type server struct {
	name      string
	transport Transport
	timeout   time.Duration
}

// NewBridge builds one transport per configured server. Servers with a
// command are spawned over stdio; the rest speak streamable HTTP.
func NewBridge(cfgs []config.MCPServerConfig) *Bridge {
	b := &Bridge{}
	for _, cfg := range cfgs {
		var transport Transport
		if cfg.Command != "" {
			transport = NewStdioTransport(cfg.Command, cfg.Args)
		} else {
			transport = NewHTTPTransport(cfg.URL, cfg.GetTimeout())
		}
		b.servers = append(b.servers, &server{
			name:      cfg.Name,
			transport: transport,
			timeout:   cfg.GetTimeout(),
		})
	}
	return b
}

// Discover connects every server concurrently, then registers the
// discovered tools. A name collision with an already-registered tool is
// fatal: a silently shadowed registration could route a signing call to
// an untrusted remote.
func (b *Bridge) Discover(ctx context.Context, reg *tools.Registry) (int, error) {
	type discovery struct {
		srv     *server
		schemas []ToolSchema
	}

	results := make([]discovery, len(b.servers))
	g, gctx := errgroup.WithContext(ctx)
	for i, srv := range b.servers {
		g.Go(func() error {
			if err := srv.transport.Connect(gctx); err != nil {
				return &fault.TransportError{Op: "mcp connect " + srv.name, Err: err}
			}
			schemas, err := srv.transport.ListTools(gctx)
			if err != nil {
				return &fault.TransportError{Op: "mcp discover " + srv.name, Err: err}
			}
			results[i] = discovery{srv: srv, schemas: schemas}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	// Registration runs sequentially so a collision reports the same
	// tool every time.
	count := 0
	for _, d := range results {
		for _, schema := range d.schemas {
			tool := d.srv.wrap(schema)
			if err := reg.Register(tool); err != nil {
				return count, fault.Configf("remote tool %s cannot be registered: %v", tool.Name, err)
			}
			count++
		}
	}

	logging.L("mcp").Infow("remote tools registered", "count", count, "servers", len(b.servers))
	return count, nil
}

// Close disconnects every server.
func (b *Bridge) Close() {
	for _, srv := range b.servers {
		if err := srv.transport.Disconnect(); err != nil {
			logging.L("mcp").Debugw("disconnect failed", "server", srv.name, "error", err)
		}
	}
}

// wrap converts a remote declaration into a registry tool whose handler
// proxies over this server's transport.
func (s *server) wrap(schema ToolSchema) *tools.Tool {
	remoteName := schema.Name
	return &tools.Tool{
		Name:        BridgedName(s.name, remoteName),
		Description: schema.Description,
		Category:    tools.CategoryRemote,
		RawSchema:   schema.InputSchema,
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			callCtx, cancel := context.WithTimeout(ctx, s.timeout)
			defer cancel()

			res, err := s.transport.CallTool(callCtx, remoteName, args)
			if err != nil {
				return "", &fault.TransportError{Op: "mcp call " + remoteName, Err: err}
			}
			text := res.Text()
			if res.IsError {
				if text == "" {
					text = "remote tool reported an unspecified error"
				}
				return "", fmt.Errorf("remote tool %s failed: %s", remoteName, text)
			}
			return text, nil
		},
	}
}

// BridgedName is the registry name of a remote tool.
func BridgedName(server, tool string) string {
	return "mcp_" + server + "_" + tool
}
