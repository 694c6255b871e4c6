package main

import (
	"context"

	"shiftbot/internal/agent"
	"shiftbot/internal/anchor"
	"shiftbot/internal/blueshift"
	"shiftbot/internal/config"
	"shiftbot/internal/embedding"
	"shiftbot/internal/fault"
	"shiftbot/internal/llm"
	"shiftbot/internal/logging"
	"shiftbot/internal/mcp"
	"shiftbot/internal/store"
	"shiftbot/internal/tools"
	"shiftbot/internal/tools/local"
	"shiftbot/internal/ui"
	"shiftbot/internal/wallet"
)

// openStore opens the run journal. With semantic true it attaches the
// embedding engine so saved notes carry vectors; an unreachable backend
// degrades to keyword search.
func openStore(semantic bool) (*store.Store, error) {
	var opts []store.Option
	if semantic && cfg.KB.Enabled {
		engine, err := embedding.NewEngine(embedding.Config{
			Provider: cfg.KB.Provider,
			Model:    cfg.KB.EmbedModel,
			APIKey:   cfg.KB.EmbedAPIKey,
			Endpoint: cfg.KB.Endpoint,
		})
		if err != nil {
			logging.L("cli").Warnw("embedding engine unavailable, knowledge base degrades to keyword search",
				"error", err)
		} else {
			opts = append(opts, store.WithEmbedding(engine))
		}
	}
	return store.Open(config.ExpandHome(cfg.Store.DatabasePath), opts...)
}

// session wires every collaborator a full agent run needs.
type session struct {
	wallet   *wallet.Wallet
	client   *blueshift.Client
	builder  *anchor.Builder
	store    *store.Store
	registry *tools.Registry
	bridge   *mcp.Bridge
	agent    *agent.Agent
}

// newSession builds the run wiring: wallet, service client, build
// pipeline, journal, local tools, remote bridge, reasoning engine,
// loop. Remote discovery failure degrades to local tools only; a tool
// name collision aborts startup.
func newSession(ctx context.Context, printer *ui.Printer) (*session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	w, err := wallet.Load(cfg.Wallet)
	if err != nil {
		return nil, err
	}

	builder, err := anchor.NewBuilder(cfg)
	if err != nil {
		return nil, err
	}
	builder.Probe()

	st, err := openStore(true)
	if err != nil {
		return nil, err
	}

	client := blueshift.New(cfg)

	registry := tools.NewRegistry()
	if err := local.RegisterAll(registry, local.Deps{
		Wallet:  w,
		Client:  client,
		Builder: builder,
		Store:   st,
	}); err != nil {
		st.Close()
		return nil, err
	}

	var bridge *mcp.Bridge
	if cfg.MCP.Enabled {
		bridge = mcp.NewBridge(cfg.MCP.Servers)
		if _, err := bridge.Discover(ctx, registry); err != nil {
			if fault.IsConfig(err) {
				bridge.Close()
				st.Close()
				return nil, err
			}
			logging.L("cli").Warnw("remote tool discovery failed, continuing with local tools",
				"error", err)
		}
	}

	sess := &session{
		wallet:   w,
		client:   client,
		builder:  builder,
		store:    st,
		registry: registry,
		bridge:   bridge,
	}

	engine, err := llm.NewFromConfig(cfg)
	if err != nil {
		sess.close()
		return nil, err
	}

	sess.agent, err = agent.New(cfg, agent.Deps{
		Client:   engine,
		Registry: registry,
		Store:    st,
		Address:  w.Address(),
		OnEvent:  printer.Handle,
	})
	if err != nil {
		sess.close()
		return nil, err
	}
	return sess, nil
}

func (s *session) close() {
	if s.bridge != nil {
		s.bridge.Close()
	}
	if s.store != nil {
		s.store.Close()
	}
}
