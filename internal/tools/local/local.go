// Package local builds the agent's local tool surface: wallet operations,
// scoring-service calls, the build pipeline, workspace file access, and
// knowledge-base search. Each constructor closes over its subsystem; the
// registry owns validation and dispatch.
package local

import (
	"encoding/json"
	"fmt"

	"shiftbot/internal/anchor"
	"shiftbot/internal/blueshift"
	"shiftbot/internal/store"
	"shiftbot/internal/tools"
	"shiftbot/internal/wallet"
)

// Deps carries the session-scoped subsystems the tools close over. Store
// is optional; without it kb_search is not registered.
type Deps struct {
	Wallet  *wallet.Wallet
	Client  *blueshift.Client
	Builder *anchor.Builder
	Store   *store.Store
}

// RegisterAll builds and registers the full local tool surface.
func RegisterAll(reg *tools.Registry, deps Deps) error {
	list := []*tools.Tool{
		WalletGetAddress(deps.Wallet),
		WalletSignBytes(deps.Wallet),
		WalletEncodeBase58(),
		BlueshiftListChallenges(deps.Client),
		BlueshiftGetChallenge(deps.Client),
		BlueshiftGetProgress(deps.Client, deps.Wallet),
		BlueshiftAttemptClient(deps.Client, deps.Wallet),
		BlueshiftAttemptProgram(deps.Client, deps.Wallet, deps.Builder),
		AnchorCreateProgram(deps.Builder),
		AnchorBuild(deps.Builder),
		ReadFile(deps.Builder.Workspace()),
		WriteFile(deps.Builder.Workspace()),
	}
	if t := KBSearch(deps.Store); t != nil {
		list = append(list, t)
	}
	return reg.RegisterAll(list...)
}

// stringArg fetches an optional string argument. Required presence and
// value types are already enforced by the registry.
func stringArg(args map[string]any, name, fallback string) string {
	if v, ok := args[name].(string); ok && v != "" {
		return v
	}
	return fallback
}

// intArg fetches an optional integer argument.
func intArg(args map[string]any, name string, fallback int) int {
	if v, ok := args[name].(float64); ok {
		return int(v)
	}
	return fallback
}

// asJSON renders structured tool output for the reasoning engine.
func asJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding tool output: %w", err)
	}
	return string(data), nil
}
