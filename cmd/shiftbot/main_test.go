package main

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftbot/internal/agent"
	"shiftbot/internal/blueshift"
	"shiftbot/internal/config"
	"shiftbot/internal/store"
	"shiftbot/internal/wallet"
)

// testConfig points the package config at a scratch directory with a
// deterministic wallet. Remote concerns are off unless a test enables
// them.
func testConfig(t *testing.T) *config.Config {
	t.Helper()

	dir := t.TempDir()
	c := config.DefaultConfig()
	c.Store.DatabasePath = filepath.Join(dir, "shiftbot.db")
	c.Build.WorkspaceRoot = filepath.Join(dir, "anchor")
	c.KB.Enabled = false
	c.MCP.Enabled = false
	c.Wallet.KeypairPath = ""
	c.Wallet.Secret = testSecret(7)
	c.LLM.APIKey = "test-key"

	cfg = c
	return c
}

func testSecret(seedByte byte) string {
	seed := bytes.Repeat([]byte{seedByte}, ed25519.SeedSize)
	return wallet.EncodeBase58(ed25519.NewKeyFromSeed(seed))
}

func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)
	os.Stdout = w

	done := make(chan string)
	go func() {
		var buf bytes.Buffer
		_, _ = io.Copy(&buf, r)
		done <- buf.String()
	}()

	fn()

	_ = w.Close()
	os.Stdout = orig
	return <-done
}

func TestVersionCommand(t *testing.T) {
	out := captureOutput(t, func() {
		versionCmd.Run(versionCmd, nil)
	})
	assert.Contains(t, out, "shiftbot")
	assert.Contains(t, out, version)
}

func TestRootWiresAllCommands(t *testing.T) {
	want := []string{"run", "challenges", "progress", "wallet", "kb", "runs", "version"}
	for _, name := range want {
		found := false
		for _, sub := range rootCmd.Commands() {
			if sub.Name() == name {
				found = true
				break
			}
		}
		assert.True(t, found, "command %s not registered", name)
	}
}

func TestDecodeSignPayload(t *testing.T) {
	raw, err := decodeSignPayload("aGVsbG8=", "base64")
	require.NoError(t, err)
	assert.Equal(t, []byte("hello"), raw)

	raw, err = decodeSignPayload("0x68690a", "hex")
	require.NoError(t, err)
	assert.Equal(t, []byte("hi\n"), raw)

	raw, err = decodeSignPayload("plain text", "utf8")
	require.NoError(t, err)
	assert.Equal(t, []byte("plain text"), raw)

	_, err = decodeSignPayload("not base64!!!", "base64")
	assert.Error(t, err)

	_, err = decodeSignPayload("zz", "hex")
	assert.Error(t, err)

	_, err = decodeSignPayload("x", "rot13")
	assert.ErrorContains(t, err, "unknown encoding")
}

func TestWalletCommandsSignVerifiable(t *testing.T) {
	testConfig(t)

	out := captureOutput(t, func() {
		require.NoError(t, printAddress(&cobra.Command{}, nil))
	})
	address := strings.TrimSpace(out)
	require.NotEmpty(t, address)

	walletSignEncoding = "utf8"
	defer func() { walletSignEncoding = "base64" }()
	out = captureOutput(t, func() {
		require.NoError(t, signPayload(&cobra.Command{}, []string{"attest this"}))
	})

	sig, err := wallet.DecodeBase58(strings.TrimSpace(out))
	require.NoError(t, err)
	pub, err := wallet.DecodeBase58(address)
	require.NoError(t, err)
	assert.True(t, ed25519.Verify(ed25519.PublicKey(pub), []byte("attest this"), sig))
}

func TestChallengesListRendersCatalog(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/challenges", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]blueshift.Challenge{
			{Slug: "anchor-vault", Name: "Anchor Vault", Kind: blueshift.KindProgram, Category: "anchor"},
			{Slug: "ts-transfer", Name: "Transfer SOL", Kind: blueshift.KindClient, Category: "typescript"},
		})
	}))
	defer srv.Close()

	testConfig(t)
	cfg.API.BaseURL = srv.URL

	out := captureOutput(t, func() {
		require.NoError(t, listChallenges(&cobra.Command{}, nil))
	})
	assert.Contains(t, out, "anchor-vault")
	assert.Contains(t, out, "Transfer SOL")
	assert.Contains(t, out, "program")
	assert.Contains(t, out, "typescript")
}

func TestChallengesShowRendersDescription(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/challenges/anchor-vault", r.URL.Path)
		_ = json.NewEncoder(w).Encode(blueshift.Challenge{
			Slug:        "anchor-vault",
			Name:        "Anchor Vault",
			Kind:        blueshift.KindProgram,
			Category:    "anchor",
			Description: "# Vault\n\nBuild a vault that holds lamports.",
		})
	}))
	defer srv.Close()

	testConfig(t)
	cfg.API.BaseURL = srv.URL

	out := captureOutput(t, func() {
		require.NoError(t, showChallenge(&cobra.Command{}, []string{"anchor-vault"}))
	})
	assert.Contains(t, out, "Anchor Vault")
	assert.Contains(t, out, "lamports")
}

func TestProgressRendersAgentRecord(t *testing.T) {
	w := mustWallet(t)
	srv := httptest.NewServer(http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/progress", r.URL.Path)
		require.Equal(t, w.Address(), r.URL.Query().Get("address"))
		_ = json.NewEncoder(rw).Encode([]blueshift.ProgressEntry{
			{Slug: "anchor-vault", AttemptCount: 2, Completed: true,
				LatestAttempt: &blueshift.LatestAttempt{Passed: true, CUConsumed: 3200, BinarySize: 98304}},
			{Slug: "ts-transfer"},
		})
	}))
	defer srv.Close()

	testConfig(t)
	cfg.API.BaseURL = srv.URL

	out := captureOutput(t, func() {
		require.NoError(t, showProgress(&cobra.Command{}, nil))
	})
	assert.Contains(t, out, w.Address())
	assert.Contains(t, out, "passed, 3200 CU, 98304 bytes")
	assert.Contains(t, out, "yes")
	assert.Contains(t, out, "ts-transfer")
}

func mustWallet(t *testing.T) *wallet.Wallet {
	t.Helper()
	w, err := wallet.Load(config.WalletConfig{Secret: testSecret(7)})
	require.NoError(t, err)
	return w
}

func TestKBAddChunksAndSearches(t *testing.T) {
	testConfig(t)

	doc := filepath.Join(t.TempDir(), "notes.md")
	body := strings.Repeat("anchor accounts must be validated before use. ", 40)
	require.NoError(t, os.WriteFile(doc, []byte(body), 0o644))

	kbSlug = "anchor-vault"
	defer func() { kbSlug = "" }()

	out := captureOutput(t, func() {
		require.NoError(t, kbAdd(&cobra.Command{}, []string{doc}))
	})
	assert.Contains(t, out, "indexed")
	assert.Contains(t, out, "notes.md")

	out = captureOutput(t, func() {
		require.NoError(t, kbSearch(&cobra.Command{}, []string{"validated"}))
	})
	assert.Contains(t, out, "notes.md (1/")
	assert.Contains(t, out, "anchor accounts")
}

func TestKBSearchNoHits(t *testing.T) {
	testConfig(t)

	out := captureOutput(t, func() {
		require.NoError(t, kbSearch(&cobra.Command{}, []string{"nothing indexed"}))
	})
	assert.Contains(t, out, "no matching notes")
}

func TestRunsListAndShow(t *testing.T) {
	testConfig(t)

	st, err := store.Open(cfg.Store.DatabasePath)
	require.NoError(t, err)
	require.NoError(t, st.CreateRun(&store.RunRecord{
		ID: "run-123", Slug: "anchor-vault", Address: "addr",
		Model: "gpt-4o", State: string(agent.StateThinking),
	}))
	require.NoError(t, st.AppendToolCall(&store.ToolCallRecord{
		RunID: "run-123", Turn: 1, Tool: "read_file", Args: "{}",
		Output: "ok", Duration: 12 * time.Millisecond,
	}))
	require.NoError(t, st.FinishRun("run-123", string(agent.StateAnswered), 4, "All done."))
	require.NoError(t, st.Close())

	out := captureOutput(t, func() {
		require.NoError(t, listRuns(&cobra.Command{}, nil))
	})
	assert.Contains(t, out, "run-123")
	assert.Contains(t, out, "anchor-vault")
	assert.Contains(t, out, "answered")

	out = captureOutput(t, func() {
		require.NoError(t, showRun(&cobra.Command{}, []string{"run-123"}))
	})
	assert.Contains(t, out, "read_file")
	assert.Contains(t, out, "gpt-4o")
	assert.Contains(t, out, "All done.")
}

func TestRunsShowUnknownID(t *testing.T) {
	testConfig(t)

	err := showRun(&cobra.Command{}, []string{"no-such-run"})
	assert.Error(t, err)
}

func TestRunCommandAnswersEndToEnd(t *testing.T) {
	llmSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/chat/completions", r.URL.Path)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"model": "gpt-4o",
			"choices": []map[string]any{{
				"finish_reason": "stop",
				"message":       map[string]any{"role": "assistant", "content": "Catalog is already complete."},
			}},
		})
	}))
	defer llmSrv.Close()

	testConfig(t)
	cfg.LLM.BaseURL = llmSrv.URL
	cfg.Run.MaxTurns = 3
	cfg.Run.Timeout = "10s"

	out := captureOutput(t, func() {
		require.NoError(t, runAgent(runCmd, nil))
	})
	assert.Contains(t, out, "answered")
	assert.Contains(t, out, "Catalog is already complete.")

	// The run landed in the journal.
	st, err := store.Open(cfg.Store.DatabasePath)
	require.NoError(t, err)
	defer st.Close()
	recs, err := st.ListRuns(5)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, string(agent.StateAnswered), recs[0].State)
}

func TestRenderProgressWithoutAttempts(t *testing.T) {
	out := renderProgress([]blueshift.ProgressEntry{{Slug: "fresh", AttemptCount: 0}})
	assert.Contains(t, out, "fresh")
	assert.Contains(t, out, "no")
	assert.Contains(t, out, "-")
}
