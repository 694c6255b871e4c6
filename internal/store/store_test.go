package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func openTestStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"), opts...)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestOpenCreatesSchema(t *testing.T) {
	s := openTestStore(t)

	stats, err := s.Stats()
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	for _, table := range []string{"runs", "tool_calls", "kb_notes"} {
		if _, ok := stats[table]; !ok {
			t.Errorf("stats missing table %s", table)
		}
	}
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)

	rec := &RunRecord{
		ID:      "run-1",
		Slug:    "hello-solana",
		Address: "4Nd1mYvHGJKQXlDDbfTWvXQ9DTgEPLW1ffkNY4sh3SJ1",
		Model:   "gpt-4o",
		State:   "running",
	}
	if err := s.CreateRun(rec); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}
	if rec.StartedAt.IsZero() {
		t.Error("CreateRun should stamp StartedAt")
	}

	got, err := s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got.Slug != "hello-solana" || got.State != "running" {
		t.Errorf("unexpected run: %+v", got)
	}
	if !got.FinishedAt.IsZero() {
		t.Error("FinishedAt should be zero while running")
	}

	if err := s.FinishRun("run-1", "answered", 7, "transaction confirmed"); err != nil {
		t.Fatalf("FinishRun failed: %v", err)
	}

	got, err = s.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun after finish failed: %v", err)
	}
	if got.State != "answered" || got.Turns != 7 || got.Answer != "transaction confirmed" {
		t.Errorf("unexpected finished run: %+v", got)
	}
	if got.FinishedAt.IsZero() {
		t.Error("FinishedAt should be set after FinishRun")
	}
}

func TestFinishRunUnknownID(t *testing.T) {
	s := openTestStore(t)
	if err := s.FinishRun("no-such-run", "failed", 0, ""); err == nil {
		t.Fatal("expected error for unknown run id")
	}
}

func TestListRunsNewestFirst(t *testing.T) {
	s := openTestStore(t)

	base := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		rec := &RunRecord{
			ID:        id,
			Slug:      "vault",
			Address:   "addr",
			State:     "running",
			StartedAt: base.Add(time.Duration(i) * time.Minute),
		}
		if err := s.CreateRun(rec); err != nil {
			t.Fatalf("CreateRun(%s) failed: %v", id, err)
		}
	}

	runs, err := s.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
	if runs[0].ID != "c" || runs[1].ID != "b" {
		t.Errorf("expected newest first [c b], got [%s %s]", runs[0].ID, runs[1].ID)
	}
}

func TestToolCalls(t *testing.T) {
	s := openTestStore(t)

	run := &RunRecord{ID: "run-2", Slug: "vault", Address: "addr", State: "running"}
	if err := s.CreateRun(run); err != nil {
		t.Fatalf("CreateRun failed: %v", err)
	}

	calls := []*ToolCallRecord{
		{RunID: "run-2", Turn: 1, Tool: "blueshift_get_challenge", Args: `{"slug":"vault"}`, Output: "...", Duration: 120 * time.Millisecond},
		{RunID: "run-2", Turn: 2, Tool: "anchor_build", Args: `{"workspace_dir":"vault-1-ab"}`, Error: "compile failed", Duration: 3 * time.Second},
	}
	for _, call := range calls {
		if err := s.AppendToolCall(call); err != nil {
			t.Fatalf("AppendToolCall failed: %v", err)
		}
		if call.ID == 0 {
			t.Error("AppendToolCall should backfill ID")
		}
	}

	got, err := s.ListToolCalls("run-2")
	if err != nil {
		t.Fatalf("ListToolCalls failed: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 calls, got %d", len(got))
	}
	if got[0].Tool != "blueshift_get_challenge" || got[1].Tool != "anchor_build" {
		t.Errorf("calls out of order: %v, %v", got[0].Tool, got[1].Tool)
	}
	if got[0].Duration != 120*time.Millisecond {
		t.Errorf("duration round-trip mismatch: got %v", got[0].Duration)
	}
	if got[1].Error != "compile failed" {
		t.Errorf("error not persisted: %q", got[1].Error)
	}
}

func TestKeywordSearch(t *testing.T) {
	s := openTestStore(t)

	notes := []*Note{
		{Slug: "vault", Title: "PDA seeds", Content: "vault PDA uses seeds [b\"vault\", user.key()]"},
		{Slug: "escrow", Title: "Token transfers", Content: "use anchor_spl::token::transfer for escrow moves"},
	}
	for _, note := range notes {
		if err := s.SaveNote(context.Background(), note); err != nil {
			t.Fatalf("SaveNote failed: %v", err)
		}
		if note.ID == 0 {
			t.Error("SaveNote should backfill ID")
		}
	}

	hits, err := s.SearchNotes(context.Background(), "PDA", 5)
	if err != nil {
		t.Fatalf("SearchNotes failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Note.Slug != "vault" {
		t.Errorf("hit slug = %q, want vault", hits[0].Note.Slug)
	}
}

func TestSearchNotesEmptyQuery(t *testing.T) {
	s := openTestStore(t)
	hits, err := s.SearchNotes(context.Background(), "   ", 5)
	if err != nil {
		t.Fatalf("SearchNotes failed: %v", err)
	}
	if hits != nil {
		t.Errorf("expected no hits for blank query, got %d", len(hits))
	}
}

// stubEngine maps marker words to fixed unit vectors.
type stubEngine struct {
	fail bool
}

func (e *stubEngine) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail {
		return nil, errors.New("embedding unavailable")
	}
	switch {
	case strings.Contains(text, "anchor"):
		return []float32{1, 0, 0}, nil
	case strings.Contains(text, "wallet"):
		return []float32{0, 1, 0}, nil
	default:
		return []float32{0, 0, 1}, nil
	}
}

func (e *stubEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		vec, err := e.Embed(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = vec
	}
	return out, nil
}

func (e *stubEngine) Dimensions() int { return 3 }
func (e *stubEngine) Name() string    { return "stub" }

func TestSemanticSearch(t *testing.T) {
	s := openTestStore(t, WithEmbedding(&stubEngine{}))

	notes := []*Note{
		{Slug: "vault", Title: "anchor build flags", Content: "anchor build output lives in target/deploy"},
		{Slug: "keys", Title: "wallet signing", Content: "wallet signs the serialized transaction"},
	}
	for _, note := range notes {
		if err := s.SaveNote(context.Background(), note); err != nil {
			t.Fatalf("SaveNote failed: %v", err)
		}
	}

	hits, err := s.SearchNotes(context.Background(), "anchor deploy artifacts", 1)
	if err != nil {
		t.Fatalf("SearchNotes failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if hits[0].Note.Slug != "vault" {
		t.Errorf("top hit slug = %q, want vault", hits[0].Note.Slug)
	}
	if hits[0].Score < 0.9 {
		t.Errorf("expected near-identical similarity, got %v", hits[0].Score)
	}
}

func TestSemanticSearchFallsBackOnEngineError(t *testing.T) {
	engine := &stubEngine{}
	s := openTestStore(t, WithEmbedding(engine))

	note := &Note{Slug: "vault", Title: "anchor tips", Content: "anchor keys sync before building"}
	if err := s.SaveNote(context.Background(), note); err != nil {
		t.Fatalf("SaveNote failed: %v", err)
	}

	engine.fail = true
	hits, err := s.SearchNotes(context.Background(), "anchor", 5)
	if err != nil {
		t.Fatalf("SearchNotes failed: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected keyword fallback hit, got %d", len(hits))
	}
}

func TestListNotesBySlug(t *testing.T) {
	s := openTestStore(t)

	for _, note := range []*Note{
		{Slug: "vault", Title: "a", Content: "x"},
		{Slug: "vault", Title: "b", Content: "y"},
		{Slug: "escrow", Title: "c", Content: "z"},
	} {
		if err := s.SaveNote(context.Background(), note); err != nil {
			t.Fatalf("SaveNote failed: %v", err)
		}
	}

	notes, err := s.ListNotes("vault", 0)
	if err != nil {
		t.Fatalf("ListNotes failed: %v", err)
	}
	if len(notes) != 2 {
		t.Errorf("expected 2 vault notes, got %d", len(notes))
	}

	all, err := s.ListNotes("", 0)
	if err != nil {
		t.Fatalf("ListNotes all failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("expected 3 notes total, got %d", len(all))
	}
}

func TestVectorRoundTrip(t *testing.T) {
	vec := []float32{0.25, -1.5, 3.0, 0}
	blob := encodeVector(vec)
	got := decodeVector(blob)
	if len(got) != len(vec) {
		t.Fatalf("round-trip length = %d, want %d", len(got), len(vec))
	}
	for i := range vec {
		if got[i] != vec[i] {
			t.Errorf("round-trip[%d] = %v, want %v", i, got[i], vec[i])
		}
	}

	if decodeVector(nil) != nil {
		t.Error("decodeVector(nil) should be nil")
	}
	if decodeVector([]byte{1, 2, 3}) != nil {
		t.Error("decodeVector of ragged blob should be nil")
	}
}
