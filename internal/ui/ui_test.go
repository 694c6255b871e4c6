package ui

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shiftbot/internal/agent"
)

func TestPrinterStreamsToolLifecycle(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Handle(agent.Event{Kind: agent.EventText, Turn: 1, Text: "Checking the catalog first."})
	p.Handle(agent.Event{Kind: agent.EventToolStart, Turn: 1, Tool: "blueshift_list_challenges", Args: "{}"})
	p.Handle(agent.Event{
		Kind:     agent.EventToolEnd,
		Turn:     1,
		Tool:     "blueshift_list_challenges",
		Output:   `[{"slug":"anchor-vault"}]`,
		Duration: 42 * time.Millisecond,
	})
	p.Handle(agent.Event{
		Kind: agent.EventToolEnd,
		Turn: 2,
		Tool: "anchor_build",
		Err:  errors.New("build failed (exit 101)"),
	})

	out := buf.String()
	assert.Contains(t, out, "Checking the catalog first.")
	assert.Contains(t, out, "→ blueshift_list_challenges")
	assert.Contains(t, out, "✓ blueshift_list_challenges")
	assert.Contains(t, out, "42ms")
	assert.Contains(t, out, "✗ anchor_build")
	assert.Contains(t, out, "build failed (exit 101)")
	assert.Contains(t, out, "[01]")
	assert.Contains(t, out, "[02]")
}

func TestPrinterRendersAnsweredOutcome(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Handle(agent.Event{
		Kind:     agent.EventFinished,
		Turn:     7,
		State:    agent.StateAnswered,
		Text:     "Solved **anchor-vault** on the first attempt.",
		Duration: 3 * time.Second,
	})

	out := buf.String()
	assert.Contains(t, out, "answered")
	assert.Contains(t, out, "7 turns")
	assert.Contains(t, out, "anchor-vault")
}

func TestPrinterRendersFailedOutcome(t *testing.T) {
	var buf bytes.Buffer
	p := NewPrinter(&buf)

	p.Handle(agent.Event{
		Kind:  agent.EventFinished,
		Turn:  25,
		State: agent.StateFailed,
		Text:  "turn ceiling (25) exceeded without a final answer",
	})

	out := buf.String()
	assert.Contains(t, out, "failed")
	assert.Contains(t, out, "turn ceiling (25)")
	assert.NotContains(t, out, "answered")
}

func TestPreviewCollapsesAndTruncates(t *testing.T) {
	assert.Equal(t, "first line …", preview("first line\nsecond line\nthird"))

	long := strings.Repeat("x", maxPreview+20)
	got := preview(long)
	assert.True(t, strings.HasSuffix(got, "…"))
	assert.LessOrEqual(t, len(got), maxPreview+len("…"))

	assert.Equal(t, "trimmed", preview("  trimmed  "))
}

func TestTableAlignsColumns(t *testing.T) {
	tbl := NewTable("Challenges", "SLUG", "UNIT", "COMPLETED")
	tbl.AddRow("anchor-vault", "rust", "yes")
	tbl.AddRow("ts-transfer", "typescript", "no")

	out := tbl.Render()
	require.NotEmpty(t, out)

	assert.Contains(t, out, "Challenges")
	assert.Contains(t, out, "SLUG")
	assert.Contains(t, out, "anchor-vault")
	assert.Contains(t, out, "ts-transfer")
	assert.Contains(t, out, "----")

	// The second column starts at the same offset on every data line.
	var dataLines []string
	for _, line := range strings.Split(out, "\n") {
		if strings.Contains(line, "anchor-vault") || strings.Contains(line, "ts-transfer") {
			dataLines = append(dataLines, line)
		}
	}
	require.Len(t, dataLines, 2)
	assert.Equal(t,
		strings.Index(dataLines[0], "rust"),
		strings.Index(dataLines[1], "typescript"))
}

func TestTableNormalizesRowArity(t *testing.T) {
	tbl := NewTable("", "A", "B")
	tbl.AddRow("only")
	tbl.AddRow("one", "two", "dropped")

	out := tbl.Render()
	assert.Contains(t, out, "only")
	assert.Contains(t, out, "two")
	assert.NotContains(t, out, "dropped")
}

func TestTableEmptyHeadersRendersNothing(t *testing.T) {
	tbl := &Table{}
	assert.Empty(t, tbl.Render())
}

func TestMarkdownFallsBackToText(t *testing.T) {
	out := Markdown("plain *emphasis* and `code`")
	assert.Contains(t, out, "emphasis")
	assert.Contains(t, out, "code")
}
