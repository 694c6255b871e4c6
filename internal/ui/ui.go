// Package ui renders the run stream and catalog views for the terminal.
// It is presentation only: no state, no goroutines, safe to drive from
// the agent's synchronous event callback.
package ui

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"shiftbot/internal/agent"
)

var (
	Title   = lipgloss.NewStyle().Bold(true)
	Muted   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	Good    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	Bad     = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	Accent  = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	Comment = lipgloss.NewStyle().Foreground(lipgloss.Color("6")).Italic(true)
)

// maxPreview bounds inline argument and output previews; full payloads
// live in the run journal.
const maxPreview = 96

// Printer streams agent events linewise.
type Printer struct {
	out io.Writer
}

// NewPrinter writes the run stream to out.
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// Handle renders one agent event. Wire it as Deps.OnEvent.
func (p *Printer) Handle(ev agent.Event) {
	switch ev.Kind {
	case agent.EventText:
		fmt.Fprintln(p.out, Comment.Render(strings.TrimSpace(ev.Text)))

	case agent.EventToolStart:
		fmt.Fprintf(p.out, "%s %s %s\n",
			Muted.Render(fmt.Sprintf("[%02d]", ev.Turn)),
			Accent.Render("→ "+ev.Tool),
			Muted.Render(preview(ev.Args)))

	case agent.EventToolEnd:
		if ev.Err != nil {
			fmt.Fprintf(p.out, "%s %s %s\n",
				Muted.Render(fmt.Sprintf("[%02d]", ev.Turn)),
				Bad.Render("✗ "+ev.Tool),
				preview(ev.Err.Error()))
			return
		}
		fmt.Fprintf(p.out, "%s %s %s %s\n",
			Muted.Render(fmt.Sprintf("[%02d]", ev.Turn)),
			Good.Render("✓ "+ev.Tool),
			Muted.Render(ev.Duration.Round(time.Millisecond).String()),
			preview(ev.Output))

	case agent.EventFinished:
		fmt.Fprintln(p.out)
		if ev.State == agent.StateAnswered {
			fmt.Fprintf(p.out, "%s %s\n", Good.Render("answered"),
				Muted.Render(fmt.Sprintf("(%d turns, %s)", ev.Turn, ev.Duration.Round(time.Millisecond))))
			fmt.Fprint(p.out, Markdown(ev.Text))
			return
		}
		fmt.Fprintf(p.out, "%s %s\n", Bad.Render("failed"), ev.Text)
	}
}

// preview returns the first line of s, truncated for inline display.
func preview(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i] + " …"
	}
	if len(s) > maxPreview {
		s = s[:maxPreview] + "…"
	}
	return s
}

// Markdown renders markdown for the terminal, falling back to the raw
// text when a renderer cannot be built.
func Markdown(text string) string {
	r, err := glamour.NewTermRenderer(
		glamour.WithAutoStyle(),
		glamour.WithWordWrap(100),
	)
	if err != nil {
		return text
	}
	out, err := r.Render(text)
	if err != nil {
		return text
	}
	return out
}
