package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Table lays out rows under a header line with per-column widths. It
// backs the challenges, progress and runs listings.
type Table struct {
	title   string
	headers []string
	rows    [][]string
}

// NewTable creates an empty table with the given header cells.
func NewTable(title string, headers ...string) *Table {
	return &Table{title: title, headers: headers}
}

// AddRow appends one row. Missing cells render empty, extras are dropped.
func (t *Table) AddRow(cells ...string) {
	row := make([]string, len(t.headers))
	for i := range row {
		if i < len(cells) {
			row[i] = cells[i]
		}
	}
	t.rows = append(t.rows, row)
}

// Render returns the table as a string, trailing newline included.
func (t *Table) Render() string {
	if len(t.headers) == 0 {
		return ""
	}

	widths := make([]int, len(t.headers))
	for i, h := range t.headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range t.rows {
		for i, cell := range row {
			if w := lipgloss.Width(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	var b strings.Builder
	if t.title != "" {
		b.WriteString(Title.Render(t.title))
		b.WriteString("\n\n")
	}

	sep := Muted.Render("|")
	total := 0
	for i, h := range t.headers {
		if i > 0 {
			b.WriteString(sep)
		}
		b.WriteString(Title.Render(pad(h, widths[i])))
		total += widths[i] + 3
	}
	b.WriteString("\n")
	b.WriteString(Muted.Render(strings.Repeat("-", total)))
	b.WriteString("\n")

	for _, row := range t.rows {
		for i, cell := range row {
			if i > 0 {
				b.WriteString(sep)
			}
			b.WriteString(pad(cell, widths[i]))
		}
		b.WriteString("\n")
	}
	return b.String()
}

// pad surrounds s with single-space padding and right-fills to width.
func pad(s string, width int) string {
	if gap := width - lipgloss.Width(s); gap > 0 {
		s += strings.Repeat(" ", gap)
	}
	return " " + s + " "
}
