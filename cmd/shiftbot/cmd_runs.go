package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"shiftbot/internal/agent"
	"shiftbot/internal/store"
	"shiftbot/internal/ui"
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "Inspect the run journal",
}

var runsLimit int

var runsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent runs",
	RunE:  listRuns,
}

var runsShowCmd = &cobra.Command{
	Use:   "show [run-id]",
	Short: "Show one run with its answer and tool calls",
	Args:  cobra.ExactArgs(1),
	RunE:  showRun,
}

func init() {
	runsListCmd.Flags().IntVar(&runsLimit, "limit", 20, "Maximum runs to list")

	runsCmd.AddCommand(runsListCmd)
	runsCmd.AddCommand(runsShowCmd)
}

func listRuns(cmd *cobra.Command, args []string) error {
	st, err := openStore(false)
	if err != nil {
		return err
	}
	defer st.Close()

	recs, err := st.ListRuns(runsLimit)
	if err != nil {
		return err
	}

	fmt.Print(renderRuns(recs))
	return nil
}

func renderRuns(recs []store.RunRecord) string {
	tbl := ui.NewTable("Runs", "ID", "SLUG", "STATE", "TURNS", "STARTED", "DURATION")
	for _, r := range recs {
		slug := r.Slug
		if slug == "" {
			slug = "(catalog)"
		}
		dur := "-"
		if !r.FinishedAt.IsZero() {
			dur = r.FinishedAt.Sub(r.StartedAt).Round(time.Second).String()
		}
		tbl.AddRow(r.ID, slug, renderState(r.State), strconv.Itoa(r.Turns),
			r.StartedAt.Local().Format("2006-01-02 15:04"), dur)
	}
	return tbl.Render()
}

func showRun(cmd *cobra.Command, args []string) error {
	st, err := openStore(false)
	if err != nil {
		return err
	}
	defer st.Close()

	rec, err := st.GetRun(args[0])
	if err != nil {
		return err
	}
	calls, err := st.ListToolCalls(rec.ID)
	if err != nil {
		return err
	}

	fmt.Print(renderRun(rec, calls))
	return nil
}

func renderRun(rec *store.RunRecord, calls []store.ToolCallRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", ui.Title.Render("run"), rec.ID)
	fmt.Fprintf(&b, "slug:   %s\n", rec.Slug)
	fmt.Fprintf(&b, "model:  %s\n", rec.Model)
	fmt.Fprintf(&b, "state:  %s\n", renderState(rec.State))
	fmt.Fprintf(&b, "turns:  %d\n", rec.Turns)
	if !rec.FinishedAt.IsZero() {
		fmt.Fprintf(&b, "took:   %s\n", rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second))
	}

	if len(calls) > 0 {
		tbl := ui.NewTable("", "TURN", "TOOL", "DURATION", "RESULT")
		for _, c := range calls {
			result := "ok"
			if c.Error != "" {
				result = c.Error
			}
			tbl.AddRow(strconv.Itoa(c.Turn), c.Tool,
				c.Duration.Round(time.Millisecond).String(), result)
		}
		b.WriteString("\n")
		b.WriteString(tbl.Render())
	}

	if rec.Answer != "" {
		b.WriteString("\n")
		b.WriteString(ui.Markdown(rec.Answer))
	}
	return b.String()
}

func renderState(state string) string {
	switch state {
	case string(agent.StateAnswered):
		return ui.Good.Render(state)
	case string(agent.StateFailed):
		return ui.Bad.Render(state)
	}
	return state
}
