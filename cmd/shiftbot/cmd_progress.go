package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"shiftbot/internal/blueshift"
	"shiftbot/internal/ui"
	"shiftbot/internal/wallet"
)

var progressCmd = &cobra.Command{
	Use:   "progress",
	Short: "Show the agent's progress through the catalog",
	RunE:  showProgress,
}

func showProgress(cmd *cobra.Command, args []string) error {
	w, err := wallet.Load(cfg.Wallet)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetAPITimeout())
	defer cancel()

	entries, err := blueshift.New(cfg).GetProgress(ctx, w.Address())
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n\n", ui.Muted.Render("wallet"), w.Address())
	fmt.Print(renderProgress(entries))
	return nil
}

func renderProgress(entries []blueshift.ProgressEntry) string {
	tbl := ui.NewTable("Progress", "SLUG", "DONE", "ATTEMPTS", "LAST ATTEMPT")
	for _, e := range entries {
		last := "-"
		if a := e.LatestAttempt; a != nil {
			verdict := "failed"
			if a.Passed {
				verdict = "passed"
			}
			last = fmt.Sprintf("%s, %d CU, %d bytes", verdict, a.CUConsumed, a.BinarySize)
		}
		tbl.AddRow(e.Slug, yesNo(e.Completed), strconv.Itoa(e.AttemptCount), last)
	}
	return tbl.Render()
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
