package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"shiftbot/internal/agent"
	"shiftbot/internal/logging"
	"shiftbot/internal/ui"
)

var runInstructions string

// runCmd starts one autonomous run
var runCmd = &cobra.Command{
	Use:   "run [slug]",
	Short: "Let the agent work the challenge catalog",
	Long: `Starts one autonomous run. With a slug the agent focuses on that
challenge; without one it walks the catalog and picks up whatever is
still unsolved.

The stream shows every model reply and tool call as it happens; the
full transcript lands in the run journal (see "shiftbot runs").`,
	Args: cobra.MaximumNArgs(1),
	RunE: runAgent,
}

func init() {
	runCmd.Flags().StringVar(&runInstructions, "instructions", "", "Override the task instructions for this run")
}

func runAgent(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Ctrl+C cancels the run; the loop records it as failed.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		<-sigCh
		logging.L("cli").Infow("shutdown signal received")
		cancel()
	}()

	printer := ui.NewPrinter(os.Stdout)
	sess, err := newSession(ctx, printer)
	if err != nil {
		return err
	}
	defer sess.close()

	task := agent.Task{Instructions: runInstructions}
	if len(args) > 0 {
		task.Slug = args[0]
	}

	fmt.Printf("%s %s\n", ui.Muted.Render("agent"), cfg.Name)
	fmt.Printf("%s %s\n", ui.Muted.Render("wallet"), sess.wallet.Address())
	fmt.Printf("%s %s\n\n", ui.Muted.Render("model"), cfg.LLM.Model)

	outcome := sess.agent.Run(ctx, task)
	if outcome.State != agent.StateAnswered {
		return fmt.Errorf("run %s finished %s", outcome.RunID, outcome.State)
	}
	return nil
}
