package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"shiftbot/internal/blueshift"
	"shiftbot/internal/ui"
)

var challengesCmd = &cobra.Command{
	Use:   "challenges",
	Short: "Browse the challenge catalog",
}

var challengesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List every challenge with its kind and category",
	RunE:  listChallenges,
}

var challengesShowCmd = &cobra.Command{
	Use:   "show [slug]",
	Short: "Show one challenge's description",
	Args:  cobra.ExactArgs(1),
	RunE:  showChallenge,
}

func init() {
	challengesCmd.AddCommand(challengesListCmd)
	challengesCmd.AddCommand(challengesShowCmd)
}

func listChallenges(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetAPITimeout())
	defer cancel()

	challenges, err := blueshift.New(cfg).ListChallenges(ctx)
	if err != nil {
		return err
	}

	fmt.Print(renderChallenges(challenges))
	return nil
}

func renderChallenges(challenges []blueshift.Challenge) string {
	tbl := ui.NewTable("Challenges", "SLUG", "NAME", "KIND", "CATEGORY")
	for _, c := range challenges {
		tbl.AddRow(c.Slug, c.Name, c.Kind, c.Category)
	}
	return tbl.Render()
}

func showChallenge(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), cfg.GetAPITimeout())
	defer cancel()

	ch, err := blueshift.New(cfg).GetChallenge(ctx, args[0])
	if err != nil {
		return err
	}

	fmt.Printf("%s %s\n", ui.Title.Render(ch.Name), ui.Muted.Render("("+ch.Kind+", "+ch.Category+")"))
	if ch.Description != "" {
		fmt.Print(ui.Markdown(ch.Description))
	}
	return nil
}
