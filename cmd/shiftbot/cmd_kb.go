package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"shiftbot/internal/store"
	"shiftbot/internal/ui"
)

var kbCmd = &cobra.Command{
	Use:   "kb",
	Short: "Manage the knowledge base",
}

var (
	kbTitle string
	kbSlug  string
	kbLimit int
)

var kbAddCmd = &cobra.Command{
	Use:   "add [file...]",
	Short: "Chunk and index documents",
	Long: `Splits each document on paragraph boundaries and saves the chunks as
searchable notes. With an embedding backend configured the chunks are
embedded for semantic search; otherwise they are found by keyword.`,
	Args: cobra.MinimumNArgs(1),
	RunE: kbAdd,
}

var kbSearchCmd = &cobra.Command{
	Use:   "search [query]",
	Short: "Search indexed notes",
	Args:  cobra.MinimumNArgs(1),
	RunE:  kbSearch,
}

func init() {
	kbAddCmd.Flags().StringVar(&kbTitle, "title", "", "Note title (default: file name)")
	kbAddCmd.Flags().StringVar(&kbSlug, "slug", "", "Challenge slug to tag the notes with")
	kbSearchCmd.Flags().IntVar(&kbLimit, "limit", 5, "Maximum hits to print")

	kbCmd.AddCommand(kbAddCmd)
	kbCmd.AddCommand(kbSearchCmd)
}

func kbAdd(cmd *cobra.Command, args []string) error {
	st, err := openStore(true)
	if err != nil {
		return err
	}
	defer st.Close()

	ctx := context.Background()
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}

		title := kbTitle
		if title == "" {
			title = filepath.Base(path)
		}

		chunks := store.Chunk(string(data))
		for i, chunk := range chunks {
			note := &store.Note{Slug: kbSlug, Title: title, Content: chunk}
			if len(chunks) > 1 {
				note.Title = fmt.Sprintf("%s (%d/%d)", title, i+1, len(chunks))
			}
			if err := st.SaveNote(ctx, note); err != nil {
				return err
			}
		}
		fmt.Printf("indexed %s as %d note(s)\n", path, len(chunks))
	}
	return nil
}

func kbSearch(cmd *cobra.Command, args []string) error {
	st, err := openStore(true)
	if err != nil {
		return err
	}
	defer st.Close()

	query := strings.Join(args, " ")
	hits, err := st.SearchNotes(context.Background(), query, kbLimit)
	if err != nil {
		return err
	}
	if len(hits) == 0 {
		fmt.Println("no matching notes")
		return nil
	}

	for _, hit := range hits {
		fmt.Printf("%s %s\n", ui.Title.Render(hit.Note.Title),
			ui.Muted.Render(fmt.Sprintf("(score %.3f)", hit.Score)))
		fmt.Println(hit.Note.Content)
		fmt.Println()
	}
	return nil
}
