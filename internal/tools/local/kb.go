package local

import (
	"context"

	"shiftbot/internal/store"
	"shiftbot/internal/tools"
)

// kbHit is the output shape for a single knowledge-base match.
type kbHit struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Slug    string  `json:"slug,omitempty"`
	Score   float64 `json:"score"`
}

// KBSearch exposes knowledge-base search. It returns nil when no store is
// attached or the knowledge base holds no notes, and RegisterAll skips it.
func KBSearch(s *store.Store) *tools.Tool {
	if s == nil {
		return nil
	}
	stats, err := s.Stats()
	if err != nil || stats["kb_notes"] == 0 {
		return nil
	}

	return &tools.Tool{
		Name:        "kb_search",
		Description: "Searches the local knowledge base for notes relevant to the query. Useful for Anchor patterns and prior challenge solutions.",
		Category:    tools.CategoryKnowledge,
		Idempotent:  true,
		Schema: tools.Schema{
			Required: []string{"query"},
			Properties: map[string]tools.Property{
				"query": {Type: "string", Description: "Free-text search query"},
				"limit": {Type: "integer", Description: "Maximum number of notes to return", Default: 5},
			},
		},
		Execute: func(ctx context.Context, args map[string]any) (string, error) {
			hits, err := s.SearchNotes(ctx, stringArg(args, "query", ""), intArg(args, "limit", 5))
			if err != nil {
				return "", err
			}
			if len(hits) == 0 {
				return "no matching notes", nil
			}
			out := make([]kbHit, 0, len(hits))
			for _, h := range hits {
				out = append(out, kbHit{
					Title:   h.Note.Title,
					Content: h.Note.Content,
					Slug:    h.Note.Slug,
					Score:   h.Score,
				})
			}
			return asJSON(out)
		},
	}
}
