package store

import (
	"strings"
	"unicode/utf8"
)

// ChunkSize is the upper bound for one knowledge chunk, in bytes.
// Embedding quality drops on long inputs, so documents are split
// before they are saved.
const ChunkSize = 1200

// Chunk splits text into pieces of at most ChunkSize bytes, keeping
// paragraphs together where possible. Oversized paragraphs are cut at
// whitespace inside the window, never mid-rune.
func Chunk(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	if len(text) <= ChunkSize {
		return []string{text}
	}

	var (
		chunks []string
		cur    strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
	}

	for _, para := range strings.Split(text, "\n\n") {
		para = strings.TrimSpace(para)
		if para == "" {
			continue
		}
		if cur.Len() > 0 && cur.Len()+2+len(para) > ChunkSize {
			flush()
		}
		for len(para) > ChunkSize {
			flush()
			n := cutPoint(para)
			chunks = append(chunks, strings.TrimSpace(para[:n]))
			para = strings.TrimSpace(para[n:])
		}
		if para == "" {
			continue
		}
		if cur.Len() > 0 {
			cur.WriteString("\n\n")
		}
		cur.WriteString(para)
	}
	flush()
	return chunks
}

// cutPoint returns where to split an oversized paragraph: the last
// whitespace inside the window, else the nearest rune boundary.
func cutPoint(s string) int {
	if i := strings.LastIndexAny(s[:ChunkSize], " \t\n"); i > 0 {
		return i
	}
	i := ChunkSize
	for i > 0 && !utf8.RuneStart(s[i]) {
		i--
	}
	return i
}
