package store

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/binary"
	"fmt"
	"strings"
	"time"

	"shiftbot/internal/embedding"
	"shiftbot/internal/logging"
)

// Note is one knowledge-base entry. Slug optionally ties the note to a
// challenge.
type Note struct {
	ID        int64
	Slug      string
	Title     string
	Content   string
	CreatedAt time.Time
}

// SearchHit pairs a note with its relevance score. Semantic hits carry
// cosine similarity in [-1, 1]; keyword hits carry 0.
type SearchHit struct {
	Note  Note
	Score float64
}

// SaveNote persists a note, embedding its content when an engine is
// attached. Embedding failures are not fatal; the note is stored
// without a vector and remains findable by keyword.
func (s *Store) SaveNote(ctx context.Context, note *Note) error {
	var blob []byte
	if s.engine != nil {
		vec, err := s.engine.Embed(ctx, note.Title+"\n"+note.Content)
		if err != nil {
			logging.L("store").Warnw("embedding failed, storing note without vector", "error", err)
		} else {
			blob = encodeVector(vec)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(
		`INSERT INTO kb_notes (slug, title, content, embedding) VALUES (?, ?, ?, ?)`,
		note.Slug, note.Title, note.Content, blob,
	)
	if err != nil {
		return fmt.Errorf("failed to insert note: %w", err)
	}
	note.ID, _ = res.LastInsertId()
	return nil
}

// SearchNotes finds the notes most relevant to the query. With an
// embedding engine it ranks by cosine similarity over stored vectors,
// falling back to keyword matching when no vectors exist or the query
// cannot be embedded.
func (s *Store) SearchNotes(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	if limit <= 0 {
		limit = 5
	}

	if s.engine != nil {
		hits, err := s.semanticSearch(ctx, query, limit)
		if err != nil {
			logging.L("store").Warnw("semantic search failed, falling back to keywords", "error", err)
		} else if hits != nil {
			return hits, nil
		}
	}
	return s.keywordSearch(query, limit)
}

// semanticSearch returns nil hits (no error) when no embedded notes
// exist yet, letting the caller fall back.
func (s *Store) semanticSearch(ctx context.Context, query string, limit int) ([]SearchHit, error) {
	queryVec, err := s.engine.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`SELECT id, slug, title, content, embedding, created_at FROM kb_notes WHERE embedding IS NOT NULL`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	var vectors [][]float32
	for rows.Next() {
		var note Note
		var blob []byte
		if err := rows.Scan(&note.ID, &note.Slug, &note.Title, &note.Content, &blob, &note.CreatedAt); err != nil {
			continue
		}
		vec := decodeVector(blob)
		if vec == nil {
			continue
		}
		notes = append(notes, note)
		vectors = append(vectors, vec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(notes) == 0 {
		return nil, nil
	}

	matches := embedding.TopK(queryVec, vectors, limit)
	hits := make([]SearchHit, 0, len(matches))
	for _, m := range matches {
		hits = append(hits, SearchHit{Note: notes[m.Index], Score: m.Similarity})
	}
	return hits, nil
}

// keywordSearch matches any query word against note title and content.
func (s *Store) keywordSearch(query string, limit int) ([]SearchHit, error) {
	keywords := strings.Fields(strings.ToLower(query))
	if len(keywords) == 0 {
		return nil, nil
	}

	var conditions []string
	var args []any
	for _, kw := range keywords {
		conditions = append(conditions, "(LOWER(title) LIKE ? OR LOWER(content) LIKE ?)")
		args = append(args, "%"+kw+"%", "%"+kw+"%")
	}
	args = append(args, limit)

	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(fmt.Sprintf(
		`SELECT id, slug, title, content, created_at FROM kb_notes
		 WHERE %s ORDER BY created_at DESC LIMIT ?`,
		strings.Join(conditions, " OR "),
	), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var hits []SearchHit
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.Slug, &note.Title, &note.Content, &note.CreatedAt); err != nil {
			continue
		}
		hits = append(hits, SearchHit{Note: note})
	}
	return hits, rows.Err()
}

// ListNotes returns notes for a challenge, or all notes when slug is
// empty. Newest first.
func (s *Store) ListNotes(slug string, limit int) ([]Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}

	var rows *sql.Rows
	var err error
	if slug != "" {
		rows, err = s.db.Query(
			`SELECT id, slug, title, content, created_at FROM kb_notes WHERE slug = ? ORDER BY created_at DESC LIMIT ?`,
			slug, limit,
		)
	} else {
		rows, err = s.db.Query(
			`SELECT id, slug, title, content, created_at FROM kb_notes ORDER BY created_at DESC LIMIT ?`,
			limit,
		)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var notes []Note
	for rows.Next() {
		var note Note
		if err := rows.Scan(&note.ID, &note.Slug, &note.Title, &note.Content, &note.CreatedAt); err != nil {
			continue
		}
		notes = append(notes, note)
	}
	return notes, rows.Err()
}

// encodeVector packs a float32 vector as little-endian bytes.
func encodeVector(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := new(bytes.Buffer)
	if err := binary.Write(buf, binary.LittleEndian, vec); err != nil {
		return nil
	}
	return buf.Bytes()
}

// decodeVector unpacks a little-endian float32 blob.
func decodeVector(blob []byte) []float32 {
	if len(blob) == 0 || len(blob)%4 != 0 {
		return nil
	}
	vec := make([]float32, len(blob)/4)
	if err := binary.Read(bytes.NewReader(blob), binary.LittleEndian, &vec); err != nil {
		return nil
	}
	return vec
}
